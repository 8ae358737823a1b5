package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

type PenService struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewPenService(s store.Store) *PenService {
	return &PenService{store: s, log: zap.S().Named("service")}
}

func (s *PenService) CreatePen(ctx context.Context, create *api.PenCreate) (*api.Pen, error) {
	pen, err := s.store.Pen().Create(ctx, *model.NewPenFromApiCreateResource(create))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrDuplicatePen(create.Name)
		}
		return nil, err
	}
	out := PenToApi(pen)
	return &out, nil
}

func (s *PenService) GetPen(ctx context.Context, id uuid.UUID) (*api.Pen, error) {
	pen, err := s.store.Pen().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrPenNotFound(id)
		}
		return nil, err
	}
	out := PenToApi(pen)
	return &out, nil
}

func (s *PenService) ListPens(ctx context.Context) (api.PenList, error) {
	pens, err := s.store.Pen().List(ctx)
	if err != nil {
		return nil, err
	}
	return PenListToApi(pens), nil
}

func (s *PenService) DeletePen(ctx context.Context, id uuid.UUID) error {
	return s.store.Pen().Delete(ctx, id)
}
