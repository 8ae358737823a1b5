// Package planner computes the layer-to-pen plot order for a job. It is a
// pure function of its inputs: no I/O, no clock, no store access.
package planner

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/store/model"
)

// Estimator converts a layer's geometry counters into an expected plot
// duration in seconds. The model behind it lives outside the planner.
type Estimator func(features model.LayerFeatures) float64

// Plan is the planner output. PlotOrder is always a permutation of the input
// layer ids.
type Plan struct {
	PlotOrder        []uuid.UUID
	EstimatedSwaps   int
	EstimatedSeconds float64
}

type ErrUnassignedPen struct {
	LayerID uuid.UUID
}

func (e *ErrUnassignedPen) Error() string {
	return fmt.Sprintf("layer %s has no pen assigned", e.LayerID)
}

// Compute orders the layers for plotting.
//
// In preserve_order mode layers keep their original order_index order and
// swaps are merely counted. In optimize mode layers are partitioned into
// per-pen groups; groups are ordered by the smallest order_index they
// contain, layers within a group keep their relative order. That yields
// exactly distinct_pens-1 swaps, the minimum achievable for a fixed multiset
// of pen-labeled layers.
func Compute(layers []model.Layer, mode api.PlanMode, estimate Estimator, penChangeOverheadSeconds float64) (Plan, error) {
	if len(layers) == 0 {
		return Plan{PlotOrder: []uuid.UUID{}}, nil
	}

	sorted := make([]model.Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderIndex < sorted[j].OrderIndex
	})

	for i := range sorted {
		if sorted[i].PenID == nil {
			return Plan{}, &ErrUnassignedPen{LayerID: sorted[i].ID}
		}
	}

	var ordered []model.Layer
	switch mode {
	case api.PlanModeOptimize:
		ordered = groupByPen(sorted)
	default:
		ordered = sorted
	}

	plan := Plan{PlotOrder: make([]uuid.UUID, 0, len(ordered))}
	for i := range ordered {
		plan.PlotOrder = append(plan.PlotOrder, ordered[i].ID)
		if i > 0 && *ordered[i].PenID != *ordered[i-1].PenID {
			plan.EstimatedSwaps++
		}
		if estimate != nil {
			plan.EstimatedSeconds += estimate(ordered[i].FeatureStats())
		}
	}
	plan.EstimatedSeconds += float64(plan.EstimatedSwaps) * penChangeOverheadSeconds

	return plan, nil
}

// groupByPen partitions layers into pen groups ordered by first appearance.
// The input is already sorted by order_index, so first appearance order
// equals smallest-order_index order and within-group relative order is
// preserved for free.
func groupByPen(sorted []model.Layer) []model.Layer {
	groupIdx := make(map[uuid.UUID]int)
	groups := make([][]model.Layer, 0)

	for _, layer := range sorted {
		idx, seen := groupIdx[*layer.PenID]
		if !seen {
			idx = len(groups)
			groupIdx[*layer.PenID] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], layer)
	}

	out := make([]model.Layer, 0, len(sorted))
	for _, group := range groups {
		out = append(out, group...)
	}
	return out
}

// Default duration model parameters, used when no pen-specific speed cap
// applies.
const (
	DefaultSpeedMMS    = 50.0
	DefaultLiftSeconds = 0.5
)

// NewTravelEstimator builds the default duration model: drawn path length at
// a constant speed plus a fixed cost per pen lift.
func NewTravelEstimator(speedMMS, liftSeconds float64) Estimator {
	return func(f model.LayerFeatures) float64 {
		if speedMMS <= 0 {
			return 0
		}
		return f.PathLengthMM/speedMMS + float64(f.PenLiftCount)*liftSeconds
	}
}

// DistinctPens counts the different pens assigned across the layers.
// Layers without a pen are ignored.
func DistinctPens(layers []model.Layer) int {
	pens := make(map[uuid.UUID]struct{})
	for i := range layers {
		if layers[i].PenID != nil {
			pens[*layers[i].PenID] = struct{}{}
		}
	}
	return len(pens)
}
