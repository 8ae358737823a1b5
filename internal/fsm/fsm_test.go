package fsm_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/guard"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

func TestMachine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "FSM Suite")
}

// rejectAll is a guard that always blocks.
type rejectAll struct{}

func (rejectAll) Name() string { return "reject_all" }
func (rejectAll) Check(_ context.Context, _ *model.Job) guard.Result {
	return guard.Result{Guard: "reject_all", Outcome: guard.OutcomeFail, Reason: "nope"}
}

var _ = Describe("machine", Ordered, func() {
	var (
		s       store.Store
		machine *fsm.Machine
	)

	newJob := func(state api.JobState) uuid.UUID {
		job := model.Job{
			ID:         uuid.New(),
			Name:       "test job",
			State:      string(state),
			PaperRef:   "a4",
			PlanMode:   string(api.PlanModePreserveOrder),
			SourcePath: "/tmp/job.json",
		}
		created, err := s.Job().Create(context.TODO(), job)
		Expect(err).To(BeNil())
		return created.ID
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())

		machine = fsm.NewMachine(s, guard.NewRegistry(), nil, nil)
	})

	AfterAll(func() {
		s.Close()
	})

	Context("transition", func() {
		It("commits the state and journals it atomically", func() {
			id := newJob(api.JobStateNew)

			job, err := machine.Transition(context.TODO(), id, api.JobStateAnalyzed, "analysis complete", nil)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(string(api.JobStateAnalyzed)))

			last, err := s.Journal().Last(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(last.FromState).To(Equal(string(api.JobStateNew)))
			Expect(last.ToState).To(Equal(string(api.JobStateAnalyzed)))
			Expect(last.Reason).To(Equal("analysis complete"))
		})

		It("rejects targets outside the allowed set", func() {
			id := newJob(api.JobStateNew)

			_, err := machine.Transition(context.TODO(), id, api.JobStatePlotting, "", nil)
			var rejected *fsm.ErrTransitionRejected
			Expect(err).To(BeAssignableToTypeOf(rejected))

			// Neither state nor journal moved.
			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(string(api.JobStateNew)))
			_, err = s.Journal().Last(context.TODO(), id)
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})

		It("rejects any transition out of a terminal state", func() {
			id := newJob(api.JobStateCompleted)

			for _, target := range api.JobStates {
				_, err := machine.Transition(context.TODO(), id, target, "", nil)
				Expect(err).ToNot(BeNil())
			}
		})

		It("keeps the journal tail equal to the job state over a full lifecycle", func() {
			id := newJob(api.JobStateNew)

			path := []api.JobState{
				api.JobStateAnalyzed,
				api.JobStateOptimized,
				api.JobStateReady,
				api.JobStateArmed,
				api.JobStatePlotting,
				api.JobStatePaused,
				api.JobStatePlotting,
				api.JobStateCompleted,
			}
			for _, target := range path {
				_, err := machine.Transition(context.TODO(), id, target, "step", nil)
				Expect(err).To(BeNil())

				job, err := s.Job().Get(context.TODO(), id)
				Expect(err).To(BeNil())
				last, err := s.Journal().Last(context.TODO(), id)
				Expect(err).To(BeNil())
				Expect(last.ToState).To(Equal(job.State))
			}

			entries, err := s.Journal().List(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(len(path)))
			for i := range entries {
				Expect(entries[i].Seq).To(Equal(i + 1))
			}
		})

		It("serializes concurrent transitions on the same job", func() {
			for round := 0; round < 10; round++ {
				id := newJob(api.JobStateNew)

				// Both targets are allowed from NEW; whichever commits
				// first must invalidate the other.
				targets := []api.JobState{api.JobStateAnalyzed, api.JobStateReady}
				errs := make([]error, len(targets))
				var wg sync.WaitGroup
				for i := range targets {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						_, errs[i] = machine.Transition(context.TODO(), id, targets[i], "race", nil)
					}(i)
				}
				wg.Wait()

				rejected := 0
				for _, err := range errs {
					if err != nil {
						Expect(err).To(BeAssignableToTypeOf(&fsm.ErrTransitionRejected{}))
						rejected++
					}
				}
				Expect(rejected).To(Equal(1))

				entries, err := s.Journal().List(context.TODO(), id)
				Expect(err).To(BeNil())
				Expect(entries).To(HaveLen(1))

				job, err := s.Job().Get(context.TODO(), id)
				Expect(err).To(BeNil())
				Expect(job.State).To(Equal(entries[0].ToState))
			}
		})

		It("holds the journal invariant over random transition sequences", func() {
			rng := rand.New(rand.NewSource(7))

			for run := 0; run < 25; run++ {
				id := newJob(api.JobStateNew)

				for step := 0; step < 40; step++ {
					job, err := s.Job().Get(context.TODO(), id)
					Expect(err).To(BeNil())
					if api.JobState(job.State).IsTerminal() {
						break
					}

					// Targets are drawn from every state, so disallowed
					// picks must be rejected without a journal write.
					target := api.JobStates[rng.Intn(len(api.JobStates))]
					before, err := s.Journal().List(context.TODO(), id)
					Expect(err).To(BeNil())

					_, terr := machine.Transition(context.TODO(), id, target, "walk", nil)
					after, err := s.Journal().List(context.TODO(), id)
					Expect(err).To(BeNil())

					if terr != nil {
						Expect(terr).To(BeAssignableToTypeOf(&fsm.ErrTransitionRejected{}))
						Expect(after).To(HaveLen(len(before)))
						got, err := s.Job().Get(context.TODO(), id)
						Expect(err).To(BeNil())
						Expect(got.State).To(Equal(job.State))
						continue
					}
					Expect(after).To(HaveLen(len(before) + 1))

					got, err := s.Job().Get(context.TODO(), id)
					Expect(err).To(BeNil())
					last, err := s.Journal().Last(context.TODO(), id)
					Expect(err).To(BeNil())
					Expect(last.ToState).To(Equal(got.State))
				}

				// A walk abandoned mid-sequence reads like a crash: whatever
				// was committed must still satisfy the invariant on reload.
				job, err := s.Job().Get(context.TODO(), id)
				Expect(err).To(BeNil())
				entries, err := s.Journal().List(context.TODO(), id)
				Expect(err).To(BeNil())
				if len(entries) > 0 {
					Expect(entries[len(entries)-1].ToState).To(Equal(job.State))
					for i := 1; i < len(entries); i++ {
						Expect(entries[i].FromState).To(Equal(entries[i-1].ToState))
					}
				}
			}
		})

		It("sets the heartbeat only in device-holding states", func() {
			id := newJob(api.JobStateReady)

			job, err := machine.Transition(context.TODO(), id, api.JobStateArmed, "", nil)
			Expect(err).To(BeNil())
			Expect(job.HeartbeatAt).ToNot(BeNil())

			job, err = machine.Transition(context.TODO(), id, api.JobStateFailed, "device gone", nil)
			Expect(err).To(BeNil())
			Expect(job.HeartbeatAt).To(BeNil())
		})
	})

	Context("guards", func() {
		It("blocks the transition and leaves no trace when a guard fails", func() {
			db, err := store.InitDB(config.NewDefault())
			Expect(err).To(BeNil())
			guarded := store.NewStore(db)
			defer guarded.Close()
			Expect(guarded.InitialMigration()).To(Succeed())

			registry := guard.NewRegistry()
			registry.Register(guard.CategoryPreArm, rejectAll{})
			m := fsm.NewMachine(guarded, registry, nil, nil)

			job, err := guarded.Job().Create(context.TODO(), model.Job{
				ID:         uuid.New(),
				Name:       "guarded",
				State:      string(api.JobStateReady),
				PaperRef:   "a4",
				PlanMode:   string(api.PlanModePreserveOrder),
				SourcePath: "/tmp/job.json",
			})
			Expect(err).To(BeNil())

			_, err = m.Transition(context.TODO(), job.ID, api.JobStateArmed, "", nil)
			var guardErr *fsm.ErrGuardFailed
			Expect(err).To(BeAssignableToTypeOf(guardErr))

			got, err := guarded.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(string(api.JobStateReady)))
		})
	})

	Context("planner integration", func() {
		It("persists the plot order when entering the optimized state", func() {
			pen := uuid.New()
			layerID := uuid.New()
			job := model.Job{
				ID:         uuid.New(),
				Name:       "planned",
				State:      string(api.JobStateAnalyzed),
				PaperRef:   "a4",
				PlanMode:   string(api.PlanModeOptimize),
				SourcePath: "/tmp/job.json",
				Layers: []model.Layer{
					{ID: layerID, Name: "outline", OrderIndex: 0, PenID: &pen},
				},
			}
			created, err := s.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())

			got, err := machine.Transition(context.TODO(), created.ID, api.JobStateOptimized, "plan computed", nil)
			Expect(err).To(BeNil())
			Expect(got.PlotOrderIDs()).To(Equal([]uuid.UUID{layerID}))
			Expect(*got.EstimatedSwaps).To(Equal(0))
			Expect(got.Layers[0].Planned).To(BeTrue())
		})

		It("surfaces an unassigned pen as a planner guard failure", func() {
			job := model.Job{
				ID:         uuid.New(),
				Name:       "unplannable",
				State:      string(api.JobStateAnalyzed),
				PaperRef:   "a4",
				PlanMode:   string(api.PlanModeOptimize),
				SourcePath: "/tmp/job.json",
				Layers: []model.Layer{
					{ID: uuid.New(), Name: "orphan", OrderIndex: 0},
				},
			}
			created, err := s.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())

			_, err = machine.Transition(context.TODO(), created.ID, api.JobStateOptimized, "", nil)
			guardErr, ok := err.(*fsm.ErrGuardFailed)
			Expect(ok).To(BeTrue())
			Expect(guardErr.Result.Guard).To(Equal("planner"))
		})
	})
})
