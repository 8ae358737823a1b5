package service_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/executor"
	"github.com/plotterd/plotterd/internal/fsm"
	"github.com/plotterd/plotterd/internal/guard"
	"github.com/plotterd/plotterd/internal/optimizer"
	"github.com/plotterd/plotterd/internal/service"
	"github.com/plotterd/plotterd/internal/store"
)

func TestJobService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Service Suite")
}

var _ = Describe("job service", Ordered, func() {
	var (
		s       store.Store
		jobs    *service.JobService
		pens    *service.PenService
		lease   *executor.Lease
		cfg     *config.Config
		workDir string
	)

	writeSourceArtifact := func(segmentsPerLayer, layers int) string {
		artifact := executor.Artifact{}
		for l := 0; l < layers; l++ {
			layer := executor.ArtifactLayer{}
			for i := 0; i < segmentsPerLayer; i++ {
				layer.Segments = append(layer.Segments, executor.Segment{X1: 0, Y1: 0, X2: 30, Y2: 40})
			}
			artifact.Layers = append(artifact.Layers, layer)
		}
		data, err := json.Marshal(artifact)
		Expect(err).To(BeNil())
		path := filepath.Join(workDir, uuid.NewString()+".json")
		Expect(os.WriteFile(path, data, 0o600)).To(Succeed())
		return path
	}

	createPen := func(name string) uuid.UUID {
		pen, err := pens.CreatePen(context.TODO(), &api.PenCreate{
			Name: name, Color: "#112233", WidthMM: 0.3, SpeedCapMMS: 80,
		})
		Expect(err).To(BeNil())
		return pen.Id
	}

	completeChecklist := func(id uuid.UUID) {
		for _, key := range cfg.Plotter.ChecklistItems {
			Expect(jobs.SetChecklistItem(context.TODO(), id, key, true)).To(Succeed())
		}
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())

		cfg = config.NewDefault()
		workDir = GinkgoT().TempDir()
		cfg.Plotter.WorkDir = workDir

		lease = executor.NewLease()
		device := executor.NewSimDevice(0)
		registry := guard.NewRegistry()
		registry.Register(guard.CategoryPreArm, guard.NewDeviceIdle(lease, s, device))
		registry.Register(guard.CategoryPreArm, guard.NewPhysicalSetup(s, guard.Setup{
			PaperSize:        cfg.Plotter.PaperSize,
			PaperOrientation: cfg.Plotter.PaperOrientation,
		}))
		registry.Register(guard.CategoryPreArm, guard.NewChecklist(s.Checklist(), cfg.Plotter.ChecklistItems))

		machine := fsm.NewMachine(s, registry, nil, nil)
		exec := executor.New(s, machine, device, lease, nil, nil, time.Second)

		jobs = service.NewJobService(s, machine, exec, lease, optimizer.NoopOptimizer{}, cfg)
		pens = service.NewPenService(s)
	})

	AfterAll(func() {
		s.Close()
	})

	Context("create", func() {
		It("persists the job in NEW with a genesis journal entry", func() {
			src := writeSourceArtifact(2, 1)
			job, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "first",
				PaperRef:   "a4",
				SourcePath: src,
				Layers:     []api.LayerCreate{{Name: "outline", OrderIndex: 0}},
			})
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStateNew))
			Expect(job.Layers).To(HaveLen(1))

			entries, err := jobs.Journal(context.TODO(), job.Id)
			Expect(err).To(BeNil())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ToState).To(Equal(api.JobStateNew))
			Expect(entries[0].Seq).To(Equal(1))
		})
	})

	Context("lifecycle", func() {
		var (
			jobID uuid.UUID
			penID uuid.UUID
		)

		BeforeAll(func() {
			penID = createPen("lifecycle pen")
			src := writeSourceArtifact(3, 2)
			job, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "lifecycle",
				PaperRef:   "a4",
				PlanMode:   api.PlanModeOptimize,
				SourcePath: src,
				Layers: []api.LayerCreate{
					{Name: "base", OrderIndex: 0, PenId: &penID},
					{Name: "detail", OrderIndex: 1},
				},
			})
			Expect(err).To(BeNil())
			jobID = job.Id
		})

		It("computes layer features during analysis", func() {
			job, err := jobs.AnalyzeJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStateAnalyzed))
		})

		It("refuses to optimize while a layer has no pen", func() {
			_, err := jobs.ApplyOptimizations(context.TODO(), jobID)
			guardErr, ok := err.(*fsm.ErrGuardFailed)
			Expect(ok).To(BeTrue())
			Expect(guardErr.Result.Guard).To(Equal("planner"))

			// The job is untouched by the rejected attempt.
			job, err := jobs.GetJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStateAnalyzed))
		})

		It("plans and lands in READY once pens are assigned", func() {
			job, err := jobs.GetJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			_, err = jobs.AssignPen(context.TODO(), jobID, job.Layers[1].Id, penID)
			Expect(err).To(BeNil())

			job, err = jobs.ApplyOptimizations(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStateReady))
			Expect(job.PlotOrder).To(HaveLen(2))
			Expect(*job.EstimatedSwaps).To(Equal(0))
			Expect(job.OptimizedPath).ToNot(BeEmpty())
		})

		It("blocks arming until the checklist is complete", func() {
			_, err := jobs.ArmJob(context.TODO(), jobID)
			guardErr, ok := err.(*fsm.ErrGuardFailed)
			Expect(ok).To(BeTrue())
			Expect(guardErr.Result.Guard).To(Equal("checklist"))

			// A blocked arm must not leak the device lease.
			_, held := lease.Holder()
			Expect(held).To(BeFalse())
		})

		It("arms once the checklist is complete and holds the lease", func() {
			completeChecklist(jobID)

			job, err := jobs.ArmJob(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStateArmed))
			Expect(job.HeartbeatAt).ToNot(BeNil())

			holder, held := lease.Holder()
			Expect(held).To(BeTrue())
			Expect(holder).To(Equal(jobID))
		})

		It("rejects arming a second job while the device is claimed", func() {
			otherPen := createPen("second pen")
			src := writeSourceArtifact(1, 1)
			other, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "contender",
				PaperRef:   "a4",
				SourcePath: src,
				Layers:     []api.LayerCreate{{Name: "only", OrderIndex: 0, PenId: &otherPen}},
			})
			Expect(err).To(BeNil())

			_, err = jobs.ArmJob(context.TODO(), other.Id)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrDeviceBusy{}))
		})

		It("plots to completion and releases the device", func() {
			job, err := jobs.StartPlot(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal(api.JobStatePlotting))

			Eventually(func() api.JobState {
				got, err := jobs.GetJob(context.TODO(), jobID)
				if err != nil {
					return ""
				}
				return got.State
			}, 5*time.Second, 10*time.Millisecond).Should(Equal(api.JobStateCompleted))

			_, held := lease.Holder()
			Expect(held).To(BeFalse())

			// The journal records the full path and its tail matches the state.
			entries, err := jobs.Journal(context.TODO(), jobID)
			Expect(err).To(BeNil())
			Expect(entries[len(entries)-1].ToState).To(Equal(api.JobStateCompleted))
		})

		It("refuses lifecycle verbs on a completed job", func() {
			_, err := jobs.ArmJob(context.TODO(), jobID)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("plan preview", func() {
		It("previews both modes without mutating the job", func() {
			penA := createPen("preview pen a")
			penB := createPen("preview pen b")
			src := writeSourceArtifact(1, 3)
			job, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "preview",
				PaperRef:   "a4",
				SourcePath: src,
				Layers: []api.LayerCreate{
					{Name: "a1", OrderIndex: 0, PenId: &penA},
					{Name: "b", OrderIndex: 1, PenId: &penB},
					{Name: "a2", OrderIndex: 2, PenId: &penA},
				},
			})
			Expect(err).To(BeNil())

			preserve, err := jobs.PlanPreview(context.TODO(), job.Id, api.PlanModePreserveOrder)
			Expect(err).To(BeNil())
			Expect(preserve.EstimatedSwaps).To(Equal(2))

			optimized, err := jobs.PlanPreview(context.TODO(), job.Id, api.PlanModeOptimize)
			Expect(err).To(BeNil())
			Expect(optimized.EstimatedSwaps).To(Equal(1))
			Expect(optimized.DistinctPens).To(Equal(2))

			got, err := jobs.GetJob(context.TODO(), job.Id)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(api.JobStateNew))
			Expect(got.PlotOrder).To(BeEmpty())
		})
	})

	Context("checklist", func() {
		It("rejects unknown checklist keys", func() {
			src := writeSourceArtifact(1, 1)
			pen := createPen("checklist pen")
			job, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "checklist job",
				PaperRef:   "a4",
				SourcePath: src,
				Layers:     []api.LayerCreate{{Name: "only", OrderIndex: 0, PenId: &pen}},
			})
			Expect(err).To(BeNil())

			Expect(jobs.SetChecklistItem(context.TODO(), job.Id, "flux_capacitor", true)).ToNot(Succeed())

			items, err := jobs.Checklist(context.TODO(), job.Id)
			Expect(err).To(BeNil())
			Expect(items).To(HaveLen(len(cfg.Plotter.ChecklistItems)))
			for _, item := range items {
				Expect(item.Done).To(BeFalse())
			}
		})
	})

	Context("delete", func() {
		It("refuses to delete a job that holds the device", func() {
			// The lifecycle job completed, so create a fresh armed one.
			pen := createPen("delete pen")
			src := writeSourceArtifact(1, 1)
			job, err := jobs.CreateJob(context.TODO(), &api.JobCreate{
				Name:       "undeletable",
				PaperRef:   "a4",
				SourcePath: src,
				Layers:     []api.LayerCreate{{Name: "only", OrderIndex: 0, PenId: &pen}},
			})
			Expect(err).To(BeNil())

			_, err = jobs.AnalyzeJob(context.TODO(), job.Id)
			Expect(err).To(BeNil())
			_, err = jobs.ApplyOptimizations(context.TODO(), job.Id)
			Expect(err).To(BeNil())
			completeChecklist(job.Id)
			_, err = jobs.ArmJob(context.TODO(), job.Id)
			Expect(err).To(BeNil())

			err = jobs.DeleteJob(context.TODO(), job.Id)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotDeletable{}))

			// Abort it, then deletion goes through.
			Expect(jobs.AbortJob(context.TODO(), job.Id, "cleanup")).To(Succeed())
			Expect(jobs.DeleteJob(context.TODO(), job.Id)).To(Succeed())

			_, err = jobs.GetJob(context.TODO(), job.Id)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})
})
