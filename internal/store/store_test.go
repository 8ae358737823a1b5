package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/internal/store/model"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

var _ = Describe("job store", Ordered, func() {
	var s store.Store

	newJob := func(state string) *model.Job {
		job, err := s.Job().Create(context.TODO(), model.Job{
			ID:         uuid.New(),
			Name:       "job",
			State:      state,
			PaperRef:   "a4",
			PlanMode:   "preserve_order",
			SourcePath: "/tmp/src.json",
		})
		Expect(err).To(BeNil())
		return job
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	Context("filters", func() {
		It("filters by state", func() {
			newJob(string(api.JobStateNew))
			newJob(string(api.JobStateReady))

			jobs, err := s.Job().List(context.TODO(),
				store.NewJobQueryFilter().ByState(string(api.JobStateReady)),
				store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].State).To(Equal(string(api.JobStateReady)))
		})

		It("filters by stale heartbeat", func() {
			fresh := newJob(string(api.JobStatePlotting))
			stale := newJob(string(api.JobStatePlotting))

			Expect(s.Job().UpdateHeartbeat(context.TODO(), fresh.ID, time.Now())).To(Succeed())
			Expect(s.Job().UpdateHeartbeat(context.TODO(), stale.ID, time.Now().Add(-time.Hour))).To(Succeed())

			jobs, err := s.Job().List(context.TODO(),
				store.NewJobQueryFilter().
					ByState(string(api.JobStatePlotting)).
					ByHeartbeatOlderThan(time.Now().Add(-time.Minute)),
				nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal(stale.ID))
		})
	})

	Context("layers", func() {
		It("loads layers ordered by order index", func() {
			pen := uuid.New()
			job, err := s.Job().Create(context.TODO(), model.Job{
				ID:         uuid.New(),
				Name:       "layered",
				State:      string(api.JobStateNew),
				PaperRef:   "a4",
				PlanMode:   "preserve_order",
				SourcePath: "/tmp/src.json",
				Layers: []model.Layer{
					{ID: uuid.New(), Name: "second", OrderIndex: 1, PenID: &pen},
					{ID: uuid.New(), Name: "first", OrderIndex: 0, PenID: &pen},
				},
			})
			Expect(err).To(BeNil())

			got, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.Layers).To(HaveLen(2))
			Expect(got.Layers[0].Name).To(Equal("first"))
			Expect(got.Layers[1].Name).To(Equal("second"))
		})
	})

	Context("transactions", func() {
		It("rolls back everything written under the transaction context", func() {
			job := newJob(string(api.JobStateNew))

			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.Journal().Append(txCtx, model.JournalEntry{JobID: job.ID, ToState: "queued"})
			Expect(err).To(BeNil())
			job.State = "queued"
			_, err = s.Job().Update(txCtx, job)
			Expect(err).To(BeNil())

			_, err = store.Rollback(txCtx)
			Expect(err).To(BeNil())

			got, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(string(api.JobStateNew)))
			_, err = s.Journal().Last(context.TODO(), job.ID)
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})
	})
})

var _ = Describe("journal store", Ordered, func() {
	var s store.Store

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	It("assigns strictly increasing per-job sequence numbers", func() {
		jobA, jobB := uuid.New(), uuid.New()

		for i := 0; i < 3; i++ {
			entry, err := s.Journal().Append(context.TODO(), model.JournalEntry{JobID: jobA, ToState: "new"})
			Expect(err).To(BeNil())
			Expect(entry.Seq).To(Equal(i + 1))
		}

		// A second job starts from 1 again.
		entry, err := s.Journal().Append(context.TODO(), model.JournalEntry{JobID: jobB, ToState: "new"})
		Expect(err).To(BeNil())
		Expect(entry.Seq).To(Equal(1))
	})

	It("lists entries in append order", func() {
		jobID := uuid.New()
		for _, to := range []string{"new", "analyzed", "optimized"} {
			_, err := s.Journal().Append(context.TODO(), model.JournalEntry{JobID: jobID, ToState: to})
			Expect(err).To(BeNil())
		}

		entries, err := s.Journal().List(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(entries).To(HaveLen(3))
		Expect(entries[2].ToState).To(Equal("optimized"))

		last, err := s.Journal().Last(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(last.Seq).To(Equal(3))
	})
})

var _ = Describe("checklist store", Ordered, func() {
	var s store.Store

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	It("reports required items that are not done", func() {
		jobID := uuid.New()
		required := []string{"paper_secured", "origin_set", "pen_tested"}

		missing, err := s.Checklist().Missing(context.TODO(), jobID, required)
		Expect(err).To(BeNil())
		Expect(missing).To(Equal(required))

		Expect(s.Checklist().SetItem(context.TODO(), jobID, "origin_set", true)).To(Succeed())
		missing, err = s.Checklist().Missing(context.TODO(), jobID, required)
		Expect(err).To(BeNil())
		Expect(missing).To(Equal([]string{"paper_secured", "pen_tested"}))
	})

	It("upserts toggles", func() {
		jobID := uuid.New()
		Expect(s.Checklist().SetItem(context.TODO(), jobID, "paper_secured", true)).To(Succeed())
		Expect(s.Checklist().SetItem(context.TODO(), jobID, "paper_secured", false)).To(Succeed())

		items, err := s.Checklist().List(context.TODO(), jobID)
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(1))
		Expect(items[0].Done).To(BeFalse())
	})
})
