package service

import (
	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/store/model"
)

func JobToApi(j *model.Job) api.Job {
	out := api.Job{
		Id:               j.ID,
		Name:             j.Name,
		State:            api.JobState(j.State),
		StateReason:      j.StateReason,
		PaperRef:         j.PaperRef,
		PaperOrientation: j.PaperOrientation,
		PlanMode:         api.PlanMode(j.PlanMode),
		SourcePath:       j.SourcePath,
		OptimizedPath:    j.OptimizedPath,
		PlotOrder:        j.PlotOrderIDs(),
		EstimatedSwaps:   j.EstimatedSwaps,
		EstimatedSeconds: j.EstimatedSeconds,
		LastLayerIdx:     j.LastLayerIdx,
		HeartbeatAt:      j.HeartbeatAt,
		Metrics:          j.MetricsMap(),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
	out.Layers = make([]api.Layer, 0, len(j.Layers))
	for i := range j.Layers {
		out.Layers = append(out.Layers, LayerToApi(&j.Layers[i]))
	}
	return out
}

func JobListToApi(jobs model.JobList) api.JobList {
	out := make(api.JobList, 0, len(jobs))
	for i := range jobs {
		out = append(out, JobToApi(&jobs[i]))
	}
	return out
}

func LayerToApi(l *model.Layer) api.Layer {
	return api.Layer{
		Id:         l.ID,
		JobId:      l.JobID,
		Name:       l.Name,
		OrderIndex: l.OrderIndex,
		PenId:      l.PenID,
		Planned:    l.Planned,
	}
}

func PenToApi(p *model.Pen) api.Pen {
	return api.Pen{
		Id:          p.ID,
		Name:        p.Name,
		Color:       p.Color,
		WidthMM:     p.WidthMM,
		SpeedCapMMS: p.SpeedCapMMS,
	}
}

func PenListToApi(pens model.PenList) api.PenList {
	out := make(api.PenList, 0, len(pens))
	for i := range pens {
		out = append(out, PenToApi(&pens[i]))
	}
	return out
}

func JournalEntryToApi(e *model.JournalEntry) api.JournalEntry {
	return api.JournalEntry{
		JobId:     e.JobID,
		Seq:       e.Seq,
		FromState: api.JobState(e.FromState),
		ToState:   api.JobState(e.ToState),
		Reason:    e.Reason,
		Metadata:  e.MetadataMap(),
		Timestamp: e.CreatedAt,
	}
}

func JournalToApi(entries model.JournalEntryList) []api.JournalEntry {
	out := make([]api.JournalEntry, 0, len(entries))
	for i := range entries {
		out = append(out, JournalEntryToApi(&entries[i]))
	}
	return out
}

func ChecklistToApi(items []model.ChecklistItem) []api.ChecklistItem {
	out := make([]api.ChecklistItem, 0, len(items))
	for i := range items {
		out = append(out, api.ChecklistItem{Key: items[i].Key, Done: items[i].Done})
	}
	return out
}
