package executor

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Artifact is the machine-ready plot file the optimizer emits: per-layer
// polyline segments in millimeters, already merged and sorted.
type Artifact struct {
	Layers []ArtifactLayer `json:"layers"`
}

type ArtifactLayer struct {
	LayerID  uuid.UUID `json:"layer_id"`
	Segments []Segment `json:"segments"`
}

type Segment struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading plot artifact %s", path)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrapf(err, "parsing plot artifact %s", path)
	}
	return &a, nil
}

// LayerByID returns the artifact layer matching id, or nil.
func (a *Artifact) LayerByID(id uuid.UUID) *ArtifactLayer {
	for i := range a.Layers {
		if a.Layers[i].LayerID == id {
			return &a.Layers[i]
		}
	}
	return nil
}

// LayerFor resolves a job layer to its artifact layer. Artifacts written by
// the daemon carry layer ids; artifacts from external tools identify layers
// by document position only, so order index is the fallback.
func (a *Artifact) LayerFor(id uuid.UUID, orderIndex int) *ArtifactLayer {
	if l := a.LayerByID(id); l != nil {
		return l
	}
	if orderIndex >= 0 && orderIndex < len(a.Layers) {
		return &a.Layers[orderIndex]
	}
	return nil
}

// TotalSegments counts segments across all layers.
func (a *Artifact) TotalSegments() int {
	n := 0
	for i := range a.Layers {
		n += len(a.Layers[i].Segments)
	}
	return n
}
