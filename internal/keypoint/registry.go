package keypoint

import (
	"fmt"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// blazePose is the keypoint vocabulary published by the BlazePose landmark
// model, in landmark index order.
//
//	 0 nose             11 left_shoulder    22 right_thumb
//	 1 left_eye_inner   12 right_shoulder   23 left_hip
//	 2 left_eye         13 left_elbow       24 right_hip
//	 3 left_eye_outer   14 right_elbow      25 left_knee
//	 4 right_eye_inner  15 left_wrist       26 right_knee
//	 5 right_eye        16 right_wrist      27 left_ankle
//	 6 right_eye_outer  17 left_pinky       28 right_ankle
//	 7 left_ear         18 right_pinky      29 left_heel
//	 8 right_ear        19 left_index       30 right_heel
//	 9 mouth_left       20 right_index      31 left_foot_index
//	10 mouth_right      21 left_thumb       32 right_foot_index
var blazePose = [...]string{
	"nose",
	"left_eye_inner",
	"left_eye",
	"left_eye_outer",
	"right_eye_inner",
	"right_eye",
	"right_eye_outer",
	"left_ear",
	"right_ear",
	"mouth_left",
	"mouth_right",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_pinky",
	"right_pinky",
	"left_index",
	"right_index",
	"left_thumb",
	"right_thumb",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
	"left_heel",
	"right_heel",
	"left_foot_index",
	"right_foot_index",
}

// BlazePose returns a copy of the canonical BlazePose vocabulary. The names
// and their order are the wire addressing contract: bundle messages are
// emitted as /pose/<name> in exactly this order.
func BlazePose() []string {
	out := make([]string, len(blazePose))
	copy(out, blazePose[:])
	return out
}

// Keypoint is a named landmark with its stable index
type Keypoint struct {
	Name  string
	Index int
}

// Registry is an immutable, ordered name -> index mapping
type Registry struct {
	entries []Keypoint
	byName  map[string]int
}

// Build creates a registry from names in canonical order. Indices are
// assigned contiguously from 0.
func Build(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, types.NewConfigurationError("keypoints", "keypoint list is empty")
	}

	r := &Registry{
		entries: make([]Keypoint, 0, len(names)),
		byName:  make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, types.NewConfigurationError("keypoints", "empty name at position %d", i)
		}
		if prev, dup := r.byName[name]; dup {
			return nil, types.NewConfigurationError("keypoints",
				"duplicate name %q at positions %d and %d", name, prev, i)
		}
		r.byName[name] = i
		r.entries = append(r.entries, Keypoint{Name: name, Index: i})
	}
	return r, nil
}

// MustBuild is Build for static lists; it panics on error
func MustBuild(names []string) *Registry {
	r, err := Build(names)
	if err != nil {
		panic(fmt.Sprintf("keypoint: %v", err))
	}
	return r
}

// Default returns a registry over the BlazePose vocabulary
func Default() *Registry {
	return MustBuild(blazePose[:])
}

// Lookup returns the index for name
func (r *Registry) Lookup(name string) (int, bool) {
	i, ok := r.byName[name]
	return i, ok
}

// All returns the keypoints in registry order. The returned slice is a copy.
func (r *Registry) All() []Keypoint {
	out := make([]Keypoint, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the keypoint names in registry order
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i, kp := range r.entries {
		out[i] = kp.Name
	}
	return out
}

// At returns the keypoint at index i
func (r *Registry) At(i int) Keypoint {
	return r.entries[i]
}

// Len returns the number of keypoints
func (r *Registry) Len() int {
	return len(r.entries)
}
