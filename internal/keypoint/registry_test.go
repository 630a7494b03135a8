package keypoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

func TestBuildAssignsContiguousIndices(t *testing.T) {
	r, err := Build([]string{"nose", "left_shoulder", "right_shoulder"})
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	want := []Keypoint{
		{Name: "nose", Index: 0},
		{Name: "left_shoulder", Index: 1},
		{Name: "right_shoulder", Index: 2},
	}
	require.Equal(t, want, r.All())

	idx, ok := r.Lookup("left_shoulder")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = r.Lookup("left_knee")
	require.False(t, ok)
}

func TestBuildRejectsInvalidLists(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"empty", nil},
		{"duplicate", []string{"nose", "nose"}},
		{"blank name", []string{"nose", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Build(tt.names)
			if r != nil {
				t.Fatalf("Build(%v) returned registry, want nil", tt.names)
			}
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Build(%v) error = %v, want ConfigurationError", tt.names, err)
			}
			if cfgErr.Field != "keypoints" {
				t.Errorf("Field = %q, want keypoints", cfgErr.Field)
			}
		})
	}
}

func TestAllReturnsCopy(t *testing.T) {
	r := MustBuild([]string{"a", "b"})
	all := r.All()
	all[0].Name = "mutated"
	require.Equal(t, "a", r.At(0).Name)
}

func TestBlazePoseVocabulary(t *testing.T) {
	r := Default()
	require.Equal(t, 33, r.Len())
	require.Equal(t, "nose", r.At(0).Name)
	require.Equal(t, "right_foot_index", r.At(32).Name)

	idx, ok := r.Lookup("left_shoulder")
	require.True(t, ok)
	require.Equal(t, 11, idx)
}

func TestBlazePoseReturnsCopy(t *testing.T) {
	names := BlazePose()
	require.Len(t, names, 33)
	names[0] = "mutated"

	require.Equal(t, "nose", BlazePose()[0])
	require.Equal(t, "nose", Default().At(0).Name)
	_, ok := Default().Lookup("mutated")
	require.False(t, ok)
}
