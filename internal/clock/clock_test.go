package clock

import (
	"testing"
	"time"
)

func TestFakeAfterAdvances(t *testing.T) {
	start := time.Unix(1700000000, 0)
	f := NewFake(start)

	select {
	case got := <-f.After(50 * time.Millisecond):
		if want := start.Add(50 * time.Millisecond); !got.Equal(want) {
			t.Errorf("After fired at %v, want %v", got, want)
		}
	default:
		t.Fatal("After did not fire immediately")
	}

	if got := f.Now(); !got.Equal(start.Add(50 * time.Millisecond)) {
		t.Errorf("Now = %v after After", got)
	}
}

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Unix(1700000000, 0)
	f := NewFake(start)

	f.Advance(-time.Second)
	if got := f.Now(); !got.Equal(start.Add(-time.Second)) {
		t.Errorf("Now = %v, want %v", got, start.Add(-time.Second))
	}

	later := start.Add(time.Hour)
	f.Set(later)
	if got := f.Now(); !got.Equal(later) {
		t.Errorf("Now = %v, want %v", got, later)
	}
}
