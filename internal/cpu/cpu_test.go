package cpu

import (
	"runtime"
	"testing"
)

func TestCore_Wraps(t *testing.T) {
	n := runtime.NumCPU()
	tests := []struct {
		worker, want int
	}{
		{0, 0},
		{n, 0},
		{n + 1, 1 % n},
		{-1, n - 1},
	}
	for _, tt := range tests {
		if got := Core(tt.worker); got != tt.want {
			t.Errorf("Core(%d) = %d, want %d", tt.worker, got, tt.want)
		}
	}
}

func TestPin_ReleaseIsSafe(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		release, err := Pin(0)
		if err != nil {
			// containers may forbid affinity changes
			t.Logf("Pin: %v", err)
		}
		release()
	}()
	<-done
}
