package resources

import "testing"

func TestRuntimeSamplerReturnsPositiveGoroutineCount(t *testing.T) {
	s := NewRuntimeSampler()
	snap := s.Sample()
	if snap.Goroutines <= 0 {
		t.Errorf("expected a positive goroutine count, got %d", snap.Goroutines)
	}
	if snap.GOMAXPROCS <= 0 {
		t.Errorf("expected a positive GOMAXPROCS, got %d", snap.GOMAXPROCS)
	}
}

func TestRuntimeSamplerReplaysWithinInterval(t *testing.T) {
	s := NewRuntimeSampler()
	first := s.Sample()
	second := s.Sample()
	if first != second {
		t.Errorf("expected back-to-back samples within the gate interval to be identical, got %+v then %+v", first, second)
	}
}
