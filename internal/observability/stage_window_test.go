package observability

import "testing"

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageSynthesize, 20000)
	w.Observe(StageSynthesize, 30000)
	w.Observe(StageSynthesize, 40000)
	w.ObserveFallback(StageUpload)
	w.ObserveFallback(StageUpload)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageSynthesize {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageSynthesize)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 40000 {
		t.Fatalf("LastMS = %.2f, want 40000", s.LastMS)
	}
	if s.P50MS != 30000 {
		t.Fatalf("P50MS = %.2f, want 30000", s.P50MS)
	}
	if s.P95MS <= 30000 || s.P95MS > 40000 {
		t.Fatalf("P95MS = %.2f, want (30000,40000]", s.P95MS)
	}
	if s.TargetP95MS != 45000 {
		t.Fatalf("TargetP95MS = %.2f, want 45000", s.TargetP95MS)
	}
	if len(snap.Fallbacks) != 1 {
		t.Fatalf("len(Fallbacks) = %d, want 1", len(snap.Fallbacks))
	}
	if snap.Fallbacks[0].Name != StageUpload || snap.Fallbacks[0].Count != 2 {
		t.Fatalf("Fallbacks[0] = %+v, want {%s 2}", snap.Fallbacks[0], StageUpload)
	}
}

func TestStageWindowRingWrap(t *testing.T) {
	w := newStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe(StagePlan, float64(i*100))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
}

func TestStageWindowIgnoresInvalidInput(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("", 100)
	w.Observe(StagePlan, -5)
	w.ObserveFallback("  ")
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Fallbacks) != 0 {
		t.Fatalf("Snapshot = %+v, want empty", snap)
	}
}

func TestStageWindowReset(t *testing.T) {
	w := newStageWindow(4)
	w.Observe(StageTotal, 1000)
	w.ObserveFallback(StageTranscode)
	w.Reset()
	snap := w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Fallbacks) != 0 {
		t.Fatalf("Snapshot after Reset = %+v, want empty", snap)
	}
}
