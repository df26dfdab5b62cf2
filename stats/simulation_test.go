package stats

import (
	"testing"

	"github.com/fileguard/fileguard/types"
)

func TestComputeMaxFileSizeByCount95(t *testing.T) {
	size := types.SizeDistribution{}
	for i := uint64(1); i <= 100; i++ {
		size[types.FileKey{Device: 1, Inode: i}] = i * 10
	}
	got := ComputeMaxFileSizeByCount95(size)
	if got != 950 {
		t.Errorf("ComputeMaxFileSizeByCount95() = %d, want 950 (95th of 10..1000)", got)
	}
}

func TestComputeMaxFileSizeByCount95Empty(t *testing.T) {
	if got := ComputeMaxFileSizeByCount95(types.SizeDistribution{}); got != 0 {
		t.Errorf("ComputeMaxFileSizeByCount95(empty) = %d, want 0", got)
	}
}

func TestComputeMaxFileSize95WeightsByHits(t *testing.T) {
	small := types.FileKey{Device: 1, Inode: 1}
	large := types.FileKey{Device: 1, Inode: 2}
	size := types.SizeDistribution{small: 100, large: 10000}
	access := types.AccessDistribution{small: 95, large: 5}

	got := ComputeMaxFileSize95(access, size)
	if got != 100 {
		t.Errorf("ComputeMaxFileSize95() = %d, want 100 (95%% of opens hit the small file)", got)
	}
}

func TestComputeMaxFileSize95NoHits(t *testing.T) {
	if got := ComputeMaxFileSize95(types.AccessDistribution{}, types.SizeDistribution{}); got != 0 {
		t.Errorf("ComputeMaxFileSize95(empty) = %d, want 0", got)
	}
}

func makeUniformEvents(n int, size uint64) []types.TraceEvent {
	events := make([]types.TraceEvent, n)
	for i := range events {
		events[i] = types.TraceEvent{
			TimestampNs: int64(i),
			Key:         types.FileKey{Device: 1, Inode: uint64(i % 5)},
			SizeBytes:   size,
			Op:          types.OpOpen,
		}
	}
	return events
}

func TestTestK95EMAOnlineFirstWindowHasNoPrior(t *testing.T) {
	events := makeUniformEvents(50, 100)
	report := TestK95EMAOnline(events, 10, 5, 0.3, 1.5)
	if len(report.Windows) == 0 {
		t.Fatal("expected at least one window")
	}
	if report.Windows[0].HasPrior {
		t.Error("the first window must not have a prior EMA to test against")
	}
}

func TestTestK95EMAOnlineDeterministic(t *testing.T) {
	events := makeUniformEvents(200, 100)
	a := TestK95EMAOnline(events, 20, 10, 0.2, 1.2)
	b := TestK95EMAOnline(events, 20, 10, 0.2, 1.2)
	if a.FinalEMA != b.FinalEMA || a.PassCount != b.PassCount {
		t.Errorf("TestK95EMAOnline is not deterministic for identical inputs: %+v vs %+v", a, b)
	}
}

func TestTestSize95EMAOnlineDeterministic(t *testing.T) {
	events := makeUniformEvents(200, 4096)
	a := TestSize95EMAOnline(events, 25, 12, 0.25, 1.3)
	b := TestSize95EMAOnline(events, 25, 12, 0.25, 1.3)
	if a.FinalEMA != b.FinalEMA || a.PassCount != b.PassCount {
		t.Errorf("TestSize95EMAOnline is not deterministic for identical inputs: %+v vs %+v", a, b)
	}
}

func TestTestK95EMAOnlineEmptyEvents(t *testing.T) {
	report := TestK95EMAOnline(nil, 10, 5, 0.3, 1.5)
	if len(report.Windows) != 0 || report.FinalEMA != 0 {
		t.Errorf("TestK95EMAOnline(nil) = %+v, want zero-value report", report)
	}
}
