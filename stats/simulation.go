package stats

import (
	"sort"

	"github.com/fileguard/fileguard/types"
)

// ComputeMaxFileSizeByCount95 returns the 95th-percentile file size by
// count: every distinct file in the size distribution counts once,
// regardless of how many times it was opened.
func ComputeMaxFileSizeByCount95(size types.SizeDistribution) uint64 {
	if len(size) == 0 {
		return 0
	}
	sizes := make([]uint64, 0, len(size))
	for _, s := range size {
		sizes = append(sizes, s)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	return percentileValue(sizes, 0.95)
}

func percentileValue(sorted []uint64, p float64) uint64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ComputeMaxFileSize95 returns the smallest size S such that files of
// size <= S account for at least 95% of hits (weighted by open count),
// per §4.6.
func ComputeMaxFileSize95(access types.AccessDistribution, size types.SizeDistribution) uint64 {
	type pair struct {
		size uint64
		hits uint64
	}
	pairs := make([]pair, 0, len(size))
	var total uint64
	for key, s := range size {
		hits := access[key]
		pairs = append(pairs, pair{size: s, hits: hits})
		total += hits
	}
	if total == 0 || len(pairs) == 0 {
		return 0
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].size < pairs[j].size })

	var cumulative uint64
	for _, p := range pairs {
		cumulative += p.hits
		if float64(cumulative) >= 0.95*float64(total) {
			return p.size
		}
	}
	return pairs[len(pairs)-1].size
}

// WindowDetail records one sliding window's outcome in the EMA-online
// tests.
type WindowDetail struct {
	Index      int
	Target     float64 // k95 or size95 observed for this window
	EMABefore  float64 // the EMA carried in from the previous window
	Pass       bool    // whether EMABefore*safetyFactor would have hit the coverage target
	HasPrior   bool    // false for window 0, which has no prior EMA to test
}

// EMAReport is the result of one EMA-online simulation run.
type EMAReport struct {
	FinalEMA  float64
	PassCount int
	Windows   []WindowDetail
}

// TestK95EMAOnline slides overlapping windows over events (window width
// windowSize, advanced by hopSize each step — hopSize < windowSize means
// consecutive windows share events, matching §4.6's "sliding windows";
// windows starting within windowSize of the end are cut short at the
// last event), computing per window the smallest K such that the
// top-K files by size*hits cover >=95% of the window's total bytes,
// then maintains an EMA of k95 with smoothing factor alpha. Before
// updating, it asks whether the *previous* EMA (times safetyFactor)
// would already have covered this window — the online precision/recall
// check §4.6 specifies.
func TestK95EMAOnline(events []types.TraceEvent, windowSize, hopSize int, alpha, safetyFactor float64) EMAReport {
	report := EMAReport{}
	ema := 0.0
	hasEMA := false

	for start := 0; start < len(events); start += hopSize {
		end := start + windowSize
		if end > len(events) {
			end = len(events)
		}
		window := events[start:end]

		byteContribution := make(map[types.FileKey]uint64)
		var totalBytes uint64
		for _, ev := range window {
			byteContribution[ev.Key] += ev.SizeBytes
			totalBytes += ev.SizeBytes
		}

		contributions := make([]uint64, 0, len(byteContribution))
		for _, v := range byteContribution {
			contributions = append(contributions, v)
		}
		sort.Slice(contributions, func(i, j int) bool { return contributions[i] > contributions[j] })

		k95 := smallestKForCoverage(contributions, totalBytes, 0.95)

		detail := WindowDetail{Index: len(report.Windows), Target: float64(k95), HasPrior: hasEMA}
		if hasEMA {
			detail.EMABefore = ema
			detail.Pass = coverageWithTopK(contributions, totalBytes, int(ema*safetyFactor+0.999999))
			if detail.Pass {
				report.PassCount++
			}
		}
		report.Windows = append(report.Windows, detail)

		if !hasEMA {
			ema = float64(k95)
			hasEMA = true
		} else {
			ema = alpha*float64(k95) + (1-alpha)*ema
		}
	}

	report.FinalEMA = ema
	return report
}

// TestSize95EMAOnline is the size-by-count analogue of
// TestK95EMAOnline: each window's target is the 95th-percentile file
// size by count observed in that window, EMA-smoothed the same way,
// over the same overlapping windowSize/hopSize sliding window.
func TestSize95EMAOnline(events []types.TraceEvent, windowSize, hopSize int, alpha, safetyFactor float64) EMAReport {
	report := EMAReport{}
	ema := 0.0
	hasEMA := false

	for start := 0; start < len(events); start += hopSize {
		end := start + windowSize
		if end > len(events) {
			end = len(events)
		}
		window := events[start:end]

		seen := make(map[types.FileKey]uint64)
		for _, ev := range window {
			seen[ev.Key] = ev.SizeBytes
		}
		sizes := make([]uint64, 0, len(seen))
		for _, s := range seen {
			sizes = append(sizes, s)
		}
		sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
		size95 := percentileValue(sizes, 0.95)

		detail := WindowDetail{Index: len(report.Windows), Target: float64(size95), HasPrior: hasEMA}
		if hasEMA {
			detail.EMABefore = ema
			threshold := ema * safetyFactor
			covered := 0
			for _, s := range sizes {
				if float64(s) <= threshold {
					covered++
				}
			}
			detail.Pass = len(sizes) > 0 && float64(covered) >= 0.95*float64(len(sizes))
			if detail.Pass {
				report.PassCount++
			}
		}
		report.Windows = append(report.Windows, detail)

		if !hasEMA {
			ema = float64(size95)
			hasEMA = true
		} else {
			ema = alpha*float64(size95) + (1-alpha)*ema
		}
	}

	report.FinalEMA = ema
	return report
}

// smallestKForCoverage returns the smallest K such that the sum of the
// top-K (already sorted descending) contributions covers >= target
// fraction of total.
func smallestKForCoverage(sortedDesc []uint64, total uint64, target float64) int {
	if total == 0 {
		return 0
	}
	var cumulative uint64
	for i, v := range sortedDesc {
		cumulative += v
		if float64(cumulative) >= target*float64(total) {
			return i + 1
		}
	}
	return len(sortedDesc)
}

// coverageWithTopK reports whether taking the top k (by the already
// sorted-descending contributions) covers >= 95% of total.
func coverageWithTopK(sortedDesc []uint64, total uint64, k int) bool {
	if total == 0 {
		return true
	}
	if k > len(sortedDesc) {
		k = len(sortedDesc)
	}
	var cumulative uint64
	for i := 0; i < k; i++ {
		cumulative += sortedDesc[i]
	}
	return float64(cumulative) >= 0.95*float64(total)
}
