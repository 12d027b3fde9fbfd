package util

import (
	"testing"
)

func TestNewStats(t *testing.T) {
	stats := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	if stats.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", stats.Mean)
	}
	if stats.Min != 2 {
		t.Errorf("Expected min 2, got %f", stats.Min)
	}
	if stats.Max != 9 {
		t.Errorf("Expected max 9, got %f", stats.Max)
	}
	if stats.StdDeviation != 2 {
		t.Errorf("Expected std deviation 2, got %f", stats.StdDeviation)
	}
}

func TestNewStatsEmpty(t *testing.T) {
	stats := NewStats(nil)
	if stats.Mean != 0 || stats.Min != 0 || stats.Max != 0 {
		t.Errorf("Expected zero stats for empty input, got %+v", stats)
	}
}

func TestSizeHistogramBasics(t *testing.T) {
	h := NewSizeHistogram()

	sizes := []int{10, 100, 1000, 10000}
	for _, s := range sizes {
		h.AddSample(s)
	}

	if h.GetCount() != int64(len(sizes)) {
		t.Errorf("Expected count %d, got %d", len(sizes), h.GetCount())
	}

	if h.TotalSize() != 11110 {
		t.Errorf("Expected total size 11110, got %d", h.TotalSize())
	}

	if h.AverageSize() != 11110/4 {
		t.Errorf("Expected average %d, got %d", 11110/4, h.AverageSize())
	}
}

func TestSizeHistogramPercentiles(t *testing.T) {
	h := NewSizeHistogram()

	// all samples in the 64..256 bucket
	for i := 0; i < 100; i++ {
		h.AddSample(128)
	}

	median := h.MedianEstimate()
	if median < 64 || median > 256 {
		t.Errorf("Expected median estimate within bucket [64,256], got %d", median)
	}

	p99 := h.GetPercentileEstimate(99)
	if p99 < 64 || p99 > 256 {
		t.Errorf("Expected p99 estimate within bucket [64,256], got %d", p99)
	}
}

func TestSizeHistogramReset(t *testing.T) {
	h := NewSizeHistogram()
	h.AddSample(100)
	h.Reset()

	if h.GetCount() != 0 || h.TotalSize() != 0 || h.AverageSize() != 0 {
		t.Errorf("Expected empty histogram after reset")
	}
}

func TestHashStringDistinctSeeds(t *testing.T) {
	s := "collection/key"
	if HashString(s, 1) == HashString(s, 2) {
		t.Errorf("Expected different hashes for different seeds")
	}
	if HashString(s, 1) != HashString(s, 1) {
		t.Errorf("Expected deterministic hash for equal seed")
	}
}
