package tokens

import (
	"sync"
	"testing"
)

func TestCalibrationBiasBounds(t *testing.T) {
	tests := []struct {
		name    string
		samples [][2]int // (estimated, actual)
		minBias float64
		maxBias float64
	}{
		{
			name:    "actual far above estimated clamps high",
			samples: [][2]int{{100, 1000}},
			minBias: MaxBiasFactor,
			maxBias: MaxBiasFactor,
		},
		{
			name:    "actual far below estimated clamps low",
			samples: [][2]int{{1000, 10}},
			minBias: MinBiasFactor,
			maxBias: MinBiasFactor,
		},
		{
			name:    "agreement stays at 1.0",
			samples: [][2]int{{500, 500}, {300, 300}},
			minBias: 1.0,
			maxBias: 1.0,
		},
		{
			name:    "mild overshoot within bounds",
			samples: [][2]int{{1000, 1100}},
			minBias: 1.1,
			maxBias: 1.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewCalibrationStore()
			for _, s := range tt.samples {
				store.RecordSample(FamilyClaude, s[0], s[1])
			}
			bias, n := store.BiasFactor(FamilyClaude)
			if n != len(tt.samples) {
				t.Errorf("samples = %d, want %d", n, len(tt.samples))
			}
			if bias < tt.minBias || bias > tt.maxBias {
				t.Errorf("bias = %f, want in [%f, %f]", bias, tt.minBias, tt.maxBias)
			}
		})
	}
}

func TestCalibrationRejectsPathologicalSamples(t *testing.T) {
	store := NewCalibrationStore()

	store.RecordSample(FamilyClaude, 0, 500)
	store.RecordSample(FamilyClaude, -10, 500)
	store.RecordSample(FamilyClaude, 500, 0)
	store.RecordSample(FamilyClaude, 500, -1)

	bias, n := store.BiasFactor(FamilyClaude)
	if n != 0 {
		t.Errorf("samples = %d, want 0 after rejecting invalid input", n)
	}
	if bias != 1.0 {
		t.Errorf("bias = %f, want 1.0 with no samples", bias)
	}
}

func TestCalibrationRollingWindow(t *testing.T) {
	store := NewCalibrationStore()

	// Old pessimistic samples, then a long run of accurate ones. The window
	// cap must let the accurate run dominate.
	for i := 0; i < 5; i++ {
		store.RecordSample(FamilyGPT, 100, 200)
	}
	for i := 0; i < MaxCalibrationSamples; i++ {
		store.RecordSample(FamilyGPT, 100, 100)
	}

	bias, n := store.BiasFactor(FamilyGPT)
	if n != MaxCalibrationSamples {
		t.Errorf("samples = %d, want window cap %d", n, MaxCalibrationSamples)
	}
	if bias != 1.0 {
		t.Errorf("bias = %f, want 1.0 once old samples rolled out", bias)
	}
}

func TestCalibrationConcurrentRecording(t *testing.T) {
	store := NewCalibrationStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.RecordSample(FamilyClaude, 100, 110)
			}
		}()
	}
	wg.Wait()

	bias, n := store.BiasFactor(FamilyClaude)
	if n != MaxCalibrationSamples {
		t.Errorf("samples = %d, want %d", n, MaxCalibrationSamples)
	}
	if bias < 1.09 || bias > 1.11 {
		t.Errorf("bias = %f, want ~1.1", bias)
	}
}

func TestCalibrationReset(t *testing.T) {
	store := NewCalibrationStore()
	store.RecordSample(FamilyClaude, 100, 120)
	store.Reset()

	bias, n := store.BiasFactor(FamilyClaude)
	if n != 0 || bias != 1.0 {
		t.Errorf("after Reset: bias %f samples %d, want 1.0 and 0", bias, n)
	}
}
