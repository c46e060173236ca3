package tokens

import (
	"sync"
	"time"
)

// Calibration bounds. One bad sample (e.g. a provider error response) must
// not destabilize future estimates.
const (
	// MaxCalibrationSamples caps the rolling sample window per family.
	MaxCalibrationSamples = 20

	// MinBiasFactor is the lower clamp for the learned bias factor.
	MinBiasFactor = 0.85

	// MaxBiasFactor is the upper clamp for the learned bias factor.
	MaxBiasFactor = 1.20
)

type calibrationSample struct {
	estimated int
	actual    int
}

// CalibrationRecord holds the rolling sample window and the derived bias
// factor for one model family.
type CalibrationRecord struct {
	samples     []calibrationSample
	biasFactor  float64
	lastUpdated time.Time
}

// CalibrationStore keeps per-family calibration records. It is process-wide
// state shared across sessions, safe for concurrent use. The bias factor is
// always recomputed fresh from the full sample window, so interleaved writers
// cannot produce a read-modify-write hazard.
//
// The store is injectable: whichever component composes the engine owns it
// and may swap it out in tests.
type CalibrationStore struct {
	mu      sync.Mutex
	records map[Family]*CalibrationRecord
}

// NewCalibrationStore creates an empty calibration store.
func NewCalibrationStore() *CalibrationStore {
	return &CalibrationStore{
		records: make(map[Family]*CalibrationRecord),
	}
}

// RecordSample appends an (estimated, actual) pair to the family's rolling
// window and recomputes the bias factor. Non-positive samples are rejected.
func (s *CalibrationStore) RecordSample(family Family, estimated, actual int) {
	if estimated <= 0 || actual <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[family]
	if !ok {
		rec = &CalibrationRecord{biasFactor: 1.0}
		s.records[family] = rec
	}

	rec.samples = append(rec.samples, calibrationSample{estimated: estimated, actual: actual})
	if len(rec.samples) > MaxCalibrationSamples {
		rec.samples = rec.samples[len(rec.samples)-MaxCalibrationSamples:]
	}

	var sumEstimated, sumActual int
	for _, sample := range rec.samples {
		sumEstimated += sample.estimated
		sumActual += sample.actual
	}

	bias := 1.0
	if sumEstimated > 0 {
		bias = float64(sumActual) / float64(sumEstimated)
	}
	if bias < MinBiasFactor {
		bias = MinBiasFactor
	}
	if bias > MaxBiasFactor {
		bias = MaxBiasFactor
	}

	rec.biasFactor = bias
	rec.lastUpdated = time.Now()
}

// BiasFactor returns the learned bias factor for a family and the number of
// samples it is based on. Families with no samples report 1.0.
func (s *CalibrationStore) BiasFactor(family Family) (bias float64, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[family]
	if !ok || len(rec.samples) == 0 {
		return 1.0, 0
	}
	return rec.biasFactor, len(rec.samples)
}

// Reset discards all calibration state. Debug use only.
func (s *CalibrationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[Family]*CalibrationRecord)
}
