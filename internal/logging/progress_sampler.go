package logging

// ProgressSampler throttles per-frame progress records. With a known frame
// estimate it emits once per percentage bucket; without one it emits every
// frameStep frames. A stage change always emits and restarts the buckets.
type ProgressSampler struct {
	bucketSize float64
	frameStep  int64
	lastStage  string
	lastBucket int64
}

// NewProgressSampler returns a sampler with bucketSize percent buckets
// (default 5) and a frameStep fallback (default 1000 frames).
func NewProgressSampler(bucketSize float64, frameStep int64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	if frameStep <= 0 {
		frameStep = 1000
	}
	return &ProgressSampler{bucketSize: bucketSize, frameStep: frameStep, lastBucket: -1}
}

// ShouldLog reports whether progress should be logged. A negative percent
// means the total is unknown and frames is used instead.
func (s *ProgressSampler) ShouldLog(stage string, percent float64, frames int64) bool {
	if s == nil {
		return true
	}
	emit := false
	if stage != s.lastStage {
		s.lastStage = stage
		s.lastBucket = -1
		emit = true
	}
	var bucket int64
	switch {
	case percent >= 100:
		bucket = int64(100 / s.bucketSize)
	case percent >= 0:
		bucket = int64(percent / s.bucketSize)
	default:
		bucket = frames / s.frameStep
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}
