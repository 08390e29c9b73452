package resync

import (
	"fmt"

	"dvrestore/internal/dv"
	"dvrestore/internal/faults"
)

// Schedule is the exact per-frame sample count law for a system and rate.
// The cumulative count through frame n is round_half_up(n*rate/frameRate).
type Schedule struct {
	system dv.System
	rate   int64
	num    int64 // frame rate numerator
	den    int64 // frame rate denominator
	period int
	band   dv.SampleRange
}

// NewSchedule builds the schedule for a system and sample rate.
func NewSchedule(system dv.System, rate int) (Schedule, error) {
	band, ok := dv.SamplesPerFrameRange(system, rate)
	if !ok {
		return Schedule{}, fmt.Errorf("%w: no sample schedule for %s at %d Hz", faults.ErrInvalidInput, system, rate)
	}
	fr := system.FrameRate()
	s := Schedule{
		system: system,
		rate:   int64(rate),
		num:    fr.Num().Int64(),
		den:    fr.Denom().Int64(),
		band:   band,
	}
	s.period = int(s.num / gcd(s.rate*s.den, s.num))
	return s, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (s Schedule) System() dv.System { return s.system }

func (s Schedule) Rate() int { return int(s.rate) }

// Period returns the number of frames after which the pattern repeats.
func (s Schedule) Period() int { return s.period }

// PeriodSamples returns the samples in one full period.
func (s Schedule) PeriodSamples() int64 {
	return s.Cumulative(int64(s.period))
}

// Band returns the samples-per-frame range the tape format allows.
func (s Schedule) Band() dv.SampleRange { return s.band }

// InBand reports whether a frame's actual count lies inside the band.
func (s Schedule) InBand(count int) bool {
	return count >= s.band.Min && count <= s.band.Max
}

// Cumulative returns the exact sample count through frame n.
func (s Schedule) Cumulative(n int64) int64 {
	return floorDiv(2*n*s.rate*s.den+s.num, 2*s.num)
}

// Expected returns the sample count frame i must carry.
func (s Schedule) Expected(i int64) int {
	return int(s.Cumulative(i+1) - s.Cumulative(i))
}

// Phase returns the position of frame i within the period.
func (s Schedule) Phase(i int64) int {
	p := int64(s.period)
	return int(((i % p) + p) % p)
}

// PeriodStart returns the first frame of the period containing i.
func (s Schedule) PeriodStart(i int64) int64 {
	return i - int64(s.Phase(i))
}

// Seconds converts a sample count to seconds at the schedule's rate.
func (s Schedule) Seconds(samples int64) float64 {
	return float64(samples) / float64(s.rate)
}
