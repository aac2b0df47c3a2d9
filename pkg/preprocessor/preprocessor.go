// Package preprocessor normalizes an irregular timestamped sequence into a
// dense, fixed-length actigraphy array.
package preprocessor

import (
	"math"
	"sort"
	"time"

	clarityerrors "github.com/clarity-digital-twin/clarity-backend/internal/errors"
)

// DefaultTargetLength is the PAT model's required week-long, 1-sample-per-
// minute sequence length (7 * 24 * 60).
const DefaultTargetLength = 10_080

// MaxActigraphyLength is the DataValidationFailure ceiling: more than
// 20,160 points (twice the target length) is rejected outright.
const MaxActigraphyLength = 20_160

// Sample is one (timestamp, value) observation.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Preprocessor bins, windows and pads a sample sequence.
type Preprocessor struct {
	targetLength int
}

// New builds a Preprocessor for the given target length (pass
// DefaultTargetLength for the standard PAT week).
func New(targetLength int) *Preprocessor {
	if targetLength <= 0 {
		targetLength = DefaultTargetLength
	}
	return &Preprocessor{targetLength: targetLength}
}

// Process implements 1-minute binning (mean within bin), windowing to the
// most recent targetLength bins, and left-padding with zeros when the
// observed span is shorter than the target.
//
// An empty input yields an all-zero vector of length targetLength rather
// than an error — only non-finite/non-numeric values within samples are a
// validation failure.
func (p *Preprocessor) Process(samples []Sample) ([]float64, error) {
	if len(samples) == 0 {
		return make([]float64, p.targetLength), nil
	}
	if len(samples) > MaxActigraphyLength {
		return nil, clarityerrors.NewDataValidation("actigraphy", "sample count exceeds maximum")
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	minBin := sorted[0].Timestamp.Unix() / 60
	maxBin := minBin
	for _, s := range sorted {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, clarityerrors.NewDataValidation("actigraphy", "non-finite sample value")
		}
		bin := s.Timestamp.Unix() / 60
		sums[bin] += s.Value
		counts[bin]++
		if bin < minBin {
			minBin = bin
		}
		if bin > maxBin {
			maxBin = bin
		}
	}

	n := int(maxBin-minBin) + 1
	if n > MaxActigraphyLength {
		return nil, clarityerrors.NewDataValidation("actigraphy", "bin span exceeds maximum")
	}

	dense := make([]float64, n)
	for bin := minBin; bin <= maxBin; bin++ {
		idx := int(bin - minBin)
		if c := counts[bin]; c > 0 {
			dense[idx] = sums[bin] / float64(c)
		}
	}

	out := make([]float64, p.targetLength)
	if n >= p.targetLength {
		// Keep the most recent targetLength bins; drop older.
		copy(out, dense[n-p.targetLength:])
	} else {
		// Left-pad with zeros (oldest bins are zero).
		copy(out[p.targetLength-n:], dense)
	}
	return out, nil
}
