// Copyright (C) 2026 Moritz Fichtner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stats

import (
	"errors"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/optimize"
)

// Number of log-luminance buckets. The scale maps luminance L to
// x = 0.1*log2(L) + 0.75 clamped to [0,1], so the buckets cover
// 2^-7.5 .. 2^+2.5, about ten stops around middle gray.
const HistogramBins = 64

// LogHistogram counts pixels on the logarithmic luminance scale.
// Counters are unsigned and incremented atomically so concurrent row bands
// can accumulate into the same histogram. Reset and rebuilt every frame.
type LogHistogram struct {
	Counts [HistogramBins]uint32
}

// LogLuminancePos maps a luminance value to its position on the normalized
// log scale, clamped to [0,1].
func LogLuminancePos(lum float32) float32 {
	x := 0.1*float32(math.Log2(float64(lum))) + 0.75
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// LuminanceAt inverts the log scale: the luminance whose position is x.
func LuminanceAt(x float32) float32 {
	return float32(math.Exp2(float64((x - 0.75) / 0.1)))
}

// BucketOf quantizes a scale position into a bucket index.
func BucketOf(x float32) int {
	b := int(x * HistogramBins)
	if b > HistogramBins-1 {
		b = HistogramBins - 1
	}
	return b
}

// BucketCenterLum returns the luminance at the center of bucket b.
func BucketCenterLum(b int) float32 {
	return LuminanceAt((float32(b) + 0.5) / HistogramBins)
}

// Reset zeroes all counters.
func (h *LogHistogram) Reset() {
	for i := range h.Counts {
		h.Counts[i] = 0
	}
}

// Add counts one luminance sample. Not safe for concurrent use.
func (h *LogHistogram) Add(lum float32) {
	h.Counts[BucketOf(LogLuminancePos(lum))]++
}

// AddAtomic counts one luminance sample, safe for concurrent use.
func (h *LogHistogram) AddAtomic(lum float32) {
	atomic.AddUint32(&h.Counts[BucketOf(LogLuminancePos(lum))], 1)
}

// Total returns the number of counted samples.
func (h *LogHistogram) Total() uint32 {
	sum := uint32(0)
	for _, c := range h.Counts {
		sum += c
	}
	return sum
}

// Cut scans buckets upward from (startBucket, startMass), accumulating
// normalized histogram mass until it crosses the given threshold. It returns
// the crossing bucket and the fractional position of the crossing within
// that bucket, so cut lines are sub-bucket accurate. startMass carries the
// mass already consumed by a previous cut; resuming a scan at the returned
// bucket with mass equal to the threshold continues where the cut left off.
// The histogram must not be empty.
func (h *LogHistogram) Cut(threshold float64, startBucket int, startMass float64) (bucket int, frac float64) {
	total := float64(h.Total())
	cum := startMass
	for b := startBucket; b < HistogramBins; b++ {
		m := float64(h.Counts[b]) / total
		if b == startBucket && startMass > 0 {
			// skip the mass a previous cut already consumed in this bucket
			consumed := startMass - h.massBelow(b, total)
			m -= consumed
		}
		if m > 0 && cum+m >= threshold {
			full := float64(h.Counts[b]) / total
			return b, (threshold - h.massBelow(b, total)) / full
		}
		cum += m
	}
	return HistogramBins - 1, 1
}

// massBelow returns the normalized mass of all buckets before b.
func (h *LogHistogram) massBelow(b int, total float64) float64 {
	sum := uint32(0)
	for i := 0; i < b; i++ {
		sum += h.Counts[i]
	}
	return float64(sum) / total
}

// WeightedMeanLum returns the mass-weighted mean bucket-center luminance
// over the partial bucket range from (b0, f0) to (b1, f1), where f marks the
// fractional position within the boundary bucket. Returns 0 if the range
// carries no mass.
func (h *LogHistogram) WeightedMeanLum(b0 int, f0 float64, b1 int, f1 float64) float32 {
	sumW, sumWL := float64(0), float64(0)
	for b := b0; b <= b1; b++ {
		w := float64(h.Counts[b])
		if b == b0 && b == b1 {
			w *= f1 - f0
		} else if b == b0 {
			w *= 1 - f0
		} else if b == b1 {
			w *= f1
		}
		if w <= 0 {
			continue
		}
		sumW += w
		sumWL += w * float64(BucketCenterLum(b))
	}
	if sumW == 0 {
		return 0
	}
	return float32(sumWL / sumW)
}

// Peak returns the bucket with the largest count and that count.
func (h *LogHistogram) Peak() (bucket int, count uint32) {
	for i, c := range h.Counts {
		if c > count {
			bucket, count = i, c
		}
	}
	return bucket, count
}

// FitGaussian fits a Gaussian to the histogram with Nelder-Mead, minimizing
// the RMS distance between bucket counts and the scaled normal density.
// Returns the mode position on the [0,1] log scale and the sigma in scale
// units. Used for per-frame scene statistics diagnostics.
func (h *LogHistogram) FitGaussian() (mode, sigma float32, err error) {
	peakBucket, peakCount := h.Peak()
	if peakCount == 0 {
		return 0, 0, errors.New("empty histogram")
	}
	peakX := (float64(peakBucket) + 0.5) / HistogramBins

	x0 := []float64{float64(peakCount), peakX, 0.1}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sig := x[0], x[1], x[2]
			scaler := alpha / (sig * math.Sqrt(2*math.Pi))
			sumSqDiff := float64(0)
			for b, c := range h.Counts {
				bx := (float64(b) + 0.5) / HistogramBins
				xms := (bx - mu) / sig
				predict := scaler * math.Exp(-0.5*xms*xms)
				diff := float64(c) - predict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / HistogramBins)
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}
