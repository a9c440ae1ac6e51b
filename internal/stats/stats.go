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


// Package stats provides the log-luminance histogram and cheap sampled
// estimators for per-frame diagnostics.
package stats

import (
	"fmt"
	"math"
	"github.com/valyala/fastrand"
	"github.com/mfichtner/afterglow/internal/median"
	"github.com/mfichtner/afterglow/internal/qsort"
)

// Number of random samples drawn for the per-frame diagnostic estimators.
const DiagSamples = 4095


// Basic summary of a pixel plane, logged when frames are loaded and saved.
type Summary struct {
	Min  float32
	Mean float32
	Max  float32
}

func (s Summary) String() string {
	return fmt.Sprintf("min %.4g mean %.4g max %.4g", s.Min, s.Mean, s.Max)
}

// Summarize scans the full data once. Ignores non-finite values.
func Summarize(data []float32) Summary {
	s:=Summary{Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
	sum, n:=float64(0), 0
	for _,d:=range data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) { continue }
		if d<s.Min { s.Min=d }
		if d>s.Max { s.Max=d }
		sum+=float64(d)
		n++
	}
	if n==0 { return Summary{} }
	s.Mean=float32(sum/float64(n))
	return s
}


// Calculates fast approximate median of the (presumably large) data by
// subsampling and taking the median of the samples.
// Uses the provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i,_:=range samples {
		index:=rng.Uint32n(max)
		samples[i]=data[index]
	}
	return median.MedianFloat32(samples)
}

// SampledStats estimates the median, the first quartile dark level and the
// standard deviation of a (presumably large) plane from a fixed number of
// random samples, so the per-frame diagnostic log stays cheap on large frames.
func SampledStats(data []float32, numSamples int) (med, dark, sigma float32) {
	samples:=make([]float32, numSamples)
	med=FastApproxMedian(data, samples)
	dark=qsort.QSelectFirstQuartileFloat32(samples)
	sigma=FastApproxStdDev(data, med, numSamples)
	return med, dark, sigma
}

// Calculates fast approximate standard deviation of the (presumably large)
// data around the given location by subsampling.
func FastApproxStdDev(data []float32, location float32, numSamples int) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	sumSqDiff:=float32(0)
	for i:=0; i<numSamples; i++ {
		index:=rng.Uint32n(max)
		diff:=data[index]-location
		sumSqDiff+=diff*diff
	}
	variance:=sumSqDiff/float32(numSamples)
	return float32(math.Sqrt(float64(variance)))
}
