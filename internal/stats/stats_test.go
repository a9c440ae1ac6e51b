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
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestSummarize(t *testing.T) {
	data := []float32{2, 4, 6, 8}
	s := Summarize(data)
	if s.Min != 2 || s.Max != 8 || s.Mean != 5 {
		t.Errorf("summary %v\n", s)
	}

	// non-finite samples are excluded from the summary
	dirty := []float32{2, float32(math.NaN()), 4, float32(math.Inf(1)), 6, 8}
	s = Summarize(dirty)
	if s.Min != 2 || s.Max != 8 || s.Mean != 5 {
		t.Errorf("summary with non-finite samples %v\n", s)
	}
}

func TestFastApproxMedian(t *testing.T) {
	rng := fastrand.RNG{}
	data := make([]float32, 4096)
	for i := range data {
		data[i] = float32(rng.Uint32n(1000))
	}
	samples := make([]float32, 512)
	med := FastApproxMedian(data, samples)
	if med < 300 || med > 700 {
		t.Errorf("approximate median %f outside plausible range for uniform data\n", med)
	}
}

func TestSampledStats(t *testing.T) {
	uniform := make([]float32, 4096)
	for i := range uniform {
		uniform[i] = 0.25
	}
	med, dark, sigma := SampledStats(uniform, DiagSamples)
	if med != 0.25 || dark != 0.25 || sigma != 0 {
		t.Errorf("med %f dark %f sigma %f on uniform data, expect 0.25 0.25 0\n", med, dark, sigma)
	}

	// on a ramp, the dark level cannot exceed the median of the same samples
	ramp := make([]float32, 4096)
	for i := range ramp {
		ramp[i] = float32(i)
	}
	med, dark, sigma = SampledStats(ramp, DiagSamples)
	if dark > med {
		t.Errorf("dark level %f above median %f\n", dark, med)
	}
	if med < 0 || med > 4095 || dark < 0 {
		t.Errorf("med %f dark %f outside the data range\n", med, dark)
	}
	if sigma <= 0 {
		t.Errorf("sigma %f on a ramp, expect positive\n", sigma)
	}
}

func TestEstimateNoise(t *testing.T) {
	width, height := 32, 32
	flat := make([]float32, width*height)
	for i := range flat {
		flat[i] = 0.5
	}
	if n := EstimateNoise(flat, width); n != 0 {
		t.Errorf("noise %f on flat data, expect 0\n", n)
	}

	// a smooth gradient is nearly invisible to the Laplacian kernel
	grad := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			grad[y*width+x] = float32(x) * 0.01
		}
	}
	gradNoise := EstimateNoise(grad, width)
	if gradNoise > 1e-4 {
		t.Errorf("noise %f on linear gradient, expect near 0\n", gradNoise)
	}

	// additive noise must dominate the gradient estimate
	rng := fastrand.RNG{}
	noisy := make([]float32, width*height)
	for i := range noisy {
		noisy[i] = grad[i] + float32(rng.Uint32n(1000))/1000.0*0.2
	}
	noisyNoise := EstimateNoise(noisy, width)
	if noisyNoise < 10*gradNoise || noisyNoise < 0.01 {
		t.Errorf("noise %f on noisy data vs %f on clean gradient\n", noisyNoise, gradNoise)
	}

	// degenerate sizes return 0 instead of dividing by zero
	if n := EstimateNoise(make([]float32, 2*width), width); n != 0 {
		t.Errorf("noise %f on 2-row image, expect 0\n", n)
	}
}
