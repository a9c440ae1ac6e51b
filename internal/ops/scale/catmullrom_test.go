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

package scale

import (
	"math"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
)

func TestCatmullRomWeightsSumToOne(t *testing.T) {
	for _, tc := range []float32{0, 0.125, 0.25, 0.5, 0.75, 0.999} {
		w0, w1, w2, w3 := catmullRomWeights(tc)
		sum := w0 + w1 + w2 + w3
		if math.Abs(float64(sum)-1) > 1e-6 {
			t.Errorf("weights(%v) sum=%v; want 1", tc, sum)
		}
	}
}

func TestCatmullRomIdentity(t *testing.T) {
	b := frame.NewBuffer(4, 3, 2)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			b.Set(x, y, 0, float32(10*x+y))
			b.Set(x, y, 1, float32(x-2*y))
		}
	}
	px := make([]float32, 2)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			CatmullRom16(b, float32(x), float32(y), px)
			if px[0] != b.At(x, y, 0) || px[1] != b.At(x, y, 1) {
				t.Errorf("sample at (%d,%d)=%v; want (%v,%v)", x, y, px, b.At(x, y, 0), b.At(x, y, 1))
			}
		}
	}
}

func TestCatmullRomConstant(t *testing.T) {
	b := frame.NewBuffer(5, 4, 1)
	for i := range b.Data {
		b.Data[i] = 0.7
	}
	px := make([]float32, 1)
	for _, v := range []float32{-0.49, 0.3, 1.8, 3.5} {
		for _, u := range []float32{-0.49, 0.25, 2.6, 4.45} {
			CatmullRom16(b, u, v, px)
			if math.Abs(float64(px[0])-0.7) > 1e-5 {
				t.Errorf("sample at (%v,%v)=%v; want 0.7", u, v, px[0])
			}
		}
	}
}

func TestCatmullRomLinearRamp(t *testing.T) {
	b := frame.NewBuffer(6, 6, 1)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			b.Set(x, y, 0, float32(x))
		}
	}
	px := make([]float32, 1)
	for _, u := range []float32{1.25, 1.5, 2.75, 3.1} {
		CatmullRom16(b, u, 2.5, px)
		if math.Abs(float64(px[0]-u)) > 1e-5 {
			t.Errorf("ramp sample at u=%v is %v; want %v", u, px[0], u)
		}
	}
}
