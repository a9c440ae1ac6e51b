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

package post

import (
	"bytes"
	"math"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

func TestSharpenFlat(t *testing.T) {
	f := valueFrame(8, 8, 0.4, 0.4, 0.4)
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpSharpenDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			for ch := 0; ch < 3; ch++ {
				if v := f.Color.At(x, y, ch); math.Abs(float64(v)-0.4) > 1e-6 {
					t.Fatalf("flat region changed at (%d,%d,%d): %v", x, y, ch, v)
				}
			}
			if f.Color.At(x, y, 3) != 1 {
				t.Fatalf("mask channel changed at (%d,%d)", x, y)
			}
		}
	}
}

func TestSharpenStep(t *testing.T) {
	f := frame.NewFrame(8, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := float32(0.2)
			if x >= 4 {
				v = 0.8
			}
			f.Color.Set(x, y, 0, v)
			f.Color.Set(x, y, 1, v)
			f.Color.Set(x, y, 2, v)
			f.Color.Set(x, y, 3, 1)
		}
	}
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpSharpenDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	dark, bright := f.Color.At(3, 4, 0), f.Color.At(4, 4, 0)
	if math.Abs(float64(dark)-0.1) > 1e-3 {
		t.Errorf("dark side of step is %v; want 0.1", dark)
	}
	if math.Abs(float64(bright)-0.9) > 1e-3 {
		t.Errorf("bright side of step is %v; want 0.9", bright)
	}
	if v := f.Color.At(0, 4, 0); math.Abs(float64(v)-0.2) > 1e-5 {
		t.Errorf("flat area away from step changed to %v", v)
	}
}

func TestSharpenInactive(t *testing.T) {
	f := valueFrame(4, 4, 0.5, 0.5, 0.5)
	buf := f.Color
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpSharpen(0).Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.Color != buf {
		t.Errorf("inactive sharpen replaced the color buffer")
	}
}

func TestSharpenNeedsMask(t *testing.T) {
	f := frame.NewFrame(4, 4)
	f.Color = frame.NewBuffer(4, 4, 3)
	c := ops.NewContext(&bytes.Buffer{})
	if _, err := NewOpSharpenDefault().Apply(f, c); err == nil {
		t.Errorf("3-channel buffer did not fail")
	}
}
