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
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

func TestDownscaleUniform(t *testing.T) {
	src := frame.NewBuffer(16, 12, 4)
	for i := 0; i < len(src.Data); i += 4 {
		src.Data[i], src.Data[i+1], src.Data[i+2], src.Data[i+3] = 0.3, 0.6, 0.9, 1
	}
	out := Downscale4x4(src, 2)
	if out.Width != 4 || out.Height != 3 {
		t.Fatalf("output dimensions %s; want 4x3", out.DimensionsToString())
	}
	for i := 0; i < len(out.Data); i += 4 {
		if out.Data[i] != 0.3 || out.Data[i+1] != 0.6 || out.Data[i+2] != 0.9 || out.Data[i+3] != 1 {
			t.Fatalf("pixel %d is (%v,%v,%v,%v); want (0.3,0.6,0.9,1)",
				i/4, out.Data[i], out.Data[i+1], out.Data[i+2], out.Data[i+3])
		}
	}
}

func TestDownscaleGradient(t *testing.T) {
	src := frame.NewBuffer(8, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, 0, float32(x))
		}
	}
	out := Downscale4x4(src, 1)
	if out.Width != 2 || out.Height != 1 {
		t.Fatalf("output dimensions %s; want 2x1", out.DimensionsToString())
	}
	if out.Data[0] != 1.5 || out.Data[1] != 5.5 {
		t.Errorf("block means (%v,%v); want (1.5,5.5)", out.Data[0], out.Data[1])
	}
}

func TestDownscaleRemainder(t *testing.T) {
	src := frame.NewBuffer(6, 6, 1)
	for i := range src.Data {
		src.Data[i] = 1
	}
	out := Downscale4x4(src, 1)
	if out.Width != 2 || out.Height != 2 {
		t.Fatalf("output dimensions %s; want 2x2", out.DimensionsToString())
	}
	for i, v := range out.Data {
		if v != 1 {
			t.Errorf("pixel %d is %v; want 1", i, v)
		}
	}
}

func TestPyramidOp(t *testing.T) {
	f := frame.NewFrame(32, 16)
	f.ID = 7
	for i := range f.Color.Data {
		f.Color.Data[i] = 0.5
	}
	log := &bytes.Buffer{}
	c := ops.NewContext(log)

	op := NewOpPyramid(2)
	res, err := op.Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Color.Width != 32 || res.Color.Height != 16 {
		t.Errorf("color buffer resized to %s", res.Color.DimensionsToString())
	}
	if len(res.Mips) != 2 {
		t.Fatalf("got %d mip levels; want 2", len(res.Mips))
	}
	if res.Mips[0].Width != 8 || res.Mips[0].Height != 4 {
		t.Errorf("mip 0 is %s; want 8x4", res.Mips[0].DimensionsToString())
	}
	if res.Mips[1].Width != 2 || res.Mips[1].Height != 1 {
		t.Errorf("mip 1 is %s; want 2x1", res.Mips[1].DimensionsToString())
	}
	for level, m := range res.Mips {
		for i, v := range m.Data {
			if v != 0.5 {
				t.Fatalf("mip %d pixel %d is %v; want 0.5", level, i, v)
			}
		}
	}
	if !strings.Contains(log.String(), "2 mip levels") {
		t.Errorf("log %q misses pyramid summary", log.String())
	}
}

func TestPyramidStopsBelowBlockSize(t *testing.T) {
	f := frame.NewFrame(6, 6)
	c := ops.NewContext(&bytes.Buffer{})

	res, err := NewOpPyramid(3).Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Mips) != 1 {
		t.Fatalf("got %d mip levels; want 1", len(res.Mips))
	}
	if res.Mips[0].Width != 2 || res.Mips[0].Height != 2 {
		t.Errorf("mip 0 is %s; want 2x2", res.Mips[0].DimensionsToString())
	}
}

func TestResampleOp(t *testing.T) {
	f := frame.NewFrame(10, 6)
	for i := 0; i < len(f.Color.Data); i += 4 {
		f.Color.Data[i], f.Color.Data[i+1], f.Color.Data[i+2], f.Color.Data[i+3] = 0.25, 0.5, 0.75, 1
	}
	c := ops.NewContext(&bytes.Buffer{})

	res, err := NewOpResample(7, 9).Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Color.Width != 7 || res.Color.Height != 9 {
		t.Fatalf("output dimensions %s; want 7x9", res.Color.DimensionsToString())
	}
	want := [4]float32{0.25, 0.5, 0.75, 1}
	for i, v := range res.Color.Data {
		if math.Abs(float64(v-want[i%4])) > 1e-5 {
			t.Fatalf("pixel %d channel %d is %v; want %v", i/4, i%4, v, want[i%4])
		}
	}
}

func TestResampleNoOp(t *testing.T) {
	f := frame.NewFrame(8, 8)
	buf := f.Color
	c := ops.NewContext(&bytes.Buffer{})

	res, err := NewOpResample(8, 8).Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Color != buf {
		t.Errorf("same-size resample replaced the color buffer")
	}

	res, err = NewOpResampleDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Color != buf {
		t.Errorf("inactive resample replaced the color buffer")
	}
}
