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

package bloom

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// A dim frame whose gbuffer reports sky everywhere, so the sun is never
// occluded.
func skyFrame(width, height int) *frame.Frame {
	f := frame.NewFrame(width, height)
	f.GBuf = frame.NewBuffer(width, height, 4)
	for i := 0; i < len(f.GBuf.Data); i += 4 {
		f.GBuf.Data[i+2] = 1
		f.GBuf.Data[i+3] = -1
	}
	for i := 0; i < len(f.Color.Data); i += 4 {
		f.Color.Data[i], f.Color.Data[i+1], f.Color.Data[i+2], f.Color.Data[i+3] = 0.01, 0.01, 0.01, 1
	}
	return f
}

func TestLensFlareOverlay(t *testing.T) {
	f := skyFrame(24, 24)
	f.Meta.Sun = []float32{0.25, 0.25}
	before := append([]float32(nil), f.Color.Data...)
	log := &bytes.Buffer{}
	c := ops.NewContext(log)

	f, err := NewOpLensFlareDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	sum := float32(0)
	for i, v := range f.Color.Data {
		if i%4 == 3 {
			if v != before[i] {
				t.Fatalf("mask channel changed at %d", i)
			}
			continue
		}
		if v < before[i] {
			t.Fatalf("pixel darkened at %d: %v -> %v", i, before[i], v)
		}
		sum += v - before[i]
	}
	if sum <= 0 {
		t.Errorf("flare added no energy")
	}
	o := f.Color.Offset(6, 6) // sun position
	if f.Color.Data[o]-before[o] < 1e-3 {
		t.Errorf("sun glow missing at sun position, gain %v", f.Color.Data[o]-before[o])
	}
	if !strings.Contains(log.String(), "Lens flare with 7 elements") {
		t.Errorf("log %q misses flare summary", log.String())
	}
}

func TestLensFlareOccluded(t *testing.T) {
	f := skyFrame(24, 24)
	f.Meta.Sun = []float32{0.25, 0.25}
	for i := 3; i < len(f.GBuf.Data); i += 4 {
		f.GBuf.Data[i] = 5 // geometry in front of the sun
	}
	before := append([]float32(nil), f.Color.Data...)
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpLensFlareDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i, v := range f.Color.Data {
		if v != before[i] {
			t.Fatalf("occluded flare wrote pixel %d: %v -> %v", i, before[i], v)
		}
	}
}

func TestLensFlareNoSun(t *testing.T) {
	f := skyFrame(16, 16)
	before := append([]float32(nil), f.Color.Data...)
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpLensFlareDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i, v := range f.Color.Data {
		if v != before[i] {
			t.Fatalf("flare without sun position wrote pixel %d", i)
		}
	}
}

func TestLensFlareSunOffscreen(t *testing.T) {
	f := skyFrame(16, 16)
	f.Meta.Sun = []float32{1.5, 0.5}
	before := append([]float32(nil), f.Color.Data...)
	c := ops.NewContext(&bytes.Buffer{})

	f, err := NewOpLensFlareDefault().Apply(f, c)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i, v := range f.Color.Data {
		if v != before[i] {
			t.Fatalf("offscreen sun wrote pixel %d", i)
		}
	}
}

func TestLensFlareDeterministic(t *testing.T) {
	render := func() []float32 {
		f := skyFrame(24, 24)
		f.Meta.Sun = []float32{0.7, 0.3}
		c := ops.NewContext(&bytes.Buffer{})
		f, err := NewOpLensFlareDefault().Apply(f, c)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		return f.Color.Data
	}
	a, b := render(), render()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("flare differs between identical frames at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
