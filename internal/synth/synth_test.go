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

package synth

import (
	"io"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

func materialize(t *testing.T, op *OpSynth) []*frame.Frame {
	t.Helper()
	c := ops.NewContext(io.Discard)
	promises, err := op.MakePromises(nil, c)
	if err != nil {
		t.Fatalf("MakePromises: %v", err)
	}
	frames := make([]*frame.Frame, len(promises))
	for i, p := range promises {
		if frames[i], err = p(); err != nil {
			t.Fatalf("promise %d: %v", i, err)
		}
	}
	return frames
}

func TestSynthDimensionsAndCount(t *testing.T) {
	op := NewOpSynth(3, 96, 64, 7)
	frames := materialize(t, op)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.ID != i {
			t.Errorf("frame %d has ID %d", i, f.ID)
		}
		if f.Width() != 96 || f.Height() != 64 {
			t.Errorf("frame %d is %dx%d, want 96x64", i, f.Width(), f.Height())
		}
		if f.GBuf == nil {
			t.Errorf("frame %d has no geometry buffer", i)
		}
		if !f.Meta.HasSun() {
			t.Errorf("frame %d has no sun position", i)
		}
	}
}

func TestSynthDeterministic(t *testing.T) {
	a := materialize(t, NewOpSynth(1, 64, 48, 42))[0]
	b := materialize(t, NewOpSynth(1, 64, 48, 42))[0]
	for i := range a.Color.Data {
		if a.Color.Data[i] != b.Color.Data[i] {
			t.Fatalf("same seed diverges at sample %d: %g vs %g", i, a.Color.Data[i], b.Color.Data[i])
		}
	}

	c := materialize(t, NewOpSynth(1, 64, 48, 43))[0]
	same := 0
	for i := range a.Color.Data {
		if a.Color.Data[i] == c.Color.Data[i] {
			same++
		}
	}
	if same == len(a.Color.Data) {
		t.Error("different seeds produced identical frames")
	}
}

func TestSynthGeometry(t *testing.T) {
	f := materialize(t, NewOpSynth(1, 80, 60, 1))[0]

	// sky rows report no hit, ground rows a positive distance with up normal
	if z := f.GBuf.At(40, 2, 3); z > 0 {
		t.Errorf("sky pixel has hit distance %g", z)
	}
	gy := f.Height() - 2
	if z := f.GBuf.At(40, gy, 3); z <= 0 {
		t.Errorf("ground pixel has hit distance %g", z)
	}
	if ny := f.GBuf.At(40, gy, 1); ny != 1 {
		t.Errorf("ground normal y is %g, want 1", ny)
	}
}

func TestSynthSunIsBrightest(t *testing.T) {
	op := NewOpSynth(1, 120, 80, 3)
	op.Noise = 0 // keep the disc unperturbed
	f := materialize(t, op)[0]

	sx := int(f.Meta.Sun[0] * float32(f.Width()-1))
	sy := int(f.Meta.Sun[1] * float32(f.Height()-1))
	sunLum := frame.Luminance(f.Color.At(sx, sy, 0), f.Color.At(sx, sy, 1), f.Color.At(sx, sy, 2))
	if sunLum < op.SunLum*0.5 {
		t.Errorf("sun center luminance %g, want at least %g", sunLum, op.SunLum*0.5)
	}

	cornerLum := frame.Luminance(f.Color.At(1, 1, 0), f.Color.At(1, 1, 1), f.Color.At(1, 1, 2))
	if cornerLum >= sunLum {
		t.Errorf("sky corner luminance %g not below sun %g", cornerLum, sunLum)
	}
}

func TestSynthSunDrift(t *testing.T) {
	frames := materialize(t, NewOpSynth(2, 64, 48, 1))
	if frames[0].Meta.Sun[0] == frames[1].Meta.Sun[0] {
		t.Error("sun did not move between frames")
	}
}

func TestSynthRejectsBadParams(t *testing.T) {
	c := ops.NewContext(io.Discard)
	op := NewOpSynth(0, 64, 48, 1)
	if _, err := op.MakePromises(nil, c); err == nil {
		t.Error("zero frame count not rejected")
	}
	op = NewOpSynth(1, 64, 48, 1)
	op.Sun = []float32{0.5}
	if _, err := op.MakePromises(nil, c); err == nil {
		t.Error("malformed sun position not rejected")
	}
	op = NewOpSynthDefault()
	if _, err := op.MakePromises([]ops.Promise{func() (*frame.Frame, error) { return nil, nil }}, c); err == nil {
		t.Error("non-zero inputs not rejected")
	}
}
