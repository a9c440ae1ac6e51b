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

package exposure

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

func uniformFrame(width, height int, lum float32) *frame.Frame {
	f := frame.NewFrame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f.Color.Set(x, y, 0, lum)
			f.Color.Set(x, y, 1, lum)
			f.Color.Set(x, y, 2, lum)
			f.Color.Set(x, y, 3, 1)
		}
	}
	return f
}

func near(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// Uniform luminance 1 lands in bucket 48. The cuts fall at fractions 0.4 and
// 0.9 of that one bucket, so the measured average is the bucket center
// 2^0.078125 and the bright luminance 2^0.140625.
func TestAutoExposureUniform(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(16, 16, 1)
	f.Meta.DeltaT = 1000 // converge in a single step

	// degenerate pixels carry no exposure information
	f.Color.Set(0, 0, 0, 0)
	f.Color.Set(0, 0, 1, 0)
	f.Color.Set(0, 0, 2, 0)
	f.Color.Set(1, 0, 0, float32(math.NaN()))
	f.Color.Set(2, 0, 2, float32(math.Inf(1)))

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	e := c.Exposure
	if !near(float64(e.AvgLum), 1.05564, 2e-3) {
		t.Errorf("AvgLum=%v; want about 1.0556", e.AvgLum)
	}
	if !near(float64(e.BrightLum), 1.10238, 2e-3) {
		t.Errorf("BrightLum=%v; want about 1.1024", e.BrightLum)
	}
	if !near(float64(e.EV), 0.15659, 2e-3) {
		t.Errorf("EV=%v; want about 0.1566", e.EV)
	}
}

func TestAutoExposureSmoothing(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	op := NewOpAutoExposureDefault()
	f := uniformFrame(8, 8, 1)
	f.Meta.DeltaT = 0.1

	if _, err := op.Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	// one step of blend 1-exp(-0.1) from the initial AvgLum of 1
	if !near(float64(c.Exposure.AvgLum), 1.005295, 1e-3) {
		t.Errorf("AvgLum=%v after one step; want about 1.00530", c.Exposure.AvgLum)
	}

	const target = 1.05564
	prev := c.Exposure.AvgLum
	for i := 0; i < 100; i++ {
		if _, err := op.Apply(f, c); err != nil {
			t.Fatalf("apply %d: %s", i, err)
		}
		cur := c.Exposure.AvgLum
		if cur < prev {
			t.Fatalf("AvgLum fell from %v to %v during adaptation", prev, cur)
		}
		if float64(cur) > target+1e-3 {
			t.Fatalf("AvgLum=%v overshot target %v", cur, target)
		}
		prev = cur
	}
	if !near(float64(prev), target, 1e-3) {
		t.Errorf("AvgLum=%v after adaptation; want about %v", prev, target)
	}
}

// Two equal luminance populations at 0.25 and 4. The dark cut removes 80% of
// the lower population, the bright cut keeps 80% of the upper one, so the
// average leans heavily on the bright population and the bright luminance
// sits at the 0.95 scale position, luminance 4.
func TestAutoExposureBimodal(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(16, 16, 0.25)
	for y := 0; y < 16; y++ {
		for x := 8; x < 16; x++ {
			f.Color.Set(x, y, 0, 4)
			f.Color.Set(x, y, 1, 4)
			f.Color.Set(x, y, 2, 4)
		}
	}
	f.Meta.DeltaT = 1000

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	e := c.Exposure
	if !near(float64(e.AvgLum), 3.1496, 2e-2) {
		t.Errorf("AvgLum=%v; want about 3.1496", e.AvgLum)
	}
	if !near(float64(e.BrightLum), 4.0, 2e-2) {
		t.Errorf("BrightLum=%v; want about 4.0", e.BrightLum)
	}
	if e.EV <= 0 {
		t.Errorf("EV=%v; want positive", e.EV)
	}
}

// An all-dark frame lands in the bottom histogram bucket, whose center
// luminance falls below the lower clamp, so both measured luminances settle
// on 0.1 and the exposure gain stays positive and finite.
func TestAutoExposureClampDark(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(8, 8, 1e-4)
	f.Meta.DeltaT = 1000 // converge in a single step

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	e := c.Exposure
	if !near(float64(e.AvgLum), 0.1, 1e-4) {
		t.Errorf("AvgLum=%v on all-dark frame; want the 0.1 clamp", e.AvgLum)
	}
	if !near(float64(e.BrightLum), 0.1, 1e-4) {
		t.Errorf("BrightLum=%v on all-dark frame; want the 0.1 clamp", e.BrightLum)
	}
	if !(e.EV > 0) || !frame.IsFinite(e.EV) {
		t.Errorf("EV=%v on all-dark frame; want positive and finite", e.EV)
	}
	if !near(float64(e.EV), 0.50278, 2e-3) {
		t.Errorf("EV=%v on all-dark frame; want about 0.5028", e.EV)
	}
}

// An all-bright frame lands in the top histogram bucket. Its center luminance
// 2^2.421875 stays inside the [0.1, 10] range, so the state caps out there
// instead of following the scene luminance.
func TestAutoExposureClampBright(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(8, 8, 1e4)
	f.Meta.DeltaT = 1000

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	e := c.Exposure
	if e.AvgLum < 0.1 || e.AvgLum > 10 {
		t.Errorf("AvgLum=%v on all-bright frame; want within [0.1, 10]", e.AvgLum)
	}
	if e.BrightLum < 0.1 || e.BrightLum > 10 {
		t.Errorf("BrightLum=%v on all-bright frame; want within [0.1, 10]", e.BrightLum)
	}
	if !near(float64(e.AvgLum), 5.3590, 2e-3) {
		t.Errorf("AvgLum=%v on all-bright frame; want the top bucket center 5.3590", e.AvgLum)
	}
	if !near(float64(e.BrightLum), 5.5959, 2e-3) {
		t.Errorf("BrightLum=%v on all-bright frame; want about 5.5959", e.BrightLum)
	}
	if !(e.EV > 0) || !frame.IsFinite(e.EV) {
		t.Errorf("EV=%v on all-bright frame; want positive and finite", e.EV)
	}
}

func TestAutoExposureRejectsGain(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(4, 4, 1)

	if _, err := NewOpAutoExposure(0, 1).Apply(f, c); err == nil {
		t.Errorf("gain 0 accepted; want error")
	}
	if _, err := NewOpAutoExposure(-1, 1).Apply(f, c); err == nil {
		t.Errorf("negative gain accepted; want error")
	}
	if e := c.Exposure; e.EV != 1 || e.AvgLum != 1 || e.BrightLum != 2 {
		t.Errorf("state changed on rejected gain: %+v", e)
	}
}

func TestAutoExposureEmptyHistogram(t *testing.T) {
	log := &bytes.Buffer{}
	c := ops.NewContext(log)
	f := frame.NewFrame(8, 8) // all black, nothing to meter

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	e := c.Exposure
	if e.EV != 1 || e.AvgLum != 1 || e.BrightLum != 2 {
		t.Errorf("state changed on black frame: %+v", e)
	}
	if !strings.Contains(log.String(), "keeping exposure state") {
		t.Errorf("no skip notice logged, log: %s", log.String())
	}
}

func TestAutoExposureManualOverride(t *testing.T) {
	c := ops.NewContext(&bytes.Buffer{})
	f := uniformFrame(8, 8, 1)
	f.Meta.DeltaT = 1000
	f.Meta.Exposure = 2.5

	if _, err := NewOpAutoExposureDefault().Apply(f, c); err != nil {
		t.Fatalf("apply: %s", err)
	}
	if c.Exposure.EV != 2.5 {
		t.Errorf("EV=%v with manual override; want 2.5", c.Exposure.EV)
	}
	if !near(float64(c.Exposure.AvgLum), 1.05564, 2e-3) {
		t.Errorf("AvgLum=%v; adaptation should continue under manual exposure", c.Exposure.AvgLum)
	}
}
