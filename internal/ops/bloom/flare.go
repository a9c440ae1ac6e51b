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
	"encoding/json"
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/valyala/fastrand"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Overlays a procedural lens flare when the gbuffer reports the sun's screen
// position unoccluded. Ghost elements sit on the line from the sun through
// the image center, as mirrored reflections in a real lens stack would, with
// all parameters derived from a hash of the element index. The same seed
// reproduces the same flare on every frame of a sequence.
type OpLensFlare struct {
	ops.OpUnaryBase
	Strength float32 `json:"strength"`
	Elements int     `json:"elements"`
	Seed     uint32  `json:"seed"`
}

var _ ops.Operator = (*OpLensFlare)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpLensFlareDefault() }) } // register the operator for JSON decoding

func NewOpLensFlareDefault() *OpLensFlare { return NewOpLensFlare(1, 7) }

func NewOpLensFlare(strength float32, elements int) *OpLensFlare {
	op := OpLensFlare{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "lensFlare", Active: strength > 0}},
		Strength:    strength,
		Elements:    elements,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpLensFlare) UnmarshalJSON(data []byte) error {
	type defaults OpLensFlare
	def := defaults(*NewOpLensFlareDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpLensFlare(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpLensFlare) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.Strength <= 0 {
		return f, nil
	}
	if !f.Meta.HasSun() || f.GBuf == nil {
		return f, nil
	}
	w, h := f.Color.Width, f.Color.Height
	sx := f.Meta.Sun[0] * float32(w-1)
	sy := f.Meta.Sun[1] * float32(h-1)
	xi, yi := int(sx+0.5), int(sy+0.5)
	if xi < 0 || xi >= w || yi < 0 || yi >= h {
		return f, nil // sun outside the viewport, nothing to test against
	}
	if f.GBuf.At(xi, yi, 3) > 0 {
		return f, nil // scene geometry occludes the sun
	}

	minDim := float32(w)
	if h < w {
		minDim = float32(h)
	}
	base := op.Strength * c.Exposure.BrightLum

	rng := seededRNG(op.Seed, 0)
	aniso := 0.3 + 0.3*uniform(&rng)
	phase := 2 * float32(math.Pi) * uniform(&rng)
	gr, gg, gb := tintRGB(48, 0.22)
	addGlow(f.Color, sx, sy, 0.1*minDim, 0.4*base, aniso, phase, gr, gg, gb, c.MaxThreads)

	cx, cy := 0.5*float32(w), 0.5*float32(h)
	ax, ay := cx-sx, cy-sy
	for i := 0; i < op.Elements; i++ {
		rng := seededRNG(op.Seed, uint32(i+1))
		u := 0.3 + 1.6*uniform(&rng)
		radius := (0.015 + 0.05*uniform(&rng)) * minDim
		kind := i % 4
		if kind == flareDot {
			radius *= 0.3
		}
		hue := float64(190 + 100*(u-0.3)/1.6 + 40*uniform(&rng))
		inten := base * (0.02 + 0.04*uniform(&rng))
		rot := 2 * float32(math.Pi) * uniform(&rng)
		e := flareElement{
			kind:      kind,
			x:         sx + u*ax,
			y:         sy + u*ay,
			radius:    radius,
			intensity: inten,
			cosR:      cosf(rot),
			sinR:      sinf(rot),
		}
		e.tintR, e.tintG, e.tintB = tintRGB(hue, 0.55)
		addElement(f.Color, e, c.MaxThreads)
	}
	fmt.Fprintf(c.Log, "%d: Lens flare with %d elements and sun glow at (%.0f,%.0f)\n", f.ID, op.Elements, sx, sy)
	return f, nil
}

// Flare element kinds, cycled by element index.
const (
	flareCircle = iota
	flareRing
	flareDot
	flareHex
)

type flareElement struct {
	kind                int
	x, y                float32 // center in pixel coordinates
	radius              float32
	intensity           float32
	tintR, tintG, tintB float32
	cosR, sinR          float32 // glint rotation
}

// Closed-form membership profile of an element at offset (dx, dy) from its
// center, in [0,1]. Zero outside 1.2 times the radius, which addElement uses
// as its clip bound.
func (e *flareElement) profile(dx, dy float32) float32 {
	switch e.kind {
	case flareRing:
		d := sqrtf(dx*dx + dy*dy)
		t := 1 - absf(d-0.8*e.radius)/(0.2*e.radius)
		if t <= 0 {
			return 0
		}
		return t * t
	case flareDot:
		t := 1 - (dx*dx+dy*dy)/(e.radius*e.radius)
		if t <= 0 {
			return 0
		}
		return t * t
	case flareHex:
		rx := dx*e.cosR + dy*e.sinR
		ry := dy*e.cosR - dx*e.sinR
		if rx < 0 {
			rx = -rx
		}
		if ry < 0 {
			ry = -ry
		}
		d := ry
		if v := rx*0.866025404 + ry*0.5; v > d {
			d = v
		}
		t := 4 * (1 - d/e.radius)
		if t <= 0 {
			return 0
		}
		if t > 1 {
			t = 1
		}
		return t
	default: // flareCircle
		d := sqrtf(dx*dx + dy*dy)
		t := 1 - d/e.radius
		if t <= 0 {
			return 0
		}
		return t * t
	}
}

func addElement(dst *frame.Buffer, e flareElement, maxThreads int) {
	x0, x1, y0, y1 := clipBox(dst, e.x, e.y, 1.2*e.radius)
	if x0 >= x1 || y0 >= y1 {
		return
	}
	ops.ForEachRowBand(y1-y0, maxThreads, func(lo, hi int) {
		for y := y0 + lo; y < y0+hi; y++ {
			dy := float32(y) - e.y
			o := dst.Offset(x0, y)
			for x := x0; x < x1; x++ {
				dx := float32(x) - e.x
				if p := e.profile(dx, dy); p > 0 {
					dst.Data[o] += e.intensity * p * e.tintR
					dst.Data[o+1] += e.intensity * p * e.tintG
					dst.Data[o+2] += e.intensity * p * e.tintB
				}
				o += dst.Channels
			}
		}
	})
}

// Angularly modulated sun glow. The squared inverse-quadratic falloff keeps
// a finite peak at the sun position; the six-lobed cosine modulation gives
// the streaking of a real aperture. Modulation never goes negative since
// aniso stays below one.
func addGlow(dst *frame.Buffer, sx, sy, radius, intensity, aniso, phase, tr, tg, tb float32, maxThreads int) {
	x0, x1, y0, y1 := clipBox(dst, sx, sy, 6*radius)
	if x0 >= x1 || y0 >= y1 {
		return
	}
	ops.ForEachRowBand(y1-y0, maxThreads, func(lo, hi int) {
		for y := y0 + lo; y < y0+hi; y++ {
			dy := float32(y) - sy
			o := dst.Offset(x0, y)
			for x := x0; x < x1; x++ {
				dx := float32(x) - sx
				fall := 1 / (1 + (dx*dx+dy*dy)/(radius*radius))
				fall *= fall
				theta := atan2f(dy, dx)
				v := intensity * fall * (1 + aniso*cosf(6*theta+phase))
				dst.Data[o] += v * tr
				dst.Data[o+1] += v * tg
				dst.Data[o+2] += v * tb
				o += dst.Channels
			}
		}
	})
}

// Integer pixel bounds of a disc of the given radius, clipped to the buffer.
func clipBox(b *frame.Buffer, x, y, r float32) (x0, x1, y0, y1 int) {
	x0 = int(x - r)
	y0 = int(y - r)
	x1 = int(x+r) + 1
	y1 = int(y+r) + 1
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > b.Width {
		x1 = b.Width
	}
	if y1 > b.Height {
		y1 = b.Height
	}
	return x0, x1, y0, y1
}

// Deterministic per-element generator. The index hash spreads consecutive
// indices across the seed space; the guard keeps the xorshift state nonzero,
// which fastrand would otherwise replace with an arbitrary seed.
func seededRNG(seed, index uint32) fastrand.RNG {
	x := (seed + index) * 2654435761
	x ^= x >> 16
	if x == 0 {
		x = 1
	}
	rng := fastrand.RNG{}
	rng.Seed(x)
	return rng
}

// Uniform deviate in [0,1).
func uniform(rng *fastrand.RNG) float32 {
	return float32(rng.Uint32n(1<<24)) * (1.0 / (1 << 24))
}

// Linear RGB tint for a given HSV hue and saturation at full value.
func tintRGB(hue, sat float64) (r, g, b float32) {
	col := colorful.Hsv(math.Mod(hue, 360), sat, 1)
	lr, lg, lb := col.LinearRgb()
	return float32(lr), float32(lg), float32(lb)
}

func sqrtf(x float32) float32 { return float32(math.Sqrt(float64(x))) }

func cosf(x float32) float32 { return float32(math.Cos(float64(x))) }

func sinf(x float32) float32 { return float32(math.Sin(float64(x))) }

func atan2f(y, x float32) float32 { return float32(math.Atan2(float64(y), float64(x))) }

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
