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

// Package synth generates procedural HDR test frames that mimic the output of
// a stochastic renderer: a bright sun in a gradient sky, a checkered ground
// plane with per-checker material masks, emissive accents, and per-pixel shot
// noise. Radiance passes through half-precision quantization so the frames
// carry the same precision as real renderer output.
package synth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mrjoshuak/go-openexr/half"
	"github.com/valyala/fastrand"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Generates a sequence of procedural frames. Takes zero inputs and produces
// Frames outputs, numbered from 0. The sun drifts across the sky over the
// sequence so developing it exercises temporal eye adaptation.
type OpSynth struct {
	ops.OpBase
	Frames   int       `json:"frames"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Seed     uint32    `json:"seed"`
	Noise    float32   `json:"noise"`    // shot noise amplitude relative to radiance
	SunLum   float32   `json:"sunLum"`   // radiance of the sun disc
	Sun      []float32 `json:"sun"`      // screen-space sun position of frame 0, in [0,1]x[0,1]
	SunDrift []float32 `json:"sunDrift"` // sun position change per frame
}

var _ ops.Operator = (*OpSynth)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSynthDefault() }) } // register the operator for JSON decoding

func NewOpSynthDefault() *OpSynth { return NewOpSynth(1, 640, 360, 0) }

func NewOpSynth(frames, width, height int, seed uint32) *OpSynth {
	return &OpSynth{
		OpBase:   ops.OpBase{Type: "synth", Active: true},
		Frames:   frames,
		Width:    width,
		Height:   height,
		Seed:     seed,
		Noise:    0.15,
		SunLum:   40,
		Sun:      []float32{0.7, 0.22},
		SunDrift: []float32{-0.01, 0.002},
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSynth) UnmarshalJSON(data []byte) error {
	type defaults OpSynth
	def := defaults(*NewOpSynthDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSynth(def)
	return nil
}

// Produces one promise per frame of the sequence. Ignores any inputs.
func (op *OpSynth) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) > 0 {
		return nil, errors.New(fmt.Sprintf("%s operator with non-zero input", op.Type))
	}
	if op.Frames < 1 || op.Width < 1 || op.Height < 1 {
		return nil, errors.New(fmt.Sprintf("%s operator with invalid dimensions %dx%dx%d", op.Type, op.Width, op.Height, op.Frames))
	}
	if len(op.Sun) != 2 {
		return nil, errors.New(fmt.Sprintf("%s operator needs a two-component sun position, have %d", op.Type, len(op.Sun)))
	}
	for i := 0; i < op.Frames; i++ {
		id := i
		outs = append(outs, func() (*frame.Frame, error) {
			f := op.render(id)
			fmt.Fprintf(c.Log, "%d: Synthesized %s frame with sun at (%.3f,%.3f)\n",
				f.ID, f.Color.DimensionsToString(), f.Meta.Sun[0], f.Meta.Sun[1])
			return f, nil
		})
	}
	return outs, nil
}

// Scene constants. The horizon splits sky above from ground below; emissive
// accents are small super-bright patches on the ground that feed the bloom.
const (
	horizonFrac   = 0.62
	checkerSize   = 0.08 // checker edge length relative to the focal length
	groundAlbedoA = 0.45
	groundAlbedoB = 0.2
	numAccents    = 3
	accentLum     = 12
)

// render builds frame number id of the sequence.
func (op *OpSynth) render(id int) *frame.Frame {
	w, h := op.Width, op.Height
	f := frame.NewFrame(w, h)
	f.ID = id
	f.GBuf = frame.NewBuffer(w, h, 4)
	f.Meta.DeltaT = frame.DefaultDeltaT
	f.Meta.Sun = []float32{
		op.Sun[0] + float32(id)*op.SunDrift[0],
		op.Sun[1] + float32(id)*op.SunDrift[1],
	}

	sunX := f.Meta.Sun[0] * float32(w-1)
	sunY := f.Meta.Sun[1] * float32(h-1)
	sunR := 0.03 * float32(h)
	horizon := horizonFrac * float32(h)

	zenith := linearRGB(225, 0.55, 0.35)   // deep blue overhead
	horizonT := linearRGB(32, 0.25, 0.85)  // warm haze at the horizon
	sunTint := linearRGB(45, 0.12, 1)      // near-white sun

	rng := fastrand.RNG{}
	rng.Seed(op.Seed + uint32(id)*2654435761 + 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, b, mask, nx, ny, nz, z float32
			if float32(y) < horizon {
				r, g, b = skyRadiance(float32(x), float32(y), horizon, zenith, horizonT)
				dx, dy := float32(x)-sunX, float32(y)-sunY
				if d := sqrtf(dx*dx + dy*dy); d < sunR {
					t := 1 - d/sunR
					r += op.SunLum * t * sunTint[0]
					g += op.SunLum * t * sunTint[1]
					b += op.SunLum * t * sunTint[2]
				}
				// sky: no surface hit, geometry stays zero
			} else {
				r, g, b, mask, z = op.groundRadiance(x, y, w, h, horizon)
				nx, ny, nz = 0, 1, 0 // flat ground, up normal
			}

			if op.Noise > 0 {
				// triangular shot noise, one deviate per channel
				r *= 1 + op.Noise*(uniform(&rng)+uniform(&rng)-1)
				g *= 1 + op.Noise*(uniform(&rng)+uniform(&rng)-1)
				b *= 1 + op.Noise*(uniform(&rng)+uniform(&rng)-1)
			}

			o := f.Color.Offset(x, y)
			f.Color.Data[o] = halfQuantize(r)
			f.Color.Data[o+1] = halfQuantize(g)
			f.Color.Data[o+2] = halfQuantize(b)
			f.Color.Data[o+3] = mask
			go_ := f.GBuf.Offset(x, y)
			f.GBuf.Data[go_] = nx
			f.GBuf.Data[go_+1] = ny
			f.GBuf.Data[go_+2] = nz
			f.GBuf.Data[go_+3] = z
		}
	}
	return f
}

// skyRadiance blends from the zenith tint at the top of the frame to the
// horizon tint at the horizon line.
func skyRadiance(x, y, horizon float32, zenith, horizonT [3]float32) (r, g, b float32) {
	t := y / horizon
	if t > 1 {
		t = 1
	}
	t *= t // haze concentrates near the horizon
	return frame.Lerp(zenith[0], horizonT[0], t),
		frame.Lerp(zenith[1], horizonT[1], t),
		frame.Lerp(zenith[2], horizonT[2], t)
}

// groundRadiance shades the perspective checkerboard below the horizon and
// returns radiance, the per-checker material mask and the hit distance.
// Emissive accent checkers glow far above the scene's average luminance.
func (op *OpSynth) groundRadiance(x, y, w, h int, horizon float32) (r, g, b, mask, z float32) {
	// perspective: rows close to the horizon are far away
	focal := 0.5 * float32(h)
	depth := focal / (float32(y) - horizon + 1)
	worldX := (float32(x) - 0.5*float32(w)) * depth / focal
	u := worldX / (checkerSize * focal)
	v := depth / (checkerSize * focal)
	cu, cv := int(math.Floor(float64(u))), int(math.Floor(float64(v)))

	albedo := float32(groundAlbedoA)
	mask = 0
	if (cu+cv)&1 != 0 {
		albedo = groundAlbedoB
		mask = 1
	}

	// fixed emissive accents, hashed onto checker coordinates
	for i := 0; i < numAccents; i++ {
		hash := uint32(i+1) * 2654435761
		if cu == int(hash%7)-3 && cv == int((hash>>8)%5)+2 {
			lum := float32(accentLum) * (1 + 0.5*float32(i))
			tint := linearRGB(float64(i)*120+10, 0.7, 1)
			return lum * tint[0], lum * tint[1], lum * tint[2], 1, depth
		}
	}

	fade := 1 / (1 + 0.1*depth) // cheap distance haze
	lum := albedo * fade
	return lum, lum * 0.95, lum * 0.85, mask, depth
}

// halfQuantize rounds a radiance value through IEEE half precision, the
// precision a real renderer delivers its buffers in.
func halfQuantize(v float32) float32 {
	return half.FromFloat32(v).Float32()
}

// Linear RGB triple for an HSV tint.
func linearRGB(hue, sat, val float64) [3]float32 {
	col := colorful.Hsv(math.Mod(hue+360, 360), sat, val)
	r, g, b := col.LinearRgb()
	return [3]float32{float32(r), float32(g), float32(b)}
}

// Uniform deviate in [0,1).
func uniform(rng *fastrand.RNG) float32 {
	return float32(rng.Uint32n(1<<24)) * (1.0 / (1 << 24))
}

func sqrtf(x float32) float32 { return float32(math.Sqrt(float64(x))) }
