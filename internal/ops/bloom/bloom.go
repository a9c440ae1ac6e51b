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

// Package bloom spreads thresholded highlight energy across the image via
// the mip pyramid, and overlays the procedural lens flare when the sun is
// visible.
package bloom

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/kernel"
	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/ops/scale"
)

// Thresholds and blurs each mip level into a highlight buffer, then adds the
// upsampled highlights back onto the full-resolution color buffer. The
// threshold tracks the smoothed bright luminance from the exposure state, so
// bloom fades in and out with eye adaptation instead of popping.
type OpBloom struct {
	ops.OpUnaryBase
	Strength float32 `json:"strength"`
}

var _ ops.Operator = (*OpBloom)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBloomDefault() }) } // register the operator for JSON decoding

func NewOpBloomDefault() *OpBloom { return NewOpBloom(0.05) }

func NewOpBloom(strength float32) *OpBloom {
	op := OpBloom{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "bloom", Active: strength > 0}},
		Strength:    strength,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBloom) UnmarshalJSON(data []byte) error {
	type defaults OpBloom
	def := defaults(*NewOpBloomDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpBloom(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpBloom) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.Strength <= 0 {
		return f, nil
	}
	if len(f.Mips) == 0 {
		return nil, fmt.Errorf("%d: frame has no mip pyramid for bloom", f.ID)
	}
	for _, b := range f.Bloom {
		b.Release()
	}
	f.Bloom = nil

	bright := c.Exposure.BrightLum
	for _, mip := range f.Mips {
		thresholded := threshold(mip, bright, c.MaxThreads)
		blurred := blur5(thresholded, c.MaxThreads)
		thresholded.Release()
		f.Bloom = append(f.Bloom, blurred)
	}
	composite(f.Color, f.Bloom, op.Strength, c.MaxThreads)
	fmt.Fprintf(c.Log, "%d: Bloom from %d mip levels with cutoff luminance %.3f\n", f.ID, len(f.Bloom), bright)
	return f, nil
}

// Soft-knee highlight extraction into a fresh 3-channel buffer. The scale
// factor t/L preserves hue; the 1e-4 floor avoids dividing by a black pixel.
func threshold(src *frame.Buffer, bright float32, maxThreads int) *frame.Buffer {
	out := frame.NewBufferFromPool(src.Width, src.Height, 3)
	ops.ForEachRowBand(src.Height, maxThreads, func(yLo, yHi int) {
		for y := yLo; y < yHi; y++ {
			i := src.Offset(0, y)
			o := out.Offset(0, y)
			for x := 0; x < src.Width; x++ {
				r, g, b := src.Data[i], src.Data[i+1], src.Data[i+2]
				l := frame.Luminance(r, g, b)
				if frame.IsFinite(l) && l*l > bright {
					t := float32(math.Sqrt(float64(l*l - bright)))
					den := l
					if den < 1e-4 {
						den = 1e-4
					}
					s := t / den
					out.Data[o], out.Data[o+1], out.Data[o+2] = r*s, g*s, b*s
				} else {
					out.Data[o], out.Data[o+1], out.Data[o+2] = 0, 0, 0
				}
				i += src.Channels
				o += 3
			}
		}
	})
	return out
}

// Convolves a 3-channel buffer with the 5x5 box-averaged Gaussian table,
// clamping taps at the borders.
func blur5(src *frame.Buffer, maxThreads int) *frame.Buffer {
	out := frame.NewBufferFromPool(src.Width, src.Height, 3)
	t := &kernel.Gauss5
	r := t.Radius()
	ops.ForEachRowBand(src.Height, maxThreads, func(yLo, yHi int) {
		for y := yLo; y < yHi; y++ {
			o := out.Offset(0, y)
			for x := 0; x < src.Width; x++ {
				var acc [3]float32
				for dy := -r; dy <= r; dy++ {
					yy := clampTap(y+dy, src.Height-1)
					for dx := -r; dx <= r; dx++ {
						xx := clampTap(x+dx, src.Width-1)
						w := t.At(dx, dy)
						s := src.Offset(xx, yy)
						acc[0] += w * src.Data[s]
						acc[1] += w * src.Data[s+1]
						acc[2] += w * src.Data[s+2]
					}
				}
				out.Data[o], out.Data[o+1], out.Data[o+2] = acc[0], acc[1], acc[2]
				o += 3
			}
		}
	})
	return out
}

// Adds the Catmull-Rom-upsampled highlight mips onto the full-resolution
// color buffer. Undershoot from the cubic kernel is clamped to zero so the
// composite never darkens a pixel.
func composite(dst *frame.Buffer, mips []*frame.Buffer, strength float32, maxThreads int) {
	ops.ForEachRowBand(dst.Height, maxThreads, func(yLo, yHi int) {
		px := make([]float32, 3)
		for _, m := range mips {
			scaleX := float32(m.Width) / float32(dst.Width)
			scaleY := float32(m.Height) / float32(dst.Height)
			for y := yLo; y < yHi; y++ {
				v := (float32(y)+0.5)*scaleY - 0.5
				o := dst.Offset(0, y)
				for x := 0; x < dst.Width; x++ {
					u := (float32(x)+0.5)*scaleX - 0.5
					scale.CatmullRom16(m, u, v, px)
					for ch := 0; ch < 3; ch++ {
						if px[ch] > 0 {
							dst.Data[o+ch] += strength * px[ch]
						}
					}
					o += dst.Channels
				}
			}
		}
	})
}

func clampTap(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
