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
	"encoding/json"
	"fmt"
	"math"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Contrast-adaptive sharpening on the tone-mapped buffer, per channel. The
// local soft extrema steer the negative cross lobe, so noise in flat regions
// stays put while edges tighten. Runs on display-referred values in [0,1].
type OpSharpen struct {
	ops.OpUnaryBase
	Strength float32 `json:"strength"`
}

var _ ops.Operator = (*OpSharpen)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSharpenDefault() }) } // register the operator for JSON decoding

func NewOpSharpenDefault() *OpSharpen { return NewOpSharpen(1) }

func NewOpSharpen(strength float32) *OpSharpen {
	op := OpSharpen{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "sharpen", Active: strength > 0}},
		Strength:    strength,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSharpen) UnmarshalJSON(data []byte) error {
	type defaults OpSharpen
	def := defaults(*NewOpSharpenDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpSharpen(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSharpen) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.Strength <= 0 {
		return f, nil
	}
	if f.Color.Channels != 4 {
		return nil, fmt.Errorf("%d: sharpening needs a 4-channel color buffer, have %d", f.ID, f.Color.Channels)
	}
	strength := frame.Clamp01(op.Strength)
	peak := -1 / (8 - 3*strength)

	src := f.Color
	out := frame.NewBufferFromPool(src.Width, src.Height, src.Channels)
	ops.ForEachRowBand(src.Height, c.MaxThreads, func(yLo, yHi int) {
		for y := yLo; y < yHi; y++ {
			yN, yS := clampEdge(y-1, src.Height-1), clampEdge(y+1, src.Height-1)
			o := out.Offset(0, y)
			for x := 0; x < src.Width; x++ {
				xW, xE := clampEdge(x-1, src.Width-1), clampEdge(x+1, src.Width-1)
				for ch := 0; ch < 3; ch++ {
					out.Data[o+ch] = casPixel(src, x, y, xW, xE, yN, yS, ch, peak)
				}
				out.Data[o+3] = src.At(x, y, 3)
				o += src.Channels
			}
		}
	})
	src.Release()
	f.Color = out
	fmt.Fprintf(c.Log, "%d: Sharpened with strength %.2f\n", f.ID, strength)
	return f, nil
}

// One output sample of the contrast-adaptive sharpen. The soft extrema sum
// the plus-shaped and the diagonal reduction, which doubles their range to
// [0,2] and softens the envelope compared to a true 3x3 min/max.
func casPixel(src *frame.Buffer, x, y, xW, xE, yN, yS, ch int, peak float32) float32 {
	c := src.At(x, y, ch)
	n := src.At(x, yN, ch)
	s := src.At(x, yS, ch)
	e := src.At(xE, y, ch)
	w := src.At(xW, y, ch)
	nw := src.At(xW, yN, ch)
	ne := src.At(xE, yN, ch)
	sw := src.At(xW, yS, ch)
	se := src.At(xE, yS, ch)

	mn := min5(c, n, s, e, w)
	mx := max5(c, n, s, e, w)
	mn += min5(mn, nw, ne, sw, se)
	mx += max5(mx, nw, ne, sw, se)
	if mx <= 0 {
		return c
	}
	headroom := 2 - mx
	if mn < headroom {
		headroom = mn
	}
	amp := sqrtf(frame.Clamp01(headroom / mx))
	wgt := amp * peak
	return (wgt*(n+s+e+w) + c) / (4*wgt + 1)
}

func min5(a, b, c, d, e float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	if d < m {
		m = d
	}
	if e < m {
		m = e
	}
	return m
}

func max5(a, b, c, d, e float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	if d > m {
		m = d
	}
	if e > m {
		m = e
	}
	return m
}

func clampEdge(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func sqrtf(x float32) float32 { return float32(math.Sqrt(float64(x))) }
