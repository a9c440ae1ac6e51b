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
	"image"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Rounds the display-referred color buffer into an 8-bit RGBA image with
// opaque alpha, attached to the frame for the image writers. The float
// buffer stays untouched so HDR outputs remain possible after quantization.
type OpQuantize struct {
	ops.OpUnaryBase
}

var _ ops.Operator = (*OpQuantize)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpQuantizeDefault() }) } // register the operator for JSON decoding

func NewOpQuantizeDefault() *OpQuantize {
	op := OpQuantize{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "quantize", Active: true}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpQuantize) UnmarshalJSON(data []byte) error {
	type defaults OpQuantize
	def := defaults(*NewOpQuantizeDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpQuantize(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpQuantize) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	w, h := f.Color.Width, f.Color.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	data := f.Color.Data
	chans := f.Color.Channels
	ops.ForEachRowBand(h, c.MaxThreads, func(yLo, yHi int) {
		for y := yLo; y < yHi; y++ {
			i := f.Color.Offset(0, y)
			p := y * img.Stride
			for x := 0; x < w; x++ {
				for ch := 0; ch < 3; ch++ {
					img.Pix[p+ch] = quantizeByte(data[i+ch])
				}
				img.Pix[p+3] = 255
				i += chans
				p += 4
			}
		}
	})
	f.Rendered = img
	fmt.Fprintf(c.Log, "%d: Quantized %s to 8 bits\n", f.ID, f.Color.DimensionsToString())
	return f, nil
}

// Clamps to [0,1], mapping NaN to zero, and rounds to 8 bits.
func quantizeByte(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
