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

// Package post holds the display-referred finishing operators: filmic tone
// mapping, contrast-adaptive sharpening and the final 8-bit quantization.
package post

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Maps scene-referred radiance to display range with the Uncharted 2 filmic
// curve, scaled by the exposure value from the adaptation state, then gamma
// encodes. Normalizing by the curve value at the white point keeps that
// radiance level exactly at display white.
type OpToneMap struct {
	ops.OpUnaryBase
	WhitePoint float32 `json:"whitePoint"`
	Gamma      float32 `json:"gamma"`
}

var _ ops.Operator = (*OpToneMap)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpToneMapDefault() }) } // register the operator for JSON decoding

func NewOpToneMapDefault() *OpToneMap { return NewOpToneMap(11.2, 2.2) }

func NewOpToneMap(whitePoint, gamma float32) *OpToneMap {
	op := OpToneMap{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "toneMap", Active: true}},
		WhitePoint:  whitePoint,
		Gamma:       gamma,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpToneMap) UnmarshalJSON(data []byte) error {
	type defaults OpToneMap
	def := defaults(*NewOpToneMapDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpToneMap(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpToneMap) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	white := filmic(op.WhitePoint)
	if white <= 0 {
		return nil, fmt.Errorf("%d: invalid tone mapping white point %f", f.ID, op.WhitePoint)
	}
	if op.Gamma <= 0 {
		return nil, fmt.Errorf("%d: invalid tone mapping gamma %f", f.ID, op.Gamma)
	}
	ev := c.Exposure.EV
	invWhite := 1 / white
	invGamma := 1 / op.Gamma

	data := f.Color.Data
	chans := f.Color.Channels
	rowLen := f.Color.Width * chans
	ops.ForEachRowBand(f.Color.Height, c.MaxThreads, func(yLo, yHi int) {
		for i, end := yLo*rowLen, yHi*rowLen; i < end; i += chans {
			for ch := 0; ch < 3; ch++ {
				v := filmic(ev*data[i+ch]) * invWhite
				if v <= 0 {
					data[i+ch] = 0
				} else {
					data[i+ch] = frame.Clamp01(powf(v, invGamma))
				}
			}
		}
	})
	fmt.Fprintf(c.Log, "%d: Tone mapped with exposure value %.3f and white point %.1f\n", f.ID, ev, op.WhitePoint)
	return f, nil
}

// Uncharted 2 filmic curve after Hable. Zero maps to zero, and the curve is
// monotone for non-negative input.
func filmic(x float32) float32 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	return (x*(a*x+c*b)+d*e)/(x*(a*x+b)+d*f) - e/f
}

func powf(x, y float32) float32 { return float32(math.Pow(float64(x), float64(y))) }
