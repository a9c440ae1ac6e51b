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

// Package scale provides the box-filtered mip pyramid and Catmull-Rom
// resampling between the pipeline's working resolutions.
package scale

import (
	"encoding/json"
	"fmt"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
)

// Builds the reduced-resolution radiance pyramid, quarter width and height
// per level. Takes the mip buffers from the scratch pool.
type OpPyramid struct {
	ops.OpUnaryBase
	Levels int `json:"levels"`
}

var _ ops.Operator = (*OpPyramid)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpPyramidDefault() }) } // register the operator for JSON decoding

func NewOpPyramidDefault() *OpPyramid { return NewOpPyramid(2) }

func NewOpPyramid(levels int) *OpPyramid {
	op := OpPyramid{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "pyramid", Active: levels > 0}},
		Levels:      levels,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpPyramid) UnmarshalJSON(data []byte) error {
	type defaults OpPyramid
	def := defaults(*NewOpPyramidDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpPyramid(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpPyramid) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.Levels <= 0 {
		return f, nil
	}
	for _, m := range f.Mips {
		m.Release()
	}
	f.Mips = nil

	cur := f.Color
	for level := 0; level < op.Levels; level++ {
		if cur.Width < 4 || cur.Height < 4 {
			break // a mip below one full block carries no usable detail
		}
		cur = Downscale4x4(cur, c.MaxThreads)
		f.Mips = append(f.Mips, cur)
	}
	if len(f.Mips) > 0 {
		last := f.Mips[len(f.Mips)-1]
		fmt.Fprintf(c.Log, "%d: Built %d mip levels down to %dx%d\n", f.ID, len(f.Mips), last.Width, last.Height)
	}
	return f, nil
}

// Downscale4x4 box-averages contiguous 4x4 source blocks into a buffer of a
// quarter the width and height, rounded up. Full blocks reduce as two levels
// of 2x2 pairwise sums, so uniform input reproduces the uniform value
// exactly; partial border blocks divide by the true sample count.
func Downscale4x4(src *frame.Buffer, maxThreads int) *frame.Buffer {
	ow, oh := (src.Width+3)/4, (src.Height+3)/4
	ch := src.Channels
	out := frame.NewBufferFromPool(ow, oh, ch)

	ops.ForEachRowBand(oh, maxThreads, func(yLo, yHi int) {
		for oy := yLo; oy < yHi; oy++ {
			y0 := oy * 4
			for ox := 0; ox < ow; ox++ {
				x0 := ox * 4
				o := out.Offset(ox, oy)
				if x0+4 <= src.Width && y0+4 <= src.Height {
					for c := 0; c < ch; c++ {
						out.Data[o+c] = blockMean16(src, x0, y0, c)
					}
					continue
				}
				x1, y1 := src.Width, src.Height
				if x0+4 < x1 {
					x1 = x0 + 4
				}
				if y0+4 < y1 {
					y1 = y0 + 4
				}
				count := float32((x1 - x0) * (y1 - y0))
				for c := 0; c < ch; c++ {
					sum := float32(0)
					for y := y0; y < y1; y++ {
						i := src.Offset(x0, y) + c
						for x := x0; x < x1; x++ {
							sum += src.Data[i]
							i += ch
						}
					}
					out.Data[o+c] = sum / count
				}
			}
		}
	})
	return out
}

// Mean of a full 4x4 block of one channel, reduced as 2x2 sums of 2x2 sums.
func blockMean16(src *frame.Buffer, x0, y0, c int) float32 {
	var q [4]float32
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			a := src.Offset(x0+i*2, y0+j*2) + c
			b := a + src.Channels
			d := src.Offset(x0+i*2, y0+j*2+1) + c
			e := d + src.Channels
			q[j*2+i] = (src.Data[a] + src.Data[b]) + (src.Data[d] + src.Data[e])
		}
	}
	return ((q[0] + q[1]) + (q[2] + q[3])) / 16
}

// Resamples the color buffer to a fixed output resolution with the 16-tap
// Catmull-Rom kernel. A frame already at the target resolution passes through
// untouched.
type OpResample struct {
	ops.OpUnaryBase
	Width  int `json:"width"`
	Height int `json:"height"`
}

var _ ops.Operator = (*OpResample)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpResampleDefault() }) } // register the operator for JSON decoding

func NewOpResampleDefault() *OpResample { return NewOpResample(0, 0) }

func NewOpResample(width, height int) *OpResample {
	op := OpResample{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "resample", Active: width > 0 && height > 0}},
		Width:       width,
		Height:      height,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpResample) UnmarshalJSON(data []byte) error {
	type defaults OpResample
	def := defaults(*NewOpResampleDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpResample(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpResample) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active || op.Width <= 0 || op.Height <= 0 {
		return f, nil
	}
	src := f.Color
	if src.Width == op.Width && src.Height == op.Height {
		return f, nil
	}

	out := frame.NewBufferFromPool(op.Width, op.Height, src.Channels)
	scaleX := float32(src.Width) / float32(op.Width)
	scaleY := float32(src.Height) / float32(op.Height)
	ops.ForEachRowBand(op.Height, c.MaxThreads, func(yLo, yHi int) {
		px := make([]float32, src.Channels)
		for yo := yLo; yo < yHi; yo++ {
			v := (float32(yo)+0.5)*scaleY - 0.5
			o := out.Offset(0, yo)
			for xo := 0; xo < op.Width; xo++ {
				u := (float32(xo)+0.5)*scaleX - 0.5
				CatmullRom16(src, u, v, px)
				copy(out.Data[o:o+src.Channels], px)
				o += src.Channels
			}
		}
	})
	fmt.Fprintf(c.Log, "%d: Resampled %s to %dx%d\n", f.ID, src.DimensionsToString(), op.Width, op.Height)

	src.Release()
	f.Color = out
	return f, nil
}
