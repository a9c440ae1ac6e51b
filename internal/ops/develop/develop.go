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

// Package develop chains the full per-frame pipeline from raw HDR radiance
// to a saved 8-bit image.
package develop

import (
	"encoding/json"
	"fmt"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/ops/bloom"
	"github.com/mfichtner/afterglow/internal/ops/denoise"
	"github.com/mfichtner/afterglow/internal/ops/exposure"
	"github.com/mfichtner/afterglow/internal/ops/post"
	"github.com/mfichtner/afterglow/internal/ops/scale"
)

// Develops one frame through the fixed stage order: denoise, pyramid,
// auto-exposure, bloom, lens flare, tone map, sharpen, resample, quantize,
// save. Stages run strictly one after another; the exposure stage reads and
// updates the adaptation state on the context, so frames of a sequence must
// materialize in order for eye adaptation to evolve correctly. A nil stage
// is skipped.
type OpDevelop struct {
	ops.OpUnaryBase
	Denoise      *denoise.OpDenoise        `json:"denoise"`
	Pyramid      *scale.OpPyramid          `json:"pyramid"`
	AutoExposure *exposure.OpAutoExposure  `json:"autoExposure"`
	Bloom        *bloom.OpBloom            `json:"bloom"`
	LensFlare    *bloom.OpLensFlare        `json:"lensFlare"`
	ToneMap      *post.OpToneMap           `json:"toneMap"`
	Sharpen      *post.OpSharpen           `json:"sharpen"`
	Resample     *scale.OpResample         `json:"resample"`
	Quantize     *post.OpQuantize          `json:"quantize"`
	Save         *ops.OpSave               `json:"save"`
}

var _ ops.Operator = (*OpDevelop)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDevelopDefault() }) } // register the operator for JSON decoding

func NewOpDevelopDefault() *OpDevelop { return NewOpDevelop(0, 0, "") }

// NewOpDevelop builds the default pipeline, resampling to the given output
// resolution (0,0 develops at render resolution) and saving to the given
// file name pattern ("" skips saving).
func NewOpDevelop(width, height int, savePattern string) *OpDevelop {
	op := OpDevelop{
		OpUnaryBase:  ops.OpUnaryBase{OpBase: ops.OpBase{Type: "develop", Active: true}},
		Denoise:      denoise.NewOpDenoiseDefault(),
		Pyramid:      scale.NewOpPyramidDefault(),
		AutoExposure: exposure.NewOpAutoExposureDefault(),
		Bloom:        bloom.NewOpBloomDefault(),
		LensFlare:    bloom.NewOpLensFlareDefault(),
		ToneMap:      post.NewOpToneMapDefault(),
		Sharpen:      post.NewOpSharpenDefault(),
		Resample:     scale.NewOpResample(width, height),
		Quantize:     post.NewOpQuantizeDefault(),
		Save:         ops.NewOpSave(savePattern, false),
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpDevelop) UnmarshalJSON(data []byte) error {
	type defaults OpDevelop
	def := defaults(*NewOpDevelopDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpDevelop(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpDevelop) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	defer releaseScratch(f)

	if op.Denoise != nil {
		if f, err = op.Denoise.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Pyramid != nil {
		if f, err = op.Pyramid.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.AutoExposure != nil {
		if f, err = op.AutoExposure.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Bloom != nil {
		if f, err = op.Bloom.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.LensFlare != nil {
		if f, err = op.LensFlare.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.ToneMap != nil {
		if f, err = op.ToneMap.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Sharpen != nil {
		if f, err = op.Sharpen.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Resample != nil {
		if f, err = op.Resample.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Quantize != nil {
		if f, err = op.Quantize.Apply(f, c); err != nil {
			return nil, err
		}
	}
	if op.Save != nil {
		if f, err = op.Save.Apply(f, c); err != nil {
			return nil, err
		}
	}

	lum := f.LuminanceStats()
	fmt.Fprintf(c.Log, "%d: Developed frame to %s with display luminance %v\n",
		f.ID, f.Color.DimensionsToString(), lum)
	return f, nil
}

// Mip and bloom scratch lives only for the duration of one development.
func releaseScratch(f *frame.Frame) {
	if f == nil {
		return
	}
	for _, b := range f.Mips {
		b.Release()
	}
	f.Mips = nil
	for _, b := range f.Bloom {
		b.Release()
	}
	f.Bloom = nil
}
