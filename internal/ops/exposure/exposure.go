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

// Package exposure estimates scene exposure from a log-luminance histogram
// and adapts it over time like the human eye, gradually rather than in
// per-frame jumps.
package exposure

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/stats"
)

const (
	darkThreshold   = 0.4 // cumulative mass below the accepted luminance range
	brightThreshold = 0.9 // cumulative mass below the bright cut
	minLum          = 0.1
	maxLum          = 10.0
)

type OpAutoExposure struct {
	ops.OpUnaryBase
	Gain           float32 `json:"gain"`
	AdaptationRate float32 `json:"adaptationRate"` // eye adaptation speed in 1/s
}

var _ ops.Operator = (*OpAutoExposure)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpAutoExposureDefault() }) } // register the operator for JSON decoding

func NewOpAutoExposureDefault() *OpAutoExposure { return NewOpAutoExposure(1, 1) }

func NewOpAutoExposure(gain, adaptationRate float32) *OpAutoExposure {
	op := OpAutoExposure{
		OpUnaryBase:    ops.OpUnaryBase{OpBase: ops.OpBase{Type: "autoExposure", Active: true}},
		Gain:           gain,
		AdaptationRate: adaptationRate,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpAutoExposure) UnmarshalJSON(data []byte) error {
	type defaults OpAutoExposure
	def := defaults(*NewOpAutoExposureDefault())
	err := json.Unmarshal(data, &def)
	if err != nil {
		return err
	}
	*op = OpAutoExposure(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

// Rebuilds the log-luminance histogram from the color buffer, cuts away the
// darkest and brightest histogram mass, and folds the measured scene
// luminance into the adaptation state on the context. Frames with no finite
// positive luminance at all leave the state untouched.
func (op *OpAutoExposure) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	if op.Gain <= 0 {
		return nil, fmt.Errorf("%d: invalid exposure gain %f", f.ID, op.Gain)
	}
	src := f.Color

	hist := &stats.LogHistogram{}
	ops.ForEachRowBand(src.Height, c.MaxThreads, func(yLo, yHi int) {
		for y := yLo; y < yHi; y++ {
			i := src.Offset(0, y)
			for x := 0; x < src.Width; x++ {
				l := frame.Luminance(src.Data[i], src.Data[i+1], src.Data[i+2])
				if frame.IsFinite(l) && l > 0 {
					hist.AddAtomic(l)
				}
				i += src.Channels
			}
		}
	})
	if hist.Total() == 0 {
		fmt.Fprintf(c.Log, "%d: No finite luminance samples, keeping exposure state\n", f.ID)
		return f, nil
	}

	darkBucket, darkFrac := hist.Cut(darkThreshold, 0, 0)
	brightBucket, brightFrac := hist.Cut(brightThreshold, darkBucket, darkThreshold)

	instAvg := clampLum(hist.WeightedMeanLum(darkBucket, darkFrac, brightBucket, brightFrac))
	instBright := clampLum(stats.LuminanceAt((float32(brightBucket) + float32(brightFrac)) / stats.HistogramBins))

	// exponential eye adaptation toward the instantaneous measurements
	blend := 1 - float32(math.Exp(float64(-f.Meta.DeltaT*op.AdaptationRate)))
	e := &c.Exposure
	e.AvgLum += (instAvg - e.AvgLum) * blend
	e.BrightLum += (instBright - e.BrightLum) * blend
	e.EV = op.Gain * key(e.AvgLum) / e.AvgLum
	if f.Meta.Exposure > 0 {
		e.EV = f.Meta.Exposure
	}

	fmt.Fprintf(c.Log, "%d: Exposure avg %.3f bright %.3f EV %.3f from luminance %.3f..%.3f\n",
		f.ID, e.AvgLum, e.BrightLum, e.EV,
		stats.LuminanceAt((float32(darkBucket)+float32(darkFrac))/stats.HistogramBins), instBright)
	if mode, sigma, err := hist.FitGaussian(); err == nil {
		fmt.Fprintf(c.Log, "%d: Histogram mode at luminance %.3f, sigma %.3f on the log scale\n",
			f.ID, stats.LuminanceAt(mode), sigma)
	}
	return f, nil
}

// Autoexposure key after Krawczyk: brighter gain for night scenes, compressed
// gain for day scenes.
func key(l float32) float32 {
	return 1.03 - 2/(2+float32(math.Log10(float64(l)+1)))
}

func clampLum(l float32) float32 {
	if l < minLum {
		return minLum
	}
	if l > maxLum {
		return maxLum
	}
	return l
}
