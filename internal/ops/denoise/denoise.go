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

// Package denoise removes stochastic sampling noise from the color buffer
// with a 3x3 median-of-luminance filter guided by the geometry buffer.
package denoise

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mfichtner/afterglow/internal/frame"
	"github.com/mfichtner/afterglow/internal/median"
	"github.com/mfichtner/afterglow/internal/ops"
	"github.com/mfichtner/afterglow/internal/stats"
)

const (
	// Shared Gaussian falloff scale for the normal, depth and mask deltas.
	falloffScale = 0.1
	// Cap on the pull toward the raw median.
	medianPull = 0.5
)

type OpDenoise struct {
	ops.OpUnaryBase
}

var _ ops.Operator = (*OpDenoise)(nil) // this type is an Operator

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpDenoiseDefault() }) } // register the operator for JSON decoding

func NewOpDenoiseDefault() *OpDenoise { return NewOpDenoise(true) }

func NewOpDenoise(active bool) *OpDenoise {
	op := OpDenoise{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "denoise", Active: active}},
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Filters the color buffer guided by the geometry buffer. Pixels whose depth
// reports no surface hit pass through unchanged. Each filtered sample moves
// toward the luminance median of its 3x3 neighborhood, weighted by how well
// normal, depth and material mask of the median sample agree with its own.
// Non-finite results are replaced with zero and reported once per frame.
func (op *OpDenoise) Apply(f *frame.Frame, c *ops.Context) (result *frame.Frame, err error) {
	if !op.Active {
		return f, nil
	}
	if f.GBuf == nil {
		return nil, fmt.Errorf("%d: frame has no geometry buffer", f.ID)
	}
	src, gbuf := f.Color, f.GBuf
	if src.Channels != 4 || gbuf.Channels != 4 {
		return nil, fmt.Errorf("%d: denoising needs 4-channel color and geometry, have %d and %d",
			f.ID, src.Channels, gbuf.Channels)
	}

	noiseBefore := luminanceNoise(src)
	out := frame.NewBufferFromPool(src.Width, src.Height, src.Channels)
	nonFinite := int64(0)
	ops.ForEachRowBand(src.Height, c.MaxThreads, func(yLo, yHi int) {
		t := newTile(src, gbuf, yLo, yHi)
		n := 0
		for y := yLo; y < yHi; y++ {
			for x := 0; x < src.Width; x++ {
				n += t.filterPixel(out, x, y)
			}
		}
		t.release()
		if n > 0 {
			atomic.AddInt64(&nonFinite, int64(n))
		}
	})
	if nonFinite > 0 {
		fmt.Fprintf(c.Log, "%d: Replaced %d non-finite filtered pixels with zero\n", f.ID, nonFinite)
	}

	src.Release()
	f.Color = out
	fmt.Fprintf(c.Log, "%d: Luminance noise level %.4g -> %.4g\n", f.ID, noiseBefore, luminanceNoise(out))
	return f, nil
}

// Immerkaer noise estimate on the luminance plane, for the log.
func luminanceNoise(b *frame.Buffer) float32 {
	plane := frame.GetArrayOfFloat32FromPool(b.Width * b.Height)
	for i := range plane {
		o := i * b.Channels
		plane[i] = frame.Luminance(b.Data[o], b.Data[o+1], b.Data[o+2])
	}
	n := stats.EstimateNoise(plane, b.Width)
	frame.PutArrayOfFloat32IntoPool(plane)
	return n
}

// A band-local copy of the source samples covering the band rows plus a one
// pixel halo above and below, with luminance keys precomputed for the ranking
// network. Reads clamp to the buffer bounds, so border pixels see their edge
// row or column repeated.
type tile struct {
	width         int
	yBase         int // source row of the first cached row
	r, g, b, m    []float32
	nx, ny, nz, z []float32
	lum           []float32
	backing       []float32
}

func newTile(src, gbuf *frame.Buffer, yLo, yHi int) *tile {
	width := src.Width
	rows := yHi - yLo + 2
	n := rows * width
	backing := frame.GetArrayOfFloat32FromPool(9 * n)
	t := &tile{width: width, yBase: yLo - 1, backing: backing}
	t.r, t.g, t.b = backing[0:n], backing[n:2*n], backing[2*n:3*n]
	t.m = backing[3*n : 4*n]
	t.nx, t.ny, t.nz = backing[4*n:5*n], backing[5*n:6*n], backing[6*n:7*n]
	t.z = backing[7*n : 8*n]
	t.lum = backing[8*n : 9*n]

	for row := 0; row < rows; row++ {
		sy := t.yBase + row
		if sy < 0 {
			sy = 0
		}
		if sy > src.Height-1 {
			sy = src.Height - 1
		}
		so, go_ := src.Offset(0, sy), gbuf.Offset(0, sy)
		for x := 0; x < width; x++ {
			i := row*width + x
			t.r[i], t.g[i], t.b[i], t.m[i] = src.Data[so], src.Data[so+1], src.Data[so+2], src.Data[so+3]
			t.nx[i], t.ny[i], t.nz[i], t.z[i] = gbuf.Data[go_], gbuf.Data[go_+1], gbuf.Data[go_+2], gbuf.Data[go_+3]
			t.lum[i] = frame.Luminance(t.r[i], t.g[i], t.b[i])
			so += 4
			go_ += 4
		}
	}
	return t
}

func (t *tile) release() {
	frame.PutArrayOfFloat32IntoPool(t.backing)
}

// Cache index for a sample position, clamping x to the row bounds. The y
// coordinate stays within the cached rows by construction.
func (t *tile) index(x, y int) int {
	if x < 0 {
		x = 0
	}
	if x > t.width-1 {
		x = t.width - 1
	}
	return (y-t.yBase)*t.width + x
}

// Filters one pixel into out. Returns 1 if the result was non-finite and
// replaced with zero, else 0.
func (t *tile) filterPixel(out *frame.Buffer, x, y int) int {
	ci := t.index(x, y)
	o := out.Offset(x, y)
	if t.z[ci] <= 0 { // no surface hit, keep the raw sample
		out.Data[o], out.Data[o+1], out.Data[o+2], out.Data[o+3] = t.r[ci], t.g[ci], t.b[ci], t.m[ci]
		return 0
	}

	var keys [9]float32
	var idxs [9]int
	k := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			j := t.index(x+dx, y+dy)
			keys[k], idxs[k] = t.lum[j], j
			k++
		}
	}
	mi := idxs[median.MedianIndex9(keys)]

	dnx, dny, dnz := t.nx[ci]-t.nx[mi], t.ny[ci]-t.ny[mi], t.nz[ci]-t.nz[mi]
	dz := t.z[ci] - t.z[mi]
	mismatch := float32(0)
	if t.m[ci] != t.m[mi] {
		mismatch = 1
	}
	w := expf(-(dnx*dnx+dny*dny+dnz*dnz)/falloffScale) *
		expf(-(dz*dz)/falloffScale) *
		expf(-mismatch/falloffScale)

	r := frame.Lerp(t.r[mi], frame.Lerp(t.r[ci], t.r[mi], w), medianPull)
	g := frame.Lerp(t.g[mi], frame.Lerp(t.g[ci], t.g[mi], w), medianPull)
	b := frame.Lerp(t.b[mi], frame.Lerp(t.b[ci], t.b[mi], w), medianPull)

	bad := 0
	if !frame.IsFinite(r) || !frame.IsFinite(g) || !frame.IsFinite(b) {
		r, g, b = 0, 0, 0
		bad = 1
	}
	out.Data[o], out.Data[o+1], out.Data[o+2], out.Data[o+3] = r, g, b, t.m[ci]
	return bad
}

func expf(x float32) float32 {
	return float32(math.Exp(float64(x)))
}
