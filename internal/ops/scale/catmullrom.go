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

package scale

import (
	"math"

	"github.com/mfichtner/afterglow/internal/frame"
)

// Catmull-Rom basis weights for a sample offset t in [0,1) between the two
// center taps. The four weights sum to one.
func catmullRomWeights(t float32) (w0, w1, w2, w3 float32) {
	t2 := t * t
	t3 := t2 * t
	w0 = -0.5*t3 + t2 - 0.5*t
	w1 = 1.5*t3 - 2.5*t2 + 1
	w2 = -1.5*t3 + 2*t2 + 0.5*t
	w3 = 0.5*t3 - 0.5*t2
	return
}

// CatmullRom16 samples the buffer at the source-space position (u, v) with a
// separable 16-tap Catmull-Rom kernel and writes one value per channel into
// out. Taps outside the buffer clamp to the border. Integer positions
// reproduce the underlying sample; constant buffers reproduce the constant.
func CatmullRom16(b *frame.Buffer, u, v float32, out []float32) {
	x1 := int(math.Floor(float64(u)))
	y1 := int(math.Floor(float64(v)))
	wx0, wx1, wx2, wx3 := catmullRomWeights(u - float32(x1))
	wy0, wy1, wy2, wy3 := catmullRomWeights(v - float32(y1))
	wx := [4]float32{wx0, wx1, wx2, wx3}
	wy := [4]float32{wy0, wy1, wy2, wy3}

	for c := range out {
		out[c] = 0
	}
	var row [8]float32
	for j := 0; j < 4; j++ {
		yy := clampInt(y1-1+j, b.Height-1)
		for c := range out {
			row[c] = 0
		}
		for i := 0; i < 4; i++ {
			xx := clampInt(x1-1+i, b.Width-1)
			o := b.Offset(xx, yy)
			for c := range out {
				row[c] += wx[i] * b.Data[o+c]
			}
		}
		for c := range out {
			out[c] += wy[j] * row[c]
		}
	}
}

func clampInt(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
