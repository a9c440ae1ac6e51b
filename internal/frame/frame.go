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

package frame

import (
	"fmt"
	"image"
	"math"

	"github.com/mfichtner/afterglow/internal/stats"
)

// Buffer is a rectangular grid of interleaved float32 samples. Color buffers
// hold linear RGB radiance with a coverage mask in channel 3; geometry buffers
// hold the camera-space surface normal in channels 0-2 and the hit distance in
// channel 3.
type Buffer struct {
	Width    int
	Height   int
	Channels int

	Data []float32 // sample at (x,y,c) lives at (y*Width+x)*Channels+c
}

// NewBuffer allocates a zeroed buffer of the given dimensions.
func NewBuffer(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]float32, width*height*channels),
	}
}

// NewBufferFromPool allocates a buffer backed by pooled memory. The data is
// not cleared; callers must overwrite every sample or call Clear first.
// Release returns the memory once the buffer is no longer needed.
func NewBufferFromPool(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     GetArrayOfFloat32FromPool(width * height * channels),
	}
}

// Release returns pooled memory and invalidates the buffer.
func (b *Buffer) Release() {
	if b == nil || b.Data == nil {
		return
	}
	PutArrayOfFloat32IntoPool(b.Data)
	b.Data = nil
}

// Offset returns the index of the first channel of pixel (x,y).
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Channels
}

// At returns the sample for channel c of pixel (x,y).
func (b *Buffer) At(x, y, c int) float32 {
	return b.Data[(y*b.Width+x)*b.Channels+c]
}

// Set stores the sample for channel c of pixel (x,y).
func (b *Buffer) Set(x, y, c int, value float32) {
	b.Data[(y*b.Width+x)*b.Channels+c] = value
}

// Clear zeroes all samples.
func (b *Buffer) Clear() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

// DimensionsToString formats the buffer dimensions for log output.
func (b *Buffer) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", b.Width, b.Height, b.Channels)
}

// A Frame carries one rendered image through the development pipeline,
// together with the auxiliary buffers the pipeline stages attach to it.
type Frame struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0.
	FileName string // Original file name, if any, for log output.

	Color *Buffer // Linear RGB radiance plus coverage mask
	GBuf  *Buffer // Surface normal plus hit distance; distance <= 0 marks sky

	Mips  []*Buffer // Reduced-resolution radiance pyramid, quarter area per level
	Bloom []*Buffer // Thresholded and blurred highlights, one per pyramid level

	Rendered *image.RGBA // Quantized 8-bit output, set at the end of development

	Meta Meta // Sidecar metadata: frame delta time, sun position
}

// NewFrame creates a frame with a zeroed color buffer and default metadata.
// The geometry buffer starts out nil; loaders attach either real auxiliary
// channels or a neutral stand-in.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Color: NewBuffer(width, height, 4),
		Meta:  NewMeta(),
	}
}

// NewFrameFromFrame creates a frame with the same dimensions, ID and metadata
// as the given one. The color buffer is freshly allocated; the geometry buffer
// is shared, as pipeline stages never write to it.
func NewFrameFromFrame(src *Frame) *Frame {
	return &Frame{
		ID:       src.ID,
		FileName: src.FileName,
		Color:    NewBuffer(src.Color.Width, src.Color.Height, src.Color.Channels),
		GBuf:     src.GBuf,
		Meta:     src.Meta,
	}
}

func (f *Frame) Width() int {
	if f.Color == nil {
		return 0
	}
	return f.Color.Width
}

func (f *Frame) Height() int {
	if f.Color == nil {
		return 0
	}
	return f.Color.Height
}

// LuminanceStats summarizes the per-pixel luminance of the color buffer,
// skipping non-finite pixels. Used for log output after loading and developing.
func (f *Frame) LuminanceStats() stats.Summary {
	s := stats.Summary{Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
	sum, n := float64(0), 0
	d := f.Color.Data
	for i := 0; i < len(d); i += f.Color.Channels {
		l := Luminance(d[i], d[i+1], d[i+2])
		if !IsFinite(l) {
			continue
		}
		if l < s.Min {
			s.Min = l
		}
		if l > s.Max {
			s.Max = l
		}
		sum += float64(l)
		n++
	}
	if n == 0 {
		return stats.Summary{}
	}
	s.Mean = float32(sum / float64(n))
	return s
}

// NeutralGBuffer builds a geometry buffer for sources without auxiliary
// channels: every pixel counts as a surface hit at unit distance with its
// normal facing the camera.
func NeutralGBuffer(width, height int) *Buffer {
	b := NewBuffer(width, height, 4)
	for i := 0; i < len(b.Data); i += 4 {
		b.Data[i+2] = 1
		b.Data[i+3] = 1
	}
	return b
}

// Luminance of a linear RGB triple, defined as the largest component so that
// saturated single-channel highlights register at full strength.
func Luminance(r, g, b float32) float32 {
	l := r
	if g > l {
		l = g
	}
	if b > l {
		l = b
	}
	return l
}

// Lerp interpolates linearly from a to b by t.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Clamp01 clamps a value to [0,1].
func Clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
