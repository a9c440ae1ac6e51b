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
	"io"
	"os"
	"path"
	"strings"

	hdrimage "github.com/mdouchement/hdr"
	_ "github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mrjoshuak/go-openexr/exr"
)

// Accepted channel names for each frame plane: color in planes 0-3,
// geometry in planes 4-7. Earlier names take precedence.
var chanAliases = [8][]string{
	{"R", "r", "red"},
	{"G", "g", "green"},
	{"B", "b", "blue"},
	{"A", "a", "alpha", "mask"},
	{"N.x", "normal.x", "nx"},
	{"N.y", "normal.y", "ny"},
	{"N.z", "normal.z", "nz"},
	{"Z", "z", "depth", "distance"},
}

// NewFrameFromFile reads a rendered frame from the file with the given name,
// dispatching on the file extension. OpenEXR sources may carry auxiliary
// normal and depth channels; other sources get a neutral geometry buffer.
// Sidecar metadata is loaded alongside if present.
func NewFrameFromFile(fileName string, id int, logWriter io.Writer) (f *Frame, err error) {
	ext := strings.ToLower(path.Ext(fileName))
	switch ext {
	case ".exr":
		f, err = readEXR(fileName, id, logWriter)
	case ".hdr", ".pic":
		f, err = readHDR(fileName, id)
	default:
		return nil, fmt.Errorf("%d: unsupported input format %s", id, ext)
	}
	if err != nil {
		return nil, err
	}

	f.ID = id
	f.FileName = fileName
	if f.Meta, err = ReadMeta(fileName); err != nil {
		return nil, err
	}
	return f, nil
}

// readEXR reads color and any auxiliary channels from an OpenEXR file.
func readEXR(fileName string, id int, logWriter io.Writer) (*Frame, error) {
	file, err := exr.OpenFile(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header := file.Header(0)
	dw := header.DataWindow()
	if dw.Min.X != 0 || dw.Min.Y != 0 {
		return nil, fmt.Errorf("%d: data window origin (%d,%d) not supported", id, dw.Min.X, dw.Min.Y)
	}
	width, height := int(dw.Width()), int(dw.Height())
	channels := header.Channels()

	var planes [8][]float32
	fb := exr.NewFrameBuffer()
	for p, aliases := range chanAliases {
		name := findChannel(channels, aliases...)
		if name == "" {
			continue
		}
		planes[p] = make([]float32, width*height)
		fb.Set(name, exr.NewSliceFromFloat32(planes[p], width, height))
	}
	if planes[0] == nil && planes[1] == nil && planes[2] == nil {
		return nil, fmt.Errorf("%d: no color channels found in %s", id, fileName)
	}

	reader, err := exr.NewScanlineReader(file)
	if err != nil {
		return nil, err
	}
	reader.SetFrameBuffer(fb)
	if err := reader.ReadPixels(int(dw.Min.Y), int(dw.Max.Y)); err != nil {
		return nil, err
	}

	f := NewFrame(width, height)
	interleave(f.Color, planes[0:4], 3) // missing coverage defaults to opaque

	if planes[4] != nil || planes[5] != nil || planes[6] != nil || planes[7] != nil {
		f.GBuf = NewBuffer(width, height, 4)
		interleave(f.GBuf, planes[4:8], 2, 3) // missing normals face the camera, missing depth is a unit-distance hit
	} else {
		f.GBuf = NeutralGBuffer(width, height)
		fmt.Fprintf(logWriter, "%d: no auxiliary channels in %s, denoising without geometry guides\n", id, fileName)
	}
	return f, nil
}

// interleave copies per-channel planes into an interleaved buffer. Channels
// whose plane is nil are filled with 0, or with 1 for the listed defaultOne
// channel indices.
func interleave(b *Buffer, planes [][]float32, defaultOne ...int) {
	for c := 0; c < b.Channels; c++ {
		plane := planes[c]
		if plane == nil {
			fill := float32(0)
			for _, d := range defaultOne {
				if c == d {
					fill = 1
				}
			}
			if fill != 0 {
				for i := 0; i < b.Width*b.Height; i++ {
					b.Data[i*b.Channels+c] = fill
				}
			}
			continue
		}
		for i, v := range plane {
			b.Data[i*b.Channels+c] = v
		}
	}
}

// findChannel locates a channel by trying multiple conventional names.
func findChannel(cl *exr.ChannelList, names ...string) string {
	for _, name := range names {
		for i := 0; i < cl.Len(); i++ {
			if cl.At(i).Name == name {
				return name
			}
		}
	}
	return ""
}

// readHDR reads a Radiance RGBE file. These carry no auxiliary channels.
func readHDR(fileName string, id int) (*Frame, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	hdrImg, ok := img.(hdrimage.Image)
	if !ok {
		return nil, fmt.Errorf("%d: %s did not decode to a high dynamic range image", id, fileName)
	}

	bounds := hdrImg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	f := NewFrame(width, height)
	data := f.Color.Data
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := hdrImg.HDRAt(bounds.Min.X+x, bounds.Min.Y+y).HDRRGBA()
			i := (y*width + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = float32(r), float32(g), float32(b), 1
		}
	}
	f.GBuf = NeutralGBuffer(width, height)
	return f, nil
}
