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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path"
	"strings"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/half"
	"golang.org/x/image/tiff"
)

// WriteFile writes the frame to the file with the given name, dispatching on
// the extension. OpenEXR and Radiance outputs carry the linear color buffer;
// PNG and JPEG require the frame to have been developed to 8 bits first.
func (f *Frame) WriteFile(fileName string) error {
	ext := strings.ToLower(path.Ext(fileName))
	switch ext {
	case ".exr":
		return f.WriteEXR(fileName)
	case ".hdr", ".pic":
		return f.WriteHDR(fileName)
	case ".png":
		return f.WritePNG(fileName)
	case ".tif", ".tiff":
		return f.WriteTIFF16(fileName)
	case ".jpg", ".jpeg":
		return f.WriteJPG(fileName, 95)
	default:
		return fmt.Errorf("%d: unsupported output format %s", f.ID, ext)
	}
}

// WriteEXR writes the color buffer as half-precision RGBA, plus the geometry
// buffer as full-precision auxiliary channels when one is attached.
func (f *Frame) WriteEXR(fileName string) error {
	width, height := f.Width(), f.Height()

	header := exr.NewScanlineHeader(width, height)
	header.SetCompression(exr.CompressionZIP)

	channels := exr.NewChannelList()
	fb := exr.NewFrameBuffer()
	for c, name := range [4]string{"R", "G", "B", "A"} {
		channels.Add(exr.Channel{Name: name, Type: exr.PixelTypeHalf, XSampling: 1, YSampling: 1})
		fb.Set(name, exr.NewSliceFromHalf(halfPlane(f.Color, c), width, height))
	}
	if f.GBuf != nil {
		for c, name := range [4]string{"N.x", "N.y", "N.z", "Z"} {
			channels.Add(exr.Channel{Name: name, Type: exr.PixelTypeFloat, XSampling: 1, YSampling: 1})
			fb.Set(name, exr.NewSliceFromFloat32(floatPlane(f.GBuf, c), width, height))
		}
	}
	header.SetChannels(channels)

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer, err := exr.NewScanlineWriter(file, header)
	if err != nil {
		return err
	}
	writer.SetFrameBuffer(fb)
	if err := writer.WritePixels(0, height-1); err != nil {
		return err
	}
	return writer.Close()
}

// halfPlane extracts channel c of an interleaved buffer as half floats.
func halfPlane(b *Buffer, c int) []half.Half {
	plane := make([]half.Half, b.Width*b.Height)
	for i := range plane {
		plane[i] = half.FromFloat32(b.Data[i*b.Channels+c])
	}
	return plane
}

// floatPlane extracts channel c of an interleaved buffer.
func floatPlane(b *Buffer, c int) []float32 {
	plane := make([]float32, b.Width*b.Height)
	for i := range plane {
		plane[i] = b.Data[i*b.Channels+c]
	}
	return plane
}

// hdrImage adapts a color buffer to the hdr image interface for RGBE encoding.
type hdrImage struct {
	b *Buffer
}

func (h hdrImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrImage) Bounds() image.Rectangle { return image.Rect(0, 0, h.b.Width, h.b.Height) }
func (h hdrImage) Size() int               { return h.b.Width * h.b.Height }
func (h hdrImage) At(x, y int) color.Color { return h.HDRAt(x, y) }
func (h hdrImage) HDRAt(x, y int) hdrcolor.Color {
	i := h.b.Offset(x, y)
	return hdrcolor.RGB{R: float64(h.b.Data[i]), G: float64(h.b.Data[i+1]), B: float64(h.b.Data[i+2])}
}

// WriteHDR writes the color buffer as a Radiance RGBE file.
func (f *Frame) WriteHDR(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return rgbe.Encode(writer, hdrImage{f.Color})
}

// WritePNG writes the quantized 8-bit output as a PNG.
func (f *Frame) WritePNG(fileName string) error {
	if f.Rendered == nil {
		return fmt.Errorf("%d: frame has no rendered 8-bit output", f.ID)
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return png.Encode(writer, f.Rendered)
}

// WriteJPG writes the quantized 8-bit output as a JPEG with the given quality.
func (f *Frame) WriteJPG(fileName string, quality int) error {
	if f.Rendered == nil {
		return fmt.Errorf("%d: frame has no rendered 8-bit output", f.ID)
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return jpeg.Encode(writer, f.Rendered, &jpeg.Options{Quality: quality})
}

// WriteTIFF16 writes the color buffer as a 16-bit TIFF. After development the
// buffer is display-referred in [0,1], so this preserves more tonal
// resolution than the 8-bit output.
func (f *Frame) WriteTIFF16(fileName string) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	width, height := f.Width(), f.Height()
	img := image.NewRGBA64(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := f.Color.Offset(x, y)
			r := clampUnit(f.Color.Data[i])
			g := clampUnit(f.Color.Data[i+1])
			b := clampUnit(f.Color.Data[i+2])
			c := color.RGBA64{uint16(r*65535 + 0.5), uint16(g*65535 + 0.5), uint16(b*65535 + 0.5), 65535}
			img.SetRGBA64(x, y, c)
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// clampUnit clamps to [0,1], mapping non-finite values to 0 so that the
// encoders never see them.
func clampUnit(v float32) float32 {
	if !IsFinite(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
