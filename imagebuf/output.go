package imagebuf

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/tiff"
)

// rawFormats maps the extensions of headerless 8-bit dumps to their texel
// layout.
var rawFormats = map[string]gputypes.TextureFormat{
	".rgba": gputypes.TextureFormatRGBA8Unorm,
	".bgra": gputypes.TextureFormatBGRA8Unorm,
	".r8":   gputypes.TextureFormatR8Unorm,
}

// Write saves the buffer to path. The format follows the extension:
// ".png" (16-bit), ".tif"/".tiff" (16-bit, deflate), or a raw texel dump
// ".rgba", ".bgra" or ".r8" as produced by Export.
func (b *ImageBuf) Write(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if _, raw := rawFormats[ext]; !raw && ext != ".png" && ext != ".tif" && ext != ".tiff" {
		return fmt.Errorf("%w: file extension %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := b.Encode(f, ext); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes the buffer to w in the format of extension ext (see Write).
func (b *ImageBuf) Encode(w io.Writer, ext string) error {
	switch ext {
	case ".png":
		return png.Encode(w, b.ToImage())
	case ".tif", ".tiff":
		return tiff.Encode(w, b.ToImage(), &tiff.Options{Compression: tiff.Deflate})
	}
	format, ok := rawFormats[ext]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	data, err := b.Export(format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ToImage converts the buffer to a 16-bit image. One- and two-channel
// buffers become Gray16 from channel 0; three or more channels become NRGBA64
// from channels 0-3 (alpha 1 when absent). Values are clamped to [0, 1].
func (b *ImageBuf) ToImage() image.Image {
	w, h, n := b.spec.Width, b.spec.Height, b.spec.NChannels
	rect := image.Rect(0, 0, w, h)

	if n < 3 {
		img := image.NewGray16(rect)
		for y := range h {
			for x := range w {
				img.SetGray16(x, y, color.Gray16{Y: quantize16(b.PixelSlice(x, y)[0])})
			}
		}
		return img
	}

	img := image.NewNRGBA64(rect)
	for y := range h {
		for x := range w {
			p := b.PixelSlice(x, y)
			a := uint16(0xffff)
			if n >= 4 {
				a = quantize16(p[3])
			}
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: quantize16(p[0]),
				G: quantize16(p[1]),
				B: quantize16(p[2]),
				A: a,
			})
		}
	}
	return img
}

// Export quantizes the buffer to an 8-bit texture layout for display:
// R8Unorm (channel 0), RGBA8Unorm or BGRA8Unorm (channels 0-2, alpha from
// channel 3 or opaque). Single-channel buffers are replicated to gray.
func (b *ImageBuf) Export(format gputypes.TextureFormat) ([]byte, error) {
	w, h, n := b.spec.Width, b.spec.Height, b.spec.NChannels

	switch format {
	case gputypes.TextureFormatR8Unorm:
		out := make([]byte, w*h)
		for i := range w * h {
			out[i] = quantize8(b.pixels[i*n])
		}
		return out, nil

	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		out := make([]byte, w*h*4)
		for i := range w * h {
			p := b.pixels[i*n : i*n+n]
			r, g, bl := p[0], p[0], p[0]
			if n >= 3 {
				g, bl = p[1], p[2]
			}
			a := byte(0xff)
			if n >= 4 {
				a = quantize8(p[3])
			}
			if format == gputypes.TextureFormatBGRA8Unorm {
				r, bl = bl, r
			}
			out[i*4+0] = quantize8(r)
			out[i*4+1] = quantize8(g)
			out[i*4+2] = quantize8(bl)
			out[i*4+3] = a
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: texture format %v", ErrUnsupportedFormat, format)
}

func clamp01(v float32) float32 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func quantize16(v float32) uint16 { return uint16(clamp01(v)*65535 + 0.5) }

func quantize8(v float32) byte { return byte(clamp01(v)*255 + 0.5) }
