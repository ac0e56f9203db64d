// Package imagebuf provides the image buffers whole-image shading writes
// into: a float32 pixel store with a spec, a region-of-interest type, file
// output and display export.
//
// Pixels are stored interleaved, NChannels float32 values per pixel, row by
// row. Concurrent writers are safe as long as they touch disjoint pixels.
package imagebuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/osl/typedesc"
)

// Package errors.
var (
	// ErrInvalidSpec is returned for non-positive dimensions or channel counts.
	ErrInvalidSpec = errors.New("imagebuf: invalid spec")

	// ErrUnsupportedFormat is returned for file or export formats the buffer
	// cannot be converted to.
	ErrUnsupportedFormat = errors.New("imagebuf: unsupported format")

	// ErrChannelCount is returned when a pixel slice has the wrong length.
	ErrChannelCount = errors.New("imagebuf: channel count mismatch")
)

// ImageSpec describes an image.
type ImageSpec struct {
	Width     int
	Height    int
	NChannels int

	// Format is the per-channel type the image represents. Storage is
	// always float32; Format selects the bit depth of file output.
	Format typedesc.TypeDesc

	// ChannelNames optionally names each channel.
	ChannelNames []string
}

// NewSpec returns a spec with default channel names (R, G, B, A, then
// numbered).
func NewSpec(width, height, nchannels int, format typedesc.TypeDesc) ImageSpec {
	names := make([]string, nchannels)
	for i := range names {
		if i < 4 {
			names[i] = string("RGBA"[i])
		} else {
			names[i] = fmt.Sprintf("channel%d", i)
		}
	}
	return ImageSpec{
		Width:        width,
		Height:       height,
		NChannels:    nchannels,
		Format:       format,
		ChannelNames: names,
	}
}

// Validate checks the dimensions.
func (s ImageSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.NChannels <= 0 {
		return fmt.Errorf("%w: %dx%d with %d channels", ErrInvalidSpec, s.Width, s.Height, s.NChannels)
	}
	return nil
}

// ROI returns the full-image region.
func (s ImageSpec) ROI() ROI {
	return ROI{XBegin: 0, XEnd: s.Width, YBegin: 0, YEnd: s.Height}
}

// ImageBuf is an in-memory float32 image.
type ImageBuf struct {
	name   string
	spec   ImageSpec
	pixels []float32
}

// New allocates a zeroed buffer. name is usually the file the buffer is
// written to.
func New(name string, spec ImageSpec) (*ImageBuf, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &ImageBuf{
		name:   name,
		spec:   spec,
		pixels: make([]float32, spec.Width*spec.Height*spec.NChannels),
	}, nil
}

// Name returns the buffer name.
func (b *ImageBuf) Name() string { return b.name }

// Spec returns the buffer spec.
func (b *ImageBuf) Spec() ImageSpec { return b.spec }

// ROI returns the full-image region.
func (b *ImageBuf) ROI() ROI { return b.spec.ROI() }

// Pixels returns the raw interleaved storage.
func (b *ImageBuf) Pixels() []float32 { return b.pixels }

// Zero clears every pixel.
func (b *ImageBuf) Zero() { clear(b.pixels) }

// Fill sets every channel of every pixel to v.
func (b *ImageBuf) Fill(v float32) {
	for i := range b.pixels {
		b.pixels[i] = v
	}
}

// PixelSlice returns the channels of pixel (x, y) as a view into the buffer,
// or nil when the pixel is outside the image.
func (b *ImageBuf) PixelSlice(x, y int) []float32 {
	if x < 0 || x >= b.spec.Width || y < 0 || y >= b.spec.Height {
		return nil
	}
	n := b.spec.NChannels
	i := (y*b.spec.Width + x) * n
	return b.pixels[i : i+n : i+n]
}

// Pixel copies the channels of pixel (x, y) into out, allocating when out is
// too short. Pixels outside the image read as zero.
func (b *ImageBuf) Pixel(x, y int, out []float32) []float32 {
	n := b.spec.NChannels
	if cap(out) < n {
		out = make([]float32, n)
	}
	out = out[:n]
	if p := b.PixelSlice(x, y); p != nil {
		copy(out, p)
	} else {
		clear(out)
	}
	return out
}

// SetPixel writes the channels of pixel (x, y). Writes outside the image are
// ignored.
func (b *ImageBuf) SetPixel(x, y int, v []float32) error {
	if len(v) != b.spec.NChannels {
		return fmt.Errorf("%w: got %d values, image has %d channels", ErrChannelCount, len(v), b.spec.NChannels)
	}
	if p := b.PixelSlice(x, y); p != nil {
		copy(p, v)
	}
	return nil
}

// CopyChannels fills every channel of b from src, starting at channel first
// of src. Both images must have the same size.
func (b *ImageBuf) CopyChannels(src *ImageBuf, first int) error {
	if src.spec.Width != b.spec.Width || src.spec.Height != b.spec.Height {
		return fmt.Errorf("%w: %dx%d source for a %dx%d image",
			ErrInvalidSpec, src.spec.Width, src.spec.Height, b.spec.Width, b.spec.Height)
	}
	n, sn := b.spec.NChannels, src.spec.NChannels
	if first < 0 || first+n > sn {
		return fmt.Errorf("%w: channels [%d, %d) of a %d-channel image", ErrChannelCount, first, first+n, sn)
	}
	for i := range b.spec.Width * b.spec.Height {
		copy(b.pixels[i*n:i*n+n], src.pixels[i*sn+first:i*sn+first+n])
	}
	return nil
}

// ROI is a half-open pixel region [XBegin, XEnd) x [YBegin, YEnd).
type ROI struct {
	XBegin, XEnd int
	YBegin, YEnd int
}

// NewROI returns the region [xbegin, xend) x [ybegin, yend).
func NewROI(xbegin, xend, ybegin, yend int) ROI {
	return ROI{XBegin: xbegin, XEnd: xend, YBegin: ybegin, YEnd: yend}
}

// Width returns the region width.
func (r ROI) Width() int { return r.XEnd - r.XBegin }

// Height returns the region height.
func (r ROI) Height() int { return r.YEnd - r.YBegin }

// NPixels returns the number of pixels in the region, 0 when empty or
// reversed.
func (r ROI) NPixels() int {
	if r.Width() <= 0 || r.Height() <= 0 {
		return 0
	}
	return r.Width() * r.Height()
}

// Valid reports whether the bounds are ordered (empty regions are valid).
func (r ROI) Valid() bool { return r.XBegin <= r.XEnd && r.YBegin <= r.YEnd }

// Empty reports whether the region has no pixels.
func (r ROI) Empty() bool { return r.NPixels() == 0 }

// Contains reports whether (x, y) lies in the region.
func (r ROI) Contains(x, y int) bool {
	return x >= r.XBegin && x < r.XEnd && y >= r.YBegin && y < r.YEnd
}

// Within reports whether r lies entirely inside outer.
func (r ROI) Within(outer ROI) bool {
	return r.XBegin >= outer.XBegin && r.XEnd <= outer.XEnd &&
		r.YBegin >= outer.YBegin && r.YEnd <= outer.YEnd
}

// Intersect returns the overlap of r and o, possibly empty.
func (r ROI) Intersect(o ROI) ROI {
	out := ROI{
		XBegin: max(r.XBegin, o.XBegin),
		XEnd:   min(r.XEnd, o.XEnd),
		YBegin: max(r.YBegin, o.YBegin),
		YEnd:   min(r.YEnd, o.YEnd),
	}
	if out.XEnd < out.XBegin {
		out.XEnd = out.XBegin
	}
	if out.YEnd < out.YBegin {
		out.YEnd = out.YBegin
	}
	return out
}

// String formats the region as "[x0,x1)x[y0,y1)".
func (r ROI) String() string {
	return fmt.Sprintf("[%d,%d)x[%d,%d)", r.XBegin, r.XEnd, r.YBegin, r.YEnd)
}
