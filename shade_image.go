package osl

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/osl/imagebuf"
	"github.com/gogpu/osl/internal/parallel"
	"github.com/gogpu/osl/typedesc"
)

// ShadeLocation selects where in each pixel ShadeImage places the shading
// point.
type ShadeLocation uint8

const (
	// ShadePixelCenters shades P = (x+0.5, y+0.5, 0) with u and v running
	// from 0.5/width to 1-0.5/width.
	ShadePixelCenters ShadeLocation = iota
	// ShadePixelGrid shades P = (x, y, 0) with u = x/(width-1) and
	// v = y/(height-1), so the corner pixels sit on u,v = 0 and 1.
	ShadePixelGrid
)

// ShadeOption configures one ShadeImage call.
type ShadeOption func(*shadeOptions)

type shadeOptions struct {
	tileW, tileH int
}

// WithTileSize sets the tile size ShadeImage partitions the region into.
// The default is 64x64.
func WithTileSize(w, h int) ShadeOption {
	return func(o *shadeOptions) {
		o.tileW = w
		o.tileH = h
	}
}

// shadeWorker is the state of one ShadeImage worker thread.
type shadeWorker struct {
	ti *ThreadInfo
}

// workers returns the session's worker pool, starting it on first use.
func (ss *ShadingSystem) workers() (*parallel.WorkerPool[*shadeWorker], error) {
	ss.poolMu.Lock()
	defer ss.poolMu.Unlock()
	if ss.pool != nil {
		return ss.pool, nil
	}

	pool, err := parallel.NewWorkerPool(ss.opts.threads,
		func(int) (*shadeWorker, error) {
			ti, err := ss.newThreadInfo()
			if err != nil {
				return nil, err
			}
			return &shadeWorker{ti: ti}, nil
		},
		func(id int, w *shadeWorker) {
			if err := ss.destroyThreadInfo(w.ti); err != nil {
				Logger().Warn("osl: worker teardown", "worker", id, "err", err)
			}
		},
	)
	if err != nil {
		return nil, err
	}
	ss.pool = pool
	Logger().Debug("osl: shade workers started", "workers", pool.Workers())
	return pool, nil
}

// output is one resolved output symbol and its first channel.
type output struct {
	sym     *ShaderSymbol
	channel int
	n       int
}

// ShadeImage shades every pixel of roi with g and writes the named outputs
// into consecutive channels of buf, the first output starting at channel 0.
//
// Each point starts from a copy of defaultSG (zero globals when nil) with
// the position, surface parameters and their differentials set for the
// pixel according to loc. The region is split into tiles shaded in parallel
// by the session's worker threads.
//
// Shading stops at the first point that fails; ShadeImage then returns a
// *ShadeRegionError. Pixels shaded before the failure keep their values.
func (ss *ShadingSystem) ShadeImage(
	g *ShaderGroup,
	defaultSG *ShaderGlobals,
	buf *imagebuf.ImageBuf,
	outputs []string,
	loc ShadeLocation,
	roi imagebuf.ROI,
	opts ...ShadeOption,
) error {
	if err := ss.enter("ShadeImage"); err != nil {
		return err
	}
	h, err := g.closedHandle()
	if err != nil {
		return ss.fail(err)
	}
	if buf == nil {
		return ss.fail(fmt.Errorf("%w: nil image", ErrInvalidRegion))
	}
	if !roi.Valid() || !roi.Within(buf.ROI()) {
		return ss.fail(fmt.Errorf("%w: %s is not within %s", ErrInvalidRegion, roi, buf.ROI()))
	}

	so := shadeOptions{}
	for _, opt := range opts {
		opt(&so)
	}

	g.Retain()
	defer g.Release()

	outs, err := ss.resolveOutputs(g, defaultSG, outputs, buf.Spec().NChannels)
	if err != nil {
		return err
	}
	if roi.Empty() {
		return nil
	}

	pool, err := ss.workers()
	if err != nil {
		return err
	}

	tiles := parallel.TilesOfSize(roi, so.tileW, so.tileH)
	var shaded atomic.Int64
	spec := buf.Spec()

	err = pool.Run(len(tiles), func(w *shadeWorker, next func() (int, bool)) (err error) {
		ctx, err := ss.getContext(w.ti)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, ss.releaseContext(ctx))
		}()

		var sg ShaderGlobals
		for {
			i, ok := next()
			if !ok {
				return nil
			}
			tile := tiles[i]
			for y := tile.YBegin; y < tile.YEnd; y++ {
				for x := tile.XBegin; x < tile.XEnd; x++ {
					ss.pointGlobals(&sg, defaultSG, loc, x, y, spec.Width, spec.Height)
					ss.executions.Add(1)
					if !ss.eng.Execute(ctx.handle, h, &sg, true) {
						return &ShadeRegionError{
							X: x, Y: y,
							Cause: fmt.Errorf("%w: group %q", ErrExecuteFailed, g.Name()),
						}
					}
					ss.writeOutputs(ctx, outs, buf.PixelSlice(x, y))
					shaded.Add(1)
				}
			}
		}
	})
	ss.shadedPoints.Add(shaded.Load())

	if err != nil {
		var sre *ShadeRegionError
		if !errors.As(err, &sre) {
			sre = &ShadeRegionError{X: -1, Y: -1, Cause: err}
		}
		sre.Shaded = shaded.Load()
		ss.errs.report(SeverityError, sre.Error())
		return sre
	}
	Logger().Debug("osl: image shaded", "group", g.Name(), "roi", roi.String(), "points", shaded.Load())
	return nil
}

// resolveOutputs binds g once on the calling thread and looks up every
// output, assigning channels in order.
func (ss *ShadingSystem) resolveOutputs(g *ShaderGroup, defaultSG *ShaderGlobals, names []string, nchannels int) ([]output, error) {
	var outs []output
	err := ss.WithContext(func(ctx *ShadingContext) error {
		var sg ShaderGlobals
		if defaultSG != nil {
			sg = *defaultSG
		}
		if err := ss.Execute(ctx, g, &sg, false); err != nil {
			return err
		}

		channel := 0
		for _, name := range names {
			sym, err := ss.FindSymbol(g, name)
			if err != nil {
				return err
			}
			switch sym.td.BaseType {
			case typedesc.Float, typedesc.Int32:
			default:
				return ss.fail(fmt.Errorf("%w: output %q is %s", imagebuf.ErrUnsupportedFormat, name, sym.td))
			}
			n := sym.td.BaseValues()
			outs = append(outs, output{sym: sym, channel: channel, n: n})
			channel += n
		}
		if channel > nchannels {
			return ss.fail(fmt.Errorf("%w: outputs need %d channels, image has %d", imagebuf.ErrChannelCount, channel, nchannels))
		}
		return nil
	})
	return outs, err
}

// pointGlobals sets up sg for pixel (x, y) of a w x h image.
func (ss *ShadingSystem) pointGlobals(sg, defaultSG *ShaderGlobals, loc ShadeLocation, x, y, w, h int) {
	if defaultSG != nil {
		*sg = *defaultSG
	} else {
		*sg = ShaderGlobals{}
	}
	if sg.Renderer == nil {
		sg.Renderer = ss.renderer
	}

	var px, py, dudx, dvdy float32
	switch loc {
	case ShadePixelGrid:
		px, py = float32(x), float32(y)
		dudx, dvdy = 1/float32(max(w-1, 1)), 1/float32(max(h-1, 1))
		sg.U, sg.V = px*dudx, py*dvdy
	default:
		px, py = float32(x)+0.5, float32(y)+0.5
		dudx, dvdy = 1/float32(w), 1/float32(h)
		sg.U, sg.V = px*dudx, py*dvdy
	}

	sg.P = f32.Vec3{px, py, 0}
	sg.DPdx = f32.Vec3{1, 0, 0}
	sg.DPdy = f32.Vec3{0, 1, 0}
	sg.DUdx, sg.DUdy = dudx, 0
	sg.DVdx, sg.DVdy = 0, dvdy
	sg.DPdu = f32.Vec3{1 / dudx, 0, 0}
	sg.DPdv = f32.Vec3{0, 1 / dvdy, 0}
	sg.N = f32.Vec3{0, 0, 1}
	sg.Ng = sg.N
	sg.I = f32.Vec3{0, 0, -1}
	sg.Ci = nil
}

// writeOutputs copies the output values of the last execution in ctx into
// pixel.
func (ss *ShadingSystem) writeOutputs(ctx *ShadingContext, outs []output, pixel []float32) {
	for _, o := range outs {
		p := ss.eng.SymbolAddress(ctx.handle, o.sym.handle)
		if p == nil {
			continue
		}
		dst := pixel[o.channel : o.channel+o.n]
		if o.sym.td.BaseType == typedesc.Int32 {
			for i, v := range unsafe.Slice((*int32)(p), o.n) {
				dst[i] = float32(v)
			}
			continue
		}
		copy(dst, unsafe.Slice((*float32)(p), o.n))
	}
}
