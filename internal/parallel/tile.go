// Package parallel provides the tile-based parallel shading infrastructure
// behind whole-image shading.
//
// An image region is divided into 64x64 pixel tiles that are shaded
// independently. A WorkerPool of goroutines, each locked to its own OS thread
// and owning thread-affine worker state, pulls tiles until the region is done
// or a worker fails.
package parallel

import "github.com/gogpu/osl/imagebuf"

// Tile size constants.
const (
	// TileWidth is the width of a tile in pixels.
	TileWidth = 64

	// TileHeight is the height of a tile in pixels.
	TileHeight = 64

	// TilePixels is the total number of pixels in a full tile.
	TilePixels = TileWidth * TileHeight
)

// Tiles splits roi into tiles of at most TileWidth x TileHeight pixels, in
// row-major order. Edge tiles are clipped to roi. An empty or reversed roi
// yields no tiles.
func Tiles(roi imagebuf.ROI) []imagebuf.ROI {
	return TilesOfSize(roi, TileWidth, TileHeight)
}

// TilesOfSize is Tiles with an explicit tile size. Non-positive sizes fall
// back to the defaults.
func TilesOfSize(roi imagebuf.ROI, tileW, tileH int) []imagebuf.ROI {
	if roi.Empty() {
		return nil
	}
	if tileW <= 0 {
		tileW = TileWidth
	}
	if tileH <= 0 {
		tileH = TileHeight
	}

	// Calculate tile grid dimensions (ceiling division)
	cols := (roi.Width() + tileW - 1) / tileW
	rows := (roi.Height() + tileH - 1) / tileH

	tiles := make([]imagebuf.ROI, 0, cols*rows)
	for ty := range rows {
		y0 := roi.YBegin + ty*tileH
		y1 := min(y0+tileH, roi.YEnd)
		for tx := range cols {
			x0 := roi.XBegin + tx*tileW
			x1 := min(x0+tileW, roi.XEnd)
			tiles = append(tiles, imagebuf.NewROI(x0, x1, y0, y1))
		}
	}
	return tiles
}
