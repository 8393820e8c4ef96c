package calibration

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Rectify remaps frame through mapX and mapY with bilinear sampling and crops the result to roi.
// Gray frames produce *image.Gray, everything else *image.NRGBA. Pixels whose maps hold
// MapSentinel are black. The frame must have the maps' dimensions.
func Rectify(frame image.Image, mapX, mapY *RemapField, roi image.Rectangle) (image.Image, error) {
	if frame == nil || mapX == nil || mapY == nil {
		return nil, newError(InvalidInput, "frame and maps are required")
	}
	if mapX.Size() != mapY.Size() {
		return nil, newError(ShapeMismatch, "map sizes differ: %v and %v", mapX.Size(), mapY.Size())
	}
	if frame.Bounds().Size() != mapX.Size() {
		return nil, newError(ShapeMismatch, "frame is %v but the maps are %v", frame.Bounds().Size(), mapX.Size())
	}
	if !roi.In(image.Rect(0, 0, mapX.Width, mapX.Height)) || roi.Empty() {
		return nil, newError(InvalidInput, "roi %v is empty or outside the %v maps", roi, mapX.Size())
	}

	if gray, ok := frame.(*image.Gray); ok {
		return remapGray(gray, mapX, mapY, roi), nil
	}
	return remapNRGBA(imaging.Clone(frame), mapX, mapY, roi), nil
}

// bilinearTaps returns the top left source pixel and the weights of a sample, or ok=false for
// a sentinel. Neighbors past the last row or column repeat the border.
func bilinearTaps(sx, sy float32, w, h int) (x0, y0, x1, y1 int, fx, fy float64, ok bool) {
	if sx < 0 || sy < 0 {
		return 0, 0, 0, 0, 0, 0, false
	}
	fsx, fsy := float64(sx), float64(sy)
	x0, y0 = int(math.Floor(fsx)), int(math.Floor(fsy))
	fx, fy = fsx-float64(x0), fsy-float64(y0)
	x1, y1 = min(x0+1, w-1), min(y0+1, h-1)
	x0, y0 = min(x0, w-1), min(y0, h-1)
	return x0, y0, x1, y1, fx, fy, true
}

func lerp2(a, b, c, d, fx, fy float64) uint8 {
	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return uint8(math.Round(math.Max(0, math.Min(255, top+(bottom-top)*fy))))
}

func remapGray(src *image.Gray, mapX, mapY *RemapField, roi image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	// Pix starts at Bounds().Min so map coordinates index it directly.
	at := func(x, y int) float64 {
		return float64(src.Pix[y*src.Stride+x])
	}
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			x0, y0, x1, y1, fx, fy, ok := bilinearTaps(mapX.At(x, y), mapY.At(x, y), w, h)
			if !ok {
				continue
			}
			out.Pix[(y-roi.Min.Y)*out.Stride+(x-roi.Min.X)] = lerp2(at(x0, y0), at(x1, y0), at(x0, y1), at(x1, y1), fx, fy)
		}
	}
	return out
}

func remapNRGBA(src *image.NRGBA, mapX, mapY *RemapField, roi image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, roi.Dx(), roi.Dy()))
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			o := (y-roi.Min.Y)*out.Stride + (x-roi.Min.X)*4
			x0, y0, x1, y1, fx, fy, ok := bilinearTaps(mapX.At(x, y), mapY.At(x, y), w, h)
			if !ok {
				out.Pix[o+3] = 0xff
				continue
			}
			i00 := y0*src.Stride + x0*4
			i10 := y0*src.Stride + x1*4
			i01 := y1*src.Stride + x0*4
			i11 := y1*src.Stride + x1*4
			for c := 0; c < 4; c++ {
				out.Pix[o+c] = lerp2(
					float64(src.Pix[i00+c]), float64(src.Pix[i10+c]),
					float64(src.Pix[i01+c]), float64(src.Pix[i11+c]), fx, fy)
			}
		}
	}
	return out
}
