package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// SaddleConfiguration stores the parameters that turn the Hessian determinant image into chessboard
// corner candidates.
type SaddleConfiguration struct {
	BlurSigma     float64 `json:"blur_sigma"`     // gaussian blur applied before differentiating
	ScoreRatio    float64 `json:"score_ratio"`    // candidates below this fraction of the strongest saddle are dropped
	NMSWindowSize int     `json:"nms_win_size"`   // half size of the non-maximum suppression window
	RingRadius    float64 `json:"ring_radius"`    // radius of the X-junction test circle
	MinContrast   float64 `json:"min_contrast"`   // gray level spread required on the test circle
	MaxCandidates int     `json:"max_candidates"` // strongest candidates kept after suppression
}

// DefaultSaddleConf stores the default parameters of the saddle stage.
var DefaultSaddleConf = SaddleConfiguration{
	BlurSigma:     1.5,
	ScoreRatio:    0.05,
	NMSWindowSize: 3,
	RingRadius:    4,
	MinContrast:   20,
	MaxCandidates: 2000,
}

// computePixelWiseHessianDeterminant returns the negated determinant of the image Hessian at every
// pixel, clipped at zero. X-junctions of a chessboard are saddles of the intensity surface,
// where the determinant is negative.
func computePixelWiseHessianDeterminant(img *mat.Dense) *mat.Dense {
	h, w := img.Dims()
	out := mat.NewDense(h, w, nil)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := img.At(y, x)
			gxx := img.At(y, x+1) - 2*c + img.At(y, x-1)
			gyy := img.At(y+1, x) - 2*c + img.At(y-1, x)
			gxy := (img.At(y+1, x+1) - img.At(y-1, x+1) - img.At(y+1, x-1) + img.At(y-1, x-1)) / 4
			if s := gxy*gxy - gxx*gyy; s > 0 {
				out.Set(y, x, s)
			}
		}
	}
	return out
}

// PruneSaddle zeroes every saddle score below ratio times the strongest one.
func PruneSaddle(s *mat.Dense, ratio float64) *mat.Dense {
	thresh := mat.Max(s) * ratio
	pruned := mat.DenseCopyOf(s)
	pruned.Apply(func(_, _ int, v float64) float64 {
		if v < thresh {
			return 0
		}
		return v
	}, pruned)
	return pruned
}

// NonMaxSuppression keeps the nonzero pixels that are the maximum of their (2*winSize+1)²
// neighborhood. Ties keep the first pixel in row-major order.
func NonMaxSuppression(img *mat.Dense, winSize int) []saddle {
	h, w := img.Dims()
	var out []saddle
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.At(y, x)
			if v == 0 {
				continue
			}
			isMax := true
			for dy := -winSize; dy <= winSize && isMax; dy++ {
				for dx := -winSize; dx <= winSize; dx++ {
					yy, xx := y+dy, x+dx
					if yy < 0 || yy >= h || xx < 0 || xx >= w || (dx == 0 && dy == 0) {
						continue
					}
					n := img.At(yy, xx)
					if n > v || (n == v && (dy < 0 || (dy == 0 && dx < 0))) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				out = append(out, saddle{pt: r2.Point{X: float64(x), Y: float64(y)}, score: v})
			}
		}
	}
	return out
}

type saddle struct {
	pt    r2.Point
	score float64
}

// isXJunction samples the image on a circle around pt and accepts it when the intensity
// crosses the circle's mean exactly four times: dark, light, dark, light. L-corners and
// edges cross twice.
func isXJunction(img *mat.Dense, pt r2.Point, radius, minContrast float64) bool {
	const samples = 32
	h, w := img.Dims()
	if pt.X-radius < 0 || pt.Y-radius < 0 || pt.X+radius > float64(w-1) || pt.Y+radius > float64(h-1) {
		return false
	}
	ring := make([]float64, samples)
	lo, hi, mean := math.Inf(1), math.Inf(-1), 0.0
	for i := range ring {
		a := 2 * math.Pi * float64(i) / samples
		v := bilinear(img, pt.X+radius*math.Cos(a), pt.Y+radius*math.Sin(a))
		ring[i] = v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		mean += v
	}
	mean /= samples
	if hi-lo < minContrast {
		return false
	}
	crossings := 0
	for i := range ring {
		if (ring[i] > mean) != (ring[(i+1)%samples] > mean) {
			crossings++
		}
	}
	return crossings == 4
}

// GetSaddlePoints returns the X-junction candidates of a blurred luminance image, strongest first.
func GetSaddlePoints(blurred *mat.Dense, conf *SaddleConfiguration) []r2.Point {
	saddleMap := PruneSaddle(computePixelWiseHessianDeterminant(blurred), conf.ScoreRatio)
	candidates := NonMaxSuppression(saddleMap, conf.NMSWindowSize)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if conf.MaxCandidates > 0 && len(candidates) > conf.MaxCandidates {
		candidates = candidates[:conf.MaxCandidates]
	}
	out := make([]r2.Point, 0, len(candidates))
	for _, c := range candidates {
		if isXJunction(blurred, c.pt, conf.RingRadius, conf.MinContrast) {
			out = append(out, c.pt)
		}
	}
	return out
}

// bilinear samples img at a fractional position, clamping to the border.
func bilinear(img *mat.Dense, x, y float64) float64 {
	h, w := img.Dims()
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)
	top := img.At(y0, x0)*(1-fx) + img.At(y0, x1)*fx
	bottom := img.At(y1, x0)*(1-fx) + img.At(y1, x1)*fx
	return top*(1-fy) + bottom*fy
}
