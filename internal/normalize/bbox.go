package normalize

import (
	"log"

	"docbench/internal/domain"
)

// Epsilon is the numeric slack tolerated on unit-square bounds. Boxes inside
// the slack pass through untouched; boxes beyond it are a normalization
// defect and are dropped (block kept, bbox nil).
const Epsilon = 0.01

// FromUnit passes through a box already expressed in unit fractions.
func FromUnit(x, y, w, h float64) *domain.UnitBBox {
	return checked(&domain.UnitBBox{X: x, Y: y, W: w, H: h})
}

// FromPixels converts a pixel-space {x,y,w,h} box against known page
// dimensions. Unknown dimensions fall back to an unnormalized 1x1 page:
// degraded but non-fatal.
func FromPixels(x, y, w, h, pageW, pageH float64) *domain.UnitBBox {
	if pageW <= 0 || pageH <= 0 {
		pageW, pageH = 1, 1
	}
	return checked(&domain.UnitBBox{
		X: x / pageW,
		Y: y / pageH,
		W: w / pageW,
		H: h / pageH,
	})
}

// FromCorners converts a pixel-space corner pair (top-left, bottom-right).
func FromCorners(x1, y1, x2, y2, pageW, pageH float64) *domain.UnitBBox {
	return FromPixels(x1, y1, x2-x1, y2-y1, pageW, pageH)
}

// FromPolygon computes the axis-aligned min/max over a pixel-space point set,
// then normalizes against the page dimensions.
func FromPolygon(xs, ys []float64, pageW, pageH float64) *domain.UnitBBox {
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil
	}
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < len(xs); i++ {
		if xs[i] < minX {
			minX = xs[i]
		}
		if xs[i] > maxX {
			maxX = xs[i]
		}
		if ys[i] < minY {
			minY = ys[i]
		}
		if ys[i] > maxY {
			maxY = ys[i]
		}
	}
	return FromPixels(minX, minY, maxX-minX, maxY-minY, pageW, pageH)
}

// checked enforces the unit-square invariant within slack. Out-of-range
// values are never silently clamped: the box is dropped and logged.
func checked(b *domain.UnitBBox) *domain.UnitBBox {
	if b.X < -Epsilon || b.Y < -Epsilon || b.W < 0 || b.H < 0 ||
		b.X+b.W > 1+Epsilon || b.Y+b.H > 1+Epsilon {
		log.Printf("normalize: dropping out-of-range bbox {x:%g y:%g w:%g h:%g}", b.X, b.Y, b.W, b.H)
		return nil
	}
	return b
}
