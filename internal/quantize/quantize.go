// Package quantize rebuilds real coordinates from the quantized, delta-encoded
// integers the graph service streams back.
package quantize

import "math"

type Scale struct {
	X float64 `json:"xScale"`
	Y float64 `json:"yScale"`
}

type Translate struct {
	X float64 `json:"xTranslate"`
	Y float64 `json:"yTranslate"`
}

// Params is the per-response quantization description.
type Params struct {
	Scale     Scale     `json:"scale"`
	Translate Translate `json:"translate"`
}

// Transform is a 2D affine transform:
//
//	x' = XX*x + XY*y + XD
//	y' = YX*x + YY*y + YD
type Transform struct {
	XX, XY, XD float64
	YX, YY, YD float64
}

func Identity() Transform {
	return Transform{XX: 1, YY: 1}
}

// NewTransform builds the forward (real -> quantized) transform:
// shift by -translate, then scale by 1/scale.
func NewTransform(p Params) Transform {
	t := Transform{XX: 1, XD: -p.Translate.X, YY: 1, YD: -p.Translate.Y}
	t.scale(1/p.Scale.X, 1/p.Scale.Y)
	return t
}

func (t *Transform) scale(x, y float64) {
	t.XX *= x
	t.XY *= x
	t.XD *= x
	t.YX *= y
	t.YY *= y
	t.YD *= y
}

// Inverse returns the inverse transform. A singular transform inverts to the
// zero transform.
func (t Transform) Inverse() Transform {
	det := t.XX*t.YY - t.XY*t.YX
	if det == 0 {
		return Transform{}
	}
	det = 1 / det
	return Transform{
		XX: t.YY * det,
		XY: -t.XY * det,
		XD: (t.XY*t.YD - t.XD*t.YY) * det,
		YX: -t.YX * det,
		YY: t.XX * det,
		YD: (t.XD*t.YX - t.XX*t.YD) * det,
	}
}

func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.XX*x + t.XY*y + t.XD, t.YX*x + t.YY*y + t.YD
}

// Reconstruct decodes coords where the first pair is absolute and every
// following pair is a delta from the previous absolute raw position. Deltas are
// accumulated in quantized space before the inverse transform is applied.
// A trailing odd value is ignored.
func Reconstruct(p Params, coords []int64) [][2]float64 {
	return reconstruct(NewTransform(p).Inverse(), coords)
}

// ReconstructRaw is Reconstruct for responses that carry no transform; points
// are returned in raw units.
func ReconstructRaw(coords []int64) [][2]float64 {
	return reconstruct(Identity(), coords)
}

func reconstruct(inv Transform, coords []int64) [][2]float64 {
	n := len(coords) / 2
	if n == 0 {
		return nil
	}
	out := make([][2]float64, 0, n)
	var ax, ay float64
	for i := 0; i+1 < len(coords); i += 2 {
		if i == 0 {
			ax, ay = float64(coords[0]), float64(coords[1])
		} else {
			ax += float64(coords[i])
			ay += float64(coords[i+1])
		}
		x, y := inv.Apply(ax, ay)
		out = append(out, [2]float64{x, y})
	}
	return out
}

// Parts splits points into consecutive parts of the given lengths. With fewer
// than two lengths everything is one part. Points not covered by lengths are
// appended to the last part.
func Parts(points [][2]float64, lengths []uint32) [][][2]float64 {
	if len(lengths) < 2 {
		return [][][2]float64{points}
	}
	out := make([][][2]float64, 0, len(lengths))
	start := 0
	for _, l := range lengths {
		end := start + int(l)
		if end > len(points) {
			end = len(points)
		}
		if start >= end {
			continue
		}
		out = append(out, points[start:end])
		start = end
	}
	if start < len(points) && len(out) > 0 {
		out[len(out)-1] = append(out[len(out)-1], points[start:]...)
	}
	return out
}

// Quantize maps a real coordinate to its quantized integer position.
func Quantize(p Params, x, y float64) (int64, int64) {
	qx, qy := NewTransform(p).Apply(x, y)
	return int64(math.Round(qx)), int64(math.Round(qy))
}
