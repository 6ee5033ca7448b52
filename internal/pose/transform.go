// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pose

import (
	"errors"
	"math"
)

// ErrInvalidRotation is returned for a zero-length rotation quaternion.
var ErrInvalidRotation = errors.New("pose: rotation quaternion has zero length")

// Transform is a rigid transform applied to every sample of a node:
// p' = R·p + t and q' = R·q.
type Transform struct {
	Translation [3]float64
	// Rotation is a unit quaternion (x, y, z, w).
	Rotation [4]float64
}

// Identity leaves samples unchanged.
var Identity = Transform{Rotation: [4]float64{0, 0, 0, 1}}

// NewTransform normalizes rotation and builds a transform.
func NewTransform(translation [3]float64, rotation [4]float64) (Transform, error) {
	n := math.Sqrt(rotation[0]*rotation[0] + rotation[1]*rotation[1] + rotation[2]*rotation[2] + rotation[3]*rotation[3])
	if n < 1e-9 {
		return Transform{}, ErrInvalidRotation
	}
	for i := range rotation {
		rotation[i] /= n
	}
	return Transform{Translation: translation, Rotation: rotation}, nil
}

// Apply transforms s in place of position and orientation.
func (t Transform) Apply(s Sample) Sample {
	p := [3]float64{float64(s.Position[0]), float64(s.Position[1]), float64(s.Position[2])}
	q := [4]float64{float64(s.Rotation[0]), float64(s.Rotation[1]), float64(s.Rotation[2]), float64(s.Rotation[3])}

	rp := rotate(t.Rotation, p)
	rq := mul(t.Rotation, q)

	for i := 0; i < 3; i++ {
		s.Position[i] = float32(rp[i] + t.Translation[i])
	}
	for i := 0; i < 4; i++ {
		s.Rotation[i] = float32(rq[i])
	}
	return s
}

// mul is the Hamilton product a·b with (x, y, z, w) layout.
func mul(a, b [4]float64) [4]float64 {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return [4]float64{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}

// rotate applies unit quaternion q to v: v + 2w(u×v) + 2u×(u×v).
func rotate(q [4]float64, v [3]float64) [3]float64 {
	u := [3]float64{q[0], q[1], q[2]}
	w := q[3]
	uv := cross(u, v)
	uuv := cross(u, uv)
	return [3]float64{
		v[0] + 2*(w*uv[0]+uuv[0]),
		v[1] + 2*(w*uv[1]+uuv[1]),
		v[2] + 2*(w*uv[2]+uuv[2]),
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
