package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rodrigues converts a rotation vector (axis scaled by angle in radians) into a 3x3 rotation matrix.
func Rodrigues(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	if theta < 1e-12 {
		// first order expansion, I + [r]x
		r := eye(3)
		r.Add(r, SkewSymmetric(rvec))
		return r
	}
	k := rvec.Mul(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	kx := SkewSymmetric(k)

	var kkT mat.Dense
	kvec := mat.NewVecDense(3, []float64{k.X, k.Y, k.Z})
	kkT.Outer(1-c, kvec, kvec)

	r := eye(3)
	r.Scale(c, r)
	r.Add(r, &kkT)
	kx.Scale(s, kx)
	r.Add(r, kx)
	return r
}

// RodriguesFromMatrix converts a 3x3 rotation matrix into a rotation vector.
func RodriguesFromMatrix(rot mat.Matrix) r3.Vector {
	trace := rot.At(0, 0) + rot.At(1, 1) + rot.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)
	axis := r3.Vector{
		X: rot.At(2, 1) - rot.At(1, 2),
		Y: rot.At(0, 2) - rot.At(2, 0),
		Z: rot.At(1, 0) - rot.At(0, 1),
	}
	sinTheta := math.Sin(theta)

	switch {
	case theta < 1e-9:
		return axis.Mul(0.5)
	case sinTheta > 1e-5:
		return axis.Mul(theta / (2 * sinTheta))
	default:
		// theta close to pi: R ~ 2kk^T - I, read the axis from the largest diagonal entry.
		i := 0
		for j := 1; j < 3; j++ {
			if rot.At(j, j) > rot.At(i, i) {
				i = j
			}
		}
		k := make([]float64, 3)
		k[i] = math.Sqrt(math.Max(0, (rot.At(i, i)+1)/2))
		for j := 0; j < 3; j++ {
			if j != i {
				k[j] = (rot.At(i, j) + rot.At(j, i)) / (4 * k[i])
			}
		}
		v := r3.Vector{X: k[0], Y: k[1], Z: k[2]}.Normalize()
		// keep the sign consistent with the antisymmetric part when it is informative
		if v.Dot(axis) < 0 {
			v = v.Mul(-1)
		}
		return v.Mul(theta)
	}
}

// NearestRotation projects a 3x3 matrix onto SO(3) using its SVD.
func NearestRotation(m mat.Matrix) *mat.Dense {
	mats := performSVD(mat.DenseCopyOf(m))
	if mats == nil {
		return eye(3)
	}
	var r mat.Dense
	r.Mul(mats.U, mats.VT)
	if mat.Det(&r) < 0 {
		d := eye(3)
		d.Set(2, 2, -1)
		r.Mul(mats.U, d)
		r.Mul(&r, mats.VT)
	}
	return &r
}

// RotateVector returns rot * v.
func RotateVector(rot mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*v.X + rot.At(0, 1)*v.Y + rot.At(0, 2)*v.Z,
		Y: rot.At(1, 0)*v.X + rot.At(1, 1)*v.Y + rot.At(1, 2)*v.Z,
		Z: rot.At(2, 0)*v.X + rot.At(2, 1)*v.Y + rot.At(2, 2)*v.Z,
	}
}
