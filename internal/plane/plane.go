// Package plane fits a least-squares plane through the four corner peaks of
// a chart ring.
package plane

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidInput is returned for anything other than four non-collinear
// points.
var ErrInvalidInput = errors.New("plane: invalid input")

// Point3D is a position in mm.
type Point3D struct {
	X, Y, Z float64
}

// Vector is the unit normal of a fitted plane with Z >= 0.
type Vector struct {
	X, Y, Z float64
}

// Tilt returns the tilt pair (nz*nx, nz*ny).
func (v Vector) Tilt() (x, y float64) {
	return v.Z * v.X, v.Z * v.Y
}

// Fit returns the normal of the plane that minimises the orthogonal
// distance to exactly four points.
func Fit(points []Point3D) (Vector, error) {
	if len(points) != 4 {
		return Vector{}, fmt.Errorf("%w: need 4 points, got %d", ErrInvalidInput, len(points))
	}

	var cx, cy, cz float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
		cz += p.Z
	}
	n := float64(len(points))
	cx, cy, cz = cx/n, cy/n, cz/n

	a := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		a.SetRow(i, []float64{p.X - cx, p.Y - cy, p.Z - cz})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return Vector{}, fmt.Errorf("%w: SVD did not converge", ErrInvalidInput)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1] <= values[0]*1e-12 {
		return Vector{}, fmt.Errorf("%w: points are collinear", ErrInvalidInput)
	}

	var v mat.Dense
	svd.VTo(&v)
	normal := Vector{X: v.At(0, 2), Y: v.At(1, 2), Z: v.At(2, 2)}
	norm := math.Sqrt(normal.X*normal.X + normal.Y*normal.Y + normal.Z*normal.Z)
	normal.X, normal.Y, normal.Z = normal.X/norm, normal.Y/norm, normal.Z/norm
	if normal.Z < 0 {
		normal.X, normal.Y, normal.Z = -normal.X, -normal.Y, -normal.Z
	}
	return normal, nil
}
