// Package geom holds the planar math used to turn upstream poses into
// display geometry: quaternion yaw, angle normalisation, bearings and
// vehicle footprints.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Point2D is a planar point in the world frame (metres).
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizeAngle wraps an angle in radians into [-π, π).
func NormalizeAngle(angle float64) float64 {
	a := math.Mod(angle+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// QuaternionToHeading converts an orientation quaternion into a heading in
// radians measured counter-clockwise from East.
//
// The vehicle's forward axis is body Y, so q rotates the unit Y vector and
// the yaw of the result is zero when the vehicle faces North; a quarter turn
// is added before normalising. q need not be unit length. A zero quaternion
// carries no orientation and yields π/2.
func QuaternionToHeading(qw, qx, qy, qz float64) float64 {
	q := quat.Number{Real: qw, Imag: qx, Jmag: qy, Kmag: qz}
	if quat.Abs(q) == 0 {
		return math.Pi / 2
	}
	fwd := quat.Mul(quat.Mul(q, quat.Number{Jmag: 1}), quat.Conj(q))
	yaw := math.Atan2(-fwd.Imag, fwd.Jmag)
	return NormalizeAngle(yaw + math.Pi/2)
}

// Bearing returns the angle of the segment from a to b, atan2(dy, dx).
func Bearing(a, b Point2D) float64 {
	d := r2.Sub(r2.Vec{X: b.X, Y: b.Y}, r2.Vec{X: a.X, Y: a.Y})
	return math.Atan2(d.Y, d.X)
}

// Footprint returns the four corners of a length×width rectangle centred on
// center and rotated to heading. Corners are ordered front-left, rear-left,
// rear-right, front-right (counter-clockwise).
func Footprint(center Point2D, heading, length, width float64) []Point2D {
	c := r2.Vec{X: center.X, Y: center.Y}
	hl, hw := length/2, width/2
	corners := [4]r2.Vec{
		{X: hl, Y: hw},
		{X: -hl, Y: hw},
		{X: -hl, Y: -hw},
		{X: hl, Y: -hw},
	}
	out := make([]Point2D, 0, len(corners))
	for _, off := range corners {
		p := r2.Rotate(r2.Add(c, off), heading, c)
		out = append(out, Point2D{X: p.X, Y: p.Y})
	}
	return out
}
