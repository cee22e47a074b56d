package simworld

import (
	"github.com/banshee-data/simworld/internal/geom"
)

// DefaultTrajectoryStride is the input spacing between kept planning points.
const DefaultTrajectoryStride = 10

// DownsampleTrajectory reduces a dense planned path to display points.
//
// Index i is collected when i%stride == 0 or when it is one of the last two
// points. Every collected point except the final one is emitted with the
// bearing towards the next collected point; the final point only anchors the
// last heading. Each emitted point gets a footprint of the vehicle oriented
// along that heading. Fewer than two points produce an empty result.
func DownsampleTrajectory(points []PathPoint, stride int, dims VehicleDimensions) []TrajectoryPoint {
	return downsample(points, stride, dims, nil)
}

// downsample is DownsampleTrajectory with an optional filter on input
// indices. Filtered-out points are never collected, but the stride is still
// applied to the original index and the last two points always survive.
func downsample(points []PathPoint, stride int, dims VehicleDimensions, keep func(i int) bool) []TrajectoryPoint {
	if stride <= 0 {
		stride = DefaultTrajectoryStride
	}
	n := len(points)
	if n < 2 {
		return []TrajectoryPoint{}
	}

	collected := make([]geom.Point2D, 0, n/stride+2)
	for i, p := range points {
		tail := i >= n-2
		if (i%stride == 0 && (keep == nil || keep(i))) || tail {
			collected = append(collected, geom.Point2D{X: p.X, Y: p.Y})
		}
	}

	out := make([]TrajectoryPoint, 0, len(collected)-1)
	for i := 0; i+1 < len(collected); i++ {
		cur := collected[i]
		heading := geom.Bearing(cur, collected[i+1])
		out = append(out, TrajectoryPoint{
			PositionX: cur.X,
			PositionY: cur.Y,
			Heading:   heading,
			Polygon:   geom.Footprint(cur, heading, dims.Length, dims.Width),
		})
	}
	return out
}

// freshAfter reports, per planning point, whether its absolute time
// (header time plus relative time) is at or after cutoffSec.
func freshAfter(traj *ADCTrajectory, cutoffSec float64) func(i int) bool {
	return func(i int) bool {
		return traj.Header.TimestampSec+traj.TrajectoryPoint[i].RelativeTime >= cutoffSec
	}
}

func pathPoints(traj *ADCTrajectory) []PathPoint {
	out := make([]PathPoint, len(traj.TrajectoryPoint))
	for i, p := range traj.TrajectoryPoint {
		out[i] = p.PathPoint
	}
	return out
}
