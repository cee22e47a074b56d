package simworld

import (
	"math"
	"strconv"

	"github.com/banshee-data/simworld/internal/geom"
)

var objectTypeFor = map[ObstacleType]ObjectType{
	ObstacleUnknown:          ObjectUnknown,
	ObstacleUnknownMovable:   ObjectUnknownMovable,
	ObstacleUnknownUnmovable: ObjectUnknownUnmovable,
	ObstaclePedestrian:       ObjectPedestrian,
	ObstacleBicycle:          ObjectBicycle,
	ObstacleVehicle:          ObjectVehicle,
}

// MapObstacles converts a perception frame into display objects, one per
// obstacle and in the same order.
func MapObstacles(obstacles []PerceptionObstacle) []DisplayObject {
	out := make([]DisplayObject, 0, len(obstacles))
	for i := range obstacles {
		out = append(out, mapObstacle(&obstacles[i]))
	}
	return out
}

func mapObstacle(ob *PerceptionObstacle) DisplayObject {
	obj := DisplayObject{
		ID:           strconv.FormatInt(int64(ob.ID), 10),
		TimestampSec: ob.Timestamp,
		Type:         objectTypeFor[ob.Type],
		Speed:        math.Hypot(ob.Velocity.X, ob.Velocity.Y),
	}
	if len(ob.PolygonPoint) > 0 {
		poly := make(Polygon, 0, len(ob.PolygonPoint))
		for _, p := range ob.PolygonPoint {
			poly = append(poly, geom.Point2D{X: p.X, Y: p.Y})
		}
		obj.Geometry = poly
		return obj
	}
	obj.Geometry = Box{
		PositionX: ob.Position.X,
		PositionY: ob.Position.Y,
		Heading:   ob.Theta,
		Length:    ob.Length,
		Width:     ob.Width,
		Height:    ob.Height,
	}
	return obj
}
