// Command plot-world renders a world snapshot to a PNG.
//
// The snapshot is read from the history database, or from a running
// service's gRPC stream when -grpc is set.
//
// Usage:
//
//	go run ./cmd/tools/plot-world [flags]
//
// Flags:
//
//	-db     History database path (default: simworld.db)
//	-grpc   gRPC address of a running service (e.g. localhost:50051)
//	-out    Output PNG path (default: world.png)
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/banshee-data/simworld/internal/db"
	"github.com/banshee-data/simworld/internal/geom"
	"github.com/banshee-data/simworld/internal/simworld"
	"github.com/banshee-data/simworld/internal/visualiser"
)

var (
	carColor        = color.RGBA{R: 30, G: 100, B: 220, A: 255}
	obstacleColor   = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	trajectoryColor = color.RGBA{R: 40, G: 160, B: 70, A: 255}
)

func main() {
	dbPath := flag.String("db", "simworld.db", "History database path")
	grpcAddr := flag.String("grpc", "", "gRPC address of a running service; overrides -db")
	out := flag.String("out", "world.png", "Output PNG path")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		world simworld.WorldSnapshot
		err   error
	)
	if *grpcAddr != "" {
		world, err = fetchLive(ctx, *grpcAddr)
	} else {
		world, err = fetchRecorded(ctx, *dbPath)
	}
	if err != nil {
		log.Fatalf("failed to load snapshot: %v", err)
	}

	p, err := renderWorld(world)
	if err != nil {
		log.Fatalf("failed to render snapshot: %v", err)
	}
	if err := p.Save(10*vg.Inch, 10*vg.Inch, *out); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	log.Printf("wrote snapshot %d to %s (%d objects, %d trajectory points)",
		world.Sequence, *out, len(world.Objects), len(world.PlanningTrajectory))
}

func fetchRecorded(ctx context.Context, path string) (simworld.WorldSnapshot, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return simworld.WorldSnapshot{}, err
	}
	defer database.Close()

	rec, err := database.LatestSnapshot(ctx)
	if err != nil {
		return simworld.WorldSnapshot{}, err
	}
	return rec.World, nil
}

func fetchLive(ctx context.Context, addr string) (simworld.WorldSnapshot, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return simworld.WorldSnapshot{}, err
	}
	defer conn.Close()

	ctx = metadata.AppendToOutgoingContext(ctx, visualiser.ClientNameKey, "plot-world")
	stream, err := visualiser.NewWorldClient(conn).StreamWorld(ctx, visualiser.DefaultStreamOptions())
	if err != nil {
		return simworld.WorldSnapshot{}, err
	}
	msg, err := stream.Recv()
	if err != nil {
		return simworld.WorldSnapshot{}, err
	}
	return visualiser.WorldFromStruct(msg)
}

// renderWorld draws the ego footprint, obstacle outlines and the planned
// trajectory in world coordinates.
func renderWorld(world simworld.WorldSnapshot) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("World snapshot %d", world.Sequence)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	car := world.AutoDrivingCar
	carOutline := geom.Footprint(geom.Point2D{X: car.PositionX, Y: car.PositionY}, car.Heading, car.Length, car.Width)
	if err := addOutline(p, carOutline, carColor, "ego"); err != nil {
		return nil, err
	}

	for i, obj := range world.Objects {
		outline := obj.PolygonPoints()
		if outline == nil {
			b := obj.BoxPose()
			outline = geom.Footprint(geom.Point2D{X: b.PositionX, Y: b.PositionY}, b.Heading, b.Length, b.Width)
		}
		label := ""
		if i == 0 {
			label = "obstacles"
		}
		if err := addOutline(p, outline, obstacleColor, label); err != nil {
			return nil, fmt.Errorf("object %s: %w", obj.ID, err)
		}
	}

	if len(world.PlanningTrajectory) > 0 {
		pts := make(plotter.XYs, len(world.PlanningTrajectory))
		for i, tp := range world.PlanningTrajectory {
			pts[i] = plotter.XY{X: tp.PositionX, Y: tp.PositionY}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = trajectoryColor
		line.Width = vg.Points(1.5)
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		scatter.Color = trajectoryColor
		p.Add(line, scatter)
		p.Legend.Add("trajectory", line)
	}

	p.Legend.Top = true
	return p, nil
}

func addOutline(p *plot.Plot, outline []geom.Point2D, c color.Color, label string) error {
	if len(outline) < 3 {
		return nil
	}
	xys := make(plotter.XYs, len(outline))
	for i, pt := range outline {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	poly, err := plotter.NewPolygon(xys)
	if err != nil {
		return err
	}
	poly.Color = nil
	poly.LineStyle.Color = c
	poly.LineStyle.Width = vg.Points(1)
	p.Add(poly)
	if label != "" {
		p.Legend.Add(label, poly)
	}
	return nil
}
