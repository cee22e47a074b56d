// Command simworld aggregates vehicle telemetry into a world snapshot and
// streams it to display clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/simworld/internal/config"
	"github.com/banshee-data/simworld/internal/db"
	"github.com/banshee-data/simworld/internal/feed"
	"github.com/banshee-data/simworld/internal/httputil"
	"github.com/banshee-data/simworld/internal/simworld"
	"github.com/banshee-data/simworld/internal/version"
	"github.com/banshee-data/simworld/internal/visualiser"
)

var (
	configPath = flag.String("config", "", "Path to a JSON service config file")
	feedPath   = flag.String("feed", "", "Telemetry source: file, serial device under /dev/, or - for stdin (overrides config)")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen = flag.String("grpc-listen", "", "gRPC listen address (overrides config)")
	dbPath     = flag.String("db", "", "SQLite history database path (overrides config)")
	noDB       = flag.Bool("no-db", false, "Disable history recording")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() *config.ServiceConfig {
	cfg := &config.ServiceConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadServiceConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("failed to apply environment overrides: %v", err)
	}
	for dst, v := range map[**string]string{
		&cfg.FeedPath:   *feedPath,
		&cfg.HTTPListen: *listen,
		&cfg.GRPCListen: *grpcListen,
		&cfg.DBPath:     *dbPath,
	} {
		if v != "" {
			s := v
			*dst = &s
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())
	cfg := loadConfig()

	vehicle, err := cfg.ResolveVehicle()
	if err != nil {
		log.Fatalf("failed to resolve vehicle %q: %v", cfg.GetVehicleModel(), err)
	}
	svc, err := simworld.NewService(simworld.Options{
		Dimensions: simworld.VehicleDimensions{
			Length: vehicle.Length,
			Width:  vehicle.Width,
			Height: vehicle.Height,
		},
		TrajectoryStride:    cfg.GetTrajectoryStride(),
		DropStaleTrajectory: cfg.GetDropStaleTrajectory(),
	})
	if err != nil {
		log.Fatalf("failed to create world service: %v", err)
	}
	log.Printf("world service ready: vehicle=%s stride=%d", cfg.GetVehicleModel(), cfg.GetTrajectoryStride())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var database *db.DB
	if !*noDB {
		database, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
	}

	dispatcher := feed.NewDispatcher(svc)
	if database != nil {
		dispatcher.SetMonitorSink(func(msg *simworld.MonitorMessage) {
			if err := database.RecordMonitorMessage(ctx, msg); err != nil {
				log.Printf("[DB] failed to archive monitor message: %v", err)
			}
		})
	}

	source, err := feed.OpenSource(cfg.GetFeedPath(), cfg.GetFeedBaudRate())
	if err != nil {
		log.Fatalf("failed to open feed: %v", err)
	}
	feedMux := feed.NewMux(source, dispatcher)
	defer feedMux.Close()

	publisher := visualiser.NewPublisher(visualiser.Config{
		ListenAddr:      cfg.GetGRPCListen(),
		PublishInterval: cfg.GetPublishInterval(),
	})
	if err := publisher.Start(); err != nil {
		log.Fatalf("failed to start publisher: %v", err)
	}
	defer publisher.Stop()
	if err := publisher.ListenAndServeGRPC(); err != nil {
		log.Fatalf("failed to start gRPC server: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Feed] monitor stopped: %v", err)
			return
		}
		log.Print("[Feed] monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := publisher.Run(ctx, svc); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Visualiser] publish loop stopped: %v", err)
		}
	}()

	if database != nil {
		rec := &db.Recorder{
			DB:       database,
			Source:   svc,
			Interval: cfg.GetRecordInterval(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[DB] recorder stopped: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", publisher.WSHandler())
	mux.HandleFunc("/api/world", httputil.JSON(func(*http.Request) (any, error) {
		return svc.Snapshot(), nil
	}))
	feedMux.AttachAdminRoutes(mux)
	publisher.AttachAdminRoutes(mux)
	if database != nil {
		database.AttachAdminRoutes(mux)
	}

	server := &http.Server{Addr: cfg.GetHTTPListen(), Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	publisher.Stop()
	wg.Wait()
}
