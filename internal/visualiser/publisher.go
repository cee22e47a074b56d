// Package visualiser streams world snapshots to display clients over gRPC
// and websocket.
package visualiser

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"tailscale.com/tsweb"

	"github.com/banshee-data/simworld/internal/httputil"
	"github.com/banshee-data/simworld/internal/simworld"
	"github.com/banshee-data/simworld/internal/timeutil"
)

// Config holds configuration for the publisher and its gRPC server.
type Config struct {
	// ListenAddr is the gRPC listen address (e.g., "localhost:50051").
	ListenAddr string

	// PublishInterval is how often the world is polled for changes.
	PublishInterval time.Duration

	// ClientBuffer is the per-client frame queue depth.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "localhost:50051",
		PublishInterval: 100 * time.Millisecond,
		ClientBuffer:    10,
	}
}

// Frame is one published world snapshot.
type Frame struct {
	FrameID        uint64
	TimestampNanos int64
	World          simworld.WorldSnapshot
}

// SnapshotSource is the part of the world service the publisher polls.
type SnapshotSource interface {
	Snapshot() simworld.WorldSnapshot
	Sequence() uint64
}

type clientStream struct {
	id      string
	frameCh chan *Frame
}

// Publisher fans world frames out to connected clients. Slow clients drop
// frames rather than blocking the broadcast.
type Publisher struct {
	config Config
	clock  timeutil.Clock

	frameChan chan *Frame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	latest    *Frame

	server   *grpc.Server
	listener net.Listener

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultConfig().PublishInterval
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		clock:     timeutil.RealClock{},
		frameChan: make(chan *Frame, 100),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// SetClock replaces the clock used by Run. Call before Run.
func (p *Publisher) SetClock(c timeutil.Clock) {
	p.clock = c
}

// Start starts the broadcast loop.
func (p *Publisher) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.wg.Add(1)
	go p.broadcastLoop()
	return nil
}

// ListenAndServeGRPC binds the configured address and serves the world
// stream in the background.
func (p *Publisher) ListenAndServeGRPC() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.ServeGRPC(lis); err != nil && p.running.Load() {
			log.Printf("[Visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// ServeGRPC serves the world stream on lis until Stop. It blocks.
func (p *Publisher) ServeGRPC(lis net.Listener) error {
	const maxMsgSize = 16 * 1024 * 1024
	srv := grpc.NewServer(grpc.MaxSendMsgSize(maxMsgSize))
	RegisterWorldServer(srv, NewServer(p))

	p.clientsMu.Lock()
	p.server = srv
	p.listener = lis
	p.clientsMu.Unlock()

	log.Printf("[Visualiser] gRPC server listening on %s", lis.Addr())
	return srv.Serve(lis)
}

// Stop stops the broadcast loop and the gRPC server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)

	p.clientsMu.RLock()
	srv := p.server
	p.clientsMu.RUnlock()
	if srv != nil {
		// Streams only end when their contexts do, so don't wait for them.
		srv.Stop()
	}

	p.wg.Wait()
	log.Printf("[Visualiser] publisher stopped")
}

// Run polls source every publish interval and publishes a frame whenever
// the world sequence has advanced. It returns when ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, source SnapshotSource) error {
	ticker := p.clock.NewTicker(p.config.PublishInterval)
	defer ticker.Stop()

	var (
		lastSeq   uint64
		published bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case now := <-ticker.C():
			if published && source.Sequence() == lastSeq {
				continue
			}
			world := source.Snapshot()
			p.Publish(&Frame{TimestampNanos: now.UnixNano(), World: world})
			lastSeq = world.Sequence
			published = true
		}
	}
}

// Publish queues a frame for all connected clients. It never blocks.
func (p *Publisher) Publish(frame *Frame) {
	if !p.running.Load() || frame == nil {
		return
	}
	frame.FrameID = p.frameCount.Add(1)

	select {
	case p.frameChan <- frame:
	default:
		dropped := p.droppedFrames.Add(1)
		log.Printf("[Visualiser] DROPPED frame %d (total dropped: %d), channel full", frame.FrameID, dropped)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.Lock()
			p.latest = frame
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.Unlock()
		}
	}
}

// Subscribe registers a client and returns its ID and frame channel. The
// most recent frame, if any, is delivered immediately. name is a label for
// logs and may be empty.
func (p *Publisher) Subscribe(name string) (string, <-chan *Frame) {
	id := uuid.NewString()
	if name != "" {
		id = name + "-" + id
	}
	client := &clientStream{
		id:      id,
		frameCh: make(chan *Frame, p.config.ClientBuffer),
	}

	p.clientsMu.Lock()
	if p.latest != nil {
		client.frameCh <- p.latest
	}
	p.clients[id] = client
	p.clientsMu.Unlock()

	n := p.clientCount.Add(1)
	log.Printf("[Visualiser] Client connected: %s (total: %d)", id, n)
	return id, client.frameCh
}

// Unsubscribe removes a client. Unknown IDs are ignored.
func (p *Publisher) Unsubscribe(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()

	if ok {
		n := p.clientCount.Add(-1)
		log.Printf("[Visualiser] Client disconnected: %s (remaining: %d)", id, n)
	}
}

// Running reports whether the publisher has been started and not stopped.
func (p *Publisher) Running() bool {
	return p.running.Load()
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		ClientCount:   p.clientCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frame_count"`
	ClientCount   int32  `json:"client_count"`
	DroppedFrames uint64 `json:"dropped_frames"`
	Running       bool   `json:"running"`
}

// AttachAdminRoutes mounts publisher stats under /debug/visualiser.
func (p *Publisher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("visualiser", "World stream publisher stats", httputil.JSON(func(*http.Request) (any, error) {
		return p.Stats(), nil
	}))
}
