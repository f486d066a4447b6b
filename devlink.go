// Package devlink wires the command-and-bulk-transfer core together: the
// work queue, the chunked transfer state machines, the transports and the
// command dispatcher, driven by a single cooperative main loop.
//
// There are no package-level singletons; the Service is the explicitly
// constructed composition root and owns every component.
package devlink

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/chunker"
	"github.com/machinefabric/devlink-go/dispatch"
	"github.com/machinefabric/devlink-go/mempool"
	"github.com/machinefabric/devlink-go/queue"
	"github.com/machinefabric/devlink-go/result"
	"github.com/machinefabric/devlink-go/storage"
	"github.com/machinefabric/devlink-go/transport"
)

// Version is reported by "sys version".
const Version = "0.3.0"

const (
	// DefaultPrimaryPool is the smaller reserve pool (fallback).
	DefaultPrimaryPool = 64 * 1024
	// DefaultSecondaryPool is the bulk transfer pool.
	DefaultSecondaryPool = 768 * 1024
	// DefaultTick is the main-loop interval.
	DefaultTick = 20 * time.Millisecond
)

// Config configures a Service.
type Config struct {
	StorageDir    string
	PrimaryPool   int
	SecondaryPool int
	Pacing        time.Duration
	// AppsRefresh is invoked from the main loop whenever the installed
	// application set changes (UI refresh hook). May be nil.
	AppsRefresh func()
}

// Service is the composition root. All components are owned here and their
// cross-context wiring (callback context vs main loop) is established at
// construction.
type Service struct {
	log        *zap.Logger
	Queue      *queue.Queue
	Alloc      *mempool.Allocator
	Store      *storage.Store
	Receiver   *chunker.Receiver
	Sender     *chunker.Sender
	Dispatcher *dispatch.Dispatcher

	start time.Time
}

// New constructs and wires a Service.
func New(cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PrimaryPool <= 0 {
		cfg.PrimaryPool = DefaultPrimaryPool
	}
	if cfg.SecondaryPool <= 0 {
		cfg.SecondaryPool = DefaultSecondaryPool
	}

	s := &Service{
		log:   log,
		Queue: queue.New(log),
		Alloc: mempool.NewAllocator(
			mempool.NewPool(cfg.PrimaryPool),
			mempool.NewPool(cfg.SecondaryPool),
		),
		Store: storage.NewStore(cfg.StorageDir, log),
		start: time.Now(),
	}

	s.Receiver = chunker.NewReceiver(s.Alloc, s.Store, log)
	s.Sender = chunker.NewSender(s, nil, log)
	if cfg.Pacing > 0 {
		s.Sender.SetPacing(cfg.Pacing)
	}

	s.Dispatcher = dispatch.New(log)
	s.Dispatcher.Register(&dispatch.SysSubsystem{
		Version: Version,
		Uptime:  func() int64 { return int64(time.Since(s.start).Seconds()) },
	})
	refresh := func() {
		if cfg.AppsRefresh != nil {
			s.Queue.PushKeyed("apps.refresh", cfg.AppsRefresh)
		}
	}
	s.Dispatcher.Register(&dispatch.AppsSubsystem{Store: s.Store, Refresh: refresh})

	// Completion flag from the callback context; persistence deferred to
	// the main loop through the queue.
	s.Receiver.SetOnReady(func() {
		s.Queue.PushKeyed("transfer.persist", s.persistInbound)
	})
	s.Receiver.SetOnAppsChanged(refresh)

	return s
}

// SendBinary routes a chunk frame to the active transport's binary side
// channel. The outbound chunk sender calls this once per tick; when the
// active transport has no binary capability or is absent, the send fails
// and the sender retries the identical chunk next tick.
func (s *Service) SendBinary(frame []byte) error {
	t := s.Dispatcher.Transport()
	if t == nil || !t.SupportsBinary() {
		return transport.ErrDisconnected
	}
	bin, ok := t.(chunker.BinaryOutput)
	if !ok {
		return fmt.Errorf("devlink: transport %s lacks binary channel", t.Name())
	}
	return bin.SendBinary(frame)
}

// AttachWireless creates a wireless transport over the given link, using
// this service's chunk sender as the payload sink, and makes it active.
func (s *Service) AttachWireless(link transport.Link) *transport.Wireless {
	w := transport.NewWireless(link, s.Sender, s.log)
	s.Dispatcher.SetTransport(w)
	return w
}

// AttachSerial creates a serial transport over the given writer and makes
// it active.
func (s *Service) AttachSerial(w io.Writer, connected func() bool) *transport.Serial {
	t := transport.NewSerial(w, connected, s.log)
	s.Dispatcher.SetTransport(t)
	return t
}

// Link-callback-context entry points. These never block on storage and
// never execute commands inline; everything heavier than a flag or a copy
// is deferred through the queue.

// OnChunk accepts one inbound chunk frame.
func (s *Service) OnChunk(frame []byte) error {
	return s.Receiver.OnChunk(frame)
}

// OnCommandLine defers execution of a text command to the main loop. The
// Result is delivered over the active transport with request id 0.
func (s *Service) OnCommandLine(line string) {
	s.Queue.Push(func() {
		s.deliver(0, s.Dispatcher.ExecLine(line))
	})
}

// OnStructuredCommand defers execution of a CBOR command array to the main
// loop; the dispatcher replies with the array's id itself.
func (s *Service) OnStructuredCommand(encoded []byte) {
	data := make([]byte, len(encoded))
	copy(data, encoded)
	s.Queue.Push(func() {
		s.Dispatcher.HandleStructured(data)
	})
}

// OnFetchReply correlates a proxied fetch reply with its pending request.
// The pending map is lock-guarded; callbacks are expected to defer real
// work through the queue themselves.
func (s *Service) OnFetchReply(doc []byte) error {
	return s.Dispatcher.HandleFetchReply(doc)
}

// Tick runs one cooperative main-loop iteration: drain deferred work, then
// advance the outbound transfer by at most one chunk.
func (s *Service) Tick() {
	s.Queue.Drain()
	s.Sender.SendNextChunk()
}

// Run ticks until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Receiver.Cancel()
			s.Sender.Cancel()
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// persistInbound runs the deferred validation/persistence step and reports
// the outcome back over the same transport the push arrived on.
func (s *Service) persistInbound() {
	outcome, err := s.Receiver.Process()
	if err != nil {
		s.deliver(0, result.Errf(result.KindInvalid, "push failed: %v (saved %s)", err, outcome))
		return
	}
	if outcome.Total > 0 {
		s.deliver(0, result.OKStatus(fmt.Sprintf("saved %s", outcome)))
	}
}

// deliver sends a Result over the active transport, if any.
func (s *Service) deliver(id int, r *result.Result) {
	t := s.Dispatcher.Transport()
	if t == nil {
		return
	}
	if err := t.SendResult(id, r); err != nil {
		s.log.Warn("result delivery failed",
			zap.String("transport", t.Name()),
			zap.Error(err))
	}
}
