package chunker

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/wire"
)

// DefaultPacing is the delay applied after each successfully delivered
// chunk. The receiving side cannot buffer frames faster than it forwards
// them to its own application layer.
const DefaultPacing = 50 * time.Millisecond

// BinaryOutput delivers one encoded chunk frame over a link's binary side
// channel. A transient failure (link momentarily unready) returns an error;
// the sender will re-offer the identical chunk on the next call.
type BinaryOutput interface {
	SendBinary(frame []byte) error
}

// Sender paces emission of one byte buffer as sequenced chunks. It owns the
// source buffer for the lifetime of the transfer and releases it exactly
// once, on natural completion or cancellation. At most one outbound
// transfer is active; starting a new one cancels the previous buffer.
//
// Main-loop context only: SendNextChunk advances at most one chunk per
// cooperative tick, so no internal locking is needed.
type Sender struct {
	out     BinaryOutput
	pacing  time.Duration
	log     *zap.Logger
	release func([]byte)

	active bool
	buf    []byte
	offset uint32
	seq    uint16
	id     string
}

// NewSender creates an idle sender. release, if non-nil, is invoked exactly
// once per owned buffer when the sender is done with it.
func NewSender(out BinaryOutput, release func([]byte), log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{out: out, pacing: DefaultPacing, log: log, release: release}
}

// SetPacing overrides the inter-chunk delay. Zero disables pacing (tests).
func (s *Sender) SetPacing(d time.Duration) {
	s.pacing = d
}

// Start takes ownership of buf and begins a new transfer, cancelling and
// freeing any transfer already in progress.
func (s *Sender) Start(buf []byte) {
	s.Cancel()
	s.active = true
	s.buf = buf
	s.offset = 0
	s.seq = 0
	s.id = uuid.NewString()
	s.log.Info("outbound transfer started",
		zap.String("transfer", s.id),
		zap.Int("bytes", len(buf)))
}

// Active reports whether a transfer is in progress.
func (s *Sender) Active() bool {
	return s.active
}

// SendNextChunk emits at most one chunk. It returns true while more work
// remains and false once the transfer is complete (or no transfer is
// active). A delivery failure leaves offset and sequence untouched so the
// identical chunk is retried on the next call. On success a short pacing
// delay is applied before the counters advance.
func (s *Sender) SendNextChunk() bool {
	if !s.active {
		return false
	}

	remaining := uint32(len(s.buf)) - s.offset
	if remaining == 0 {
		s.log.Info("outbound transfer complete",
			zap.String("transfer", s.id),
			zap.Uint16("chunks", s.seq))
		s.free()
		return false
	}

	size := remaining
	if size > wire.MaxPayload {
		size = wire.MaxPayload
	}
	frame := wire.EncodeChunk(s.seq, s.buf[s.offset:s.offset+size])
	if err := s.out.SendBinary(frame); err != nil {
		// Link unready; same chunk next tick.
		s.log.Debug("chunk delivery deferred",
			zap.String("transfer", s.id),
			zap.Uint16("seq", s.seq),
			zap.Error(err))
		return true
	}

	if s.pacing > 0 {
		time.Sleep(s.pacing)
	}
	s.offset += size
	s.seq++
	return true
}

// Cancel frees the buffer (if any) and deactivates. Safe to call when idle.
func (s *Sender) Cancel() {
	if !s.active {
		return
	}
	s.log.Info("outbound transfer cancelled",
		zap.String("transfer", s.id),
		zap.Uint32("sent", s.offset))
	s.free()
}

// free releases the owned buffer exactly once and resets to idle.
func (s *Sender) free() {
	if s.release != nil && s.buf != nil {
		s.release(s.buf)
	}
	s.buf = nil
	s.active = false
	s.offset = 0
	s.seq = 0
	s.id = ""
}
