// Package chunker implements the inbound and outbound chunked transfer
// state machines. Chunks are the wire package's sequenced frames; the
// underlying link delivers them in order or not at all, so sequence numbers
// are verified rather than reordered.
//
// The inbound receiver is split across two execution contexts: OnChunk runs
// in the link callback context (small stack, no storage I/O, no blocking)
// and Process runs in the cooperative main loop. The readyToPersist flag and
// all transfer state are guarded by a mutex held only across state updates,
// never across I/O.
package chunker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/mempool"
	"github.com/machinefabric/devlink-go/storage"
	"github.com/machinefabric/devlink-go/wire"
)

const (
	// MaxTransferSize is the hard ceiling on one inbound transfer (512 KiB).
	MaxTransferSize uint32 = 512 * 1024
	// MaxManifestFiles bounds a multi-file push manifest.
	MaxManifestFiles = 16
)

var (
	// ErrBadSize rejects zero or over-ceiling transfer declarations.
	ErrBadSize = errors.New("chunker: invalid transfer size")
	// ErrBadManifest rejects empty or oversized file manifests.
	ErrBadManifest = errors.New("chunker: invalid file manifest")
	// ErrSequence aborts a transfer on an out-of-order chunk.
	ErrSequence = errors.New("chunker: chunk sequence mismatch")
	// ErrOverflow aborts a transfer whose chunks exceed the declared total.
	ErrOverflow = errors.New("chunker: transfer overflow")
)

// FileEntry is one file in a multi-file push manifest. Byte ranges within
// the reassembled blob are implicit: each file starts at the cumulative sum
// of the preceding sizes.
type FileEntry struct {
	Name string
	Size uint32
}

// Mode distinguishes single-file and manifest-driven transfers.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
)

// Outcome reports what a persistence pass saved.
type Outcome struct {
	Saved int
	Total int
}

// String renders the "saved/total" report.
func (o Outcome) String() string {
	return fmt.Sprintf("%d/%d", o.Saved, o.Total)
}

// Receiver reassembles a declared-size byte blob from sequenced chunks and
// defers validation and persistence to the main loop. At most one inbound
// transfer is active at a time; starting a new one cancels the old one.
type Receiver struct {
	mu    sync.Mutex
	alloc *mempool.Allocator
	store *storage.Store
	log   *zap.Logger

	// onReady fires (from the callback context) when the final chunk
	// lands; the composition root uses it to enqueue the persistence task.
	// It must only set flags or enqueue, never touch storage.
	onReady func()
	// onAppsChanged fires after a persistence pass that saved anything.
	onAppsChanged func()

	active   bool
	owner    string
	dest     string
	mode     Mode
	manifest []FileEntry
	expected uint32
	received uint32
	nextSeq  uint16
	buf      []byte
	ready    bool
	id       string
}

// NewReceiver creates an idle receiver.
func NewReceiver(alloc *mempool.Allocator, store *storage.Store, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{alloc: alloc, store: store, log: log}
}

// SetOnReady installs the completion hook. Called from the callback context.
func (r *Receiver) SetOnReady(fn func()) {
	r.mu.Lock()
	r.onReady = fn
	r.mu.Unlock()
}

// SetOnAppsChanged installs the post-persistence refresh hook.
func (r *Receiver) SetOnAppsChanged(fn func()) {
	r.mu.Lock()
	r.onAppsChanged = fn
	r.mu.Unlock()
}

// Start begins a single-file transfer. A transfer already in progress is
// cancelled and freed first. The destination buffer comes from the bounded
// secondary pool with primary fallback; allocation failure leaves the
// receiver idle.
func (r *Receiver) Start(owner, dest string, expected uint32) error {
	return r.start(owner, dest, nil, ModeSingle, expected)
}

// StartMulti begins a manifest-driven transfer of several files packed into
// one blob.
func (r *Receiver) StartMulti(owner string, manifest []FileEntry, total uint32) error {
	if len(manifest) == 0 || len(manifest) > MaxManifestFiles {
		return fmt.Errorf("%w: %d files", ErrBadManifest, len(manifest))
	}
	return r.start(owner, "", manifest, ModeMulti, total)
}

func (r *Receiver) start(owner, dest string, manifest []FileEntry, mode Mode, expected uint32) error {
	if expected == 0 || expected > MaxTransferSize {
		return fmt.Errorf("%w: %d bytes", ErrBadSize, expected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeLocked()

	buf, err := r.alloc.Get(int(expected))
	if err != nil {
		return fmt.Errorf("chunker: allocate %d bytes: %w", expected, err)
	}

	r.active = true
	r.owner = storage.Slug(owner)
	r.dest = dest
	r.mode = mode
	r.manifest = manifest
	r.expected = expected
	r.received = 0
	r.nextSeq = 0
	r.buf = buf
	r.ready = false
	r.id = uuid.NewString()

	r.log.Info("inbound transfer started",
		zap.String("transfer", r.id),
		zap.String("owner", r.owner),
		zap.Uint32("bytes", expected),
		zap.Int("files", len(manifest)))
	return nil
}

// OnChunk accepts one chunk frame from the link callback context. Frames
// shorter than 3 bytes are dropped silently (keep-alives). A sequence
// mismatch or overflow aborts the transfer, frees the buffer and returns
// the error; no reordering or retry happens here. No storage I/O occurs in
// this call.
func (r *Receiver) OnChunk(frame []byte) error {
	seq, payload, ok := wire.ParseChunk(frame)
	if !ok {
		return nil
	}

	r.mu.Lock()
	if !r.active || r.ready {
		r.mu.Unlock()
		return nil
	}
	if seq != r.nextSeq {
		id, want := r.id, r.nextSeq
		r.freeLocked()
		r.mu.Unlock()
		r.log.Warn("inbound transfer aborted: bad sequence",
			zap.String("transfer", id),
			zap.Uint16("expected", want),
			zap.Uint16("got", seq))
		return fmt.Errorf("%w: expected %d, got %d", ErrSequence, want, seq)
	}
	if r.received+uint32(len(payload)) > r.expected {
		id := r.id
		over := r.received + uint32(len(payload))
		total := r.expected
		r.freeLocked()
		r.mu.Unlock()
		r.log.Warn("inbound transfer aborted: overflow",
			zap.String("transfer", id),
			zap.Uint32("would_be", over),
			zap.Uint32("declared", total))
		return fmt.Errorf("%w: %d > %d", ErrOverflow, over, total)
	}

	copy(r.buf[r.received:], payload)
	r.received += uint32(len(payload))
	r.nextSeq++

	var done func()
	if r.received == r.expected {
		r.ready = true
		done = r.onReady
	}
	r.mu.Unlock()

	if done != nil {
		done()
	}
	return nil
}

// Ready reports whether a completed transfer is waiting for Process.
func (r *Receiver) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Active reports whether a transfer is in progress or awaiting persistence.
func (r *Receiver) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Received returns the byte count accepted so far.
func (r *Receiver) Received() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

// Process validates and persists a completed transfer. Main-loop context
// only: this is where storage I/O happens. It is a no-op unless the
// transfer is ready. Along every path the destination buffer is freed and
// the receiver returns to idle; there is no retry state.
func (r *Receiver) Process() (Outcome, error) {
	r.mu.Lock()
	if !r.ready {
		r.mu.Unlock()
		return Outcome{}, nil
	}
	// Detach state under the lock; persistence runs without it so the
	// callback context stays unblocked.
	buf := r.buf
	owner, dest := r.owner, r.dest
	mode := r.mode
	manifest := r.manifest
	id := r.id
	onAppsChanged := r.onAppsChanged
	r.buf = nil
	r.resetLocked()
	r.mu.Unlock()

	defer r.alloc.Put(buf)

	outcome, err := r.persist(owner, dest, mode, manifest, buf)
	if err != nil {
		r.log.Warn("inbound transfer discarded",
			zap.String("transfer", id),
			zap.Error(err))
		return outcome, err
	}
	r.log.Info("inbound transfer persisted",
		zap.String("transfer", id),
		zap.String("owner", owner),
		zap.String("saved", outcome.String()))
	if outcome.Saved > 0 && onAppsChanged != nil {
		onAppsChanged()
	}
	return outcome, nil
}

func (r *Receiver) persist(owner, dest string, mode Mode, manifest []FileEntry, buf []byte) (Outcome, error) {
	if mode == ModeSingle {
		if err := storage.ValidateMarkup(dest, buf); err != nil {
			return Outcome{Total: 1}, err
		}
		if err := r.store.SaveAppFile(owner, dest, buf); err != nil {
			return Outcome{Total: 1}, err
		}
		return Outcome{Saved: 1, Total: 1}, nil
	}

	// Multi mode: validate every markup file up front so a corrupt blob
	// saves nothing, then slice by cumulative offsets.
	offset := uint32(0)
	for _, f := range manifest {
		if offset+f.Size > uint32(len(buf)) {
			return Outcome{Total: len(manifest)},
				fmt.Errorf("chunker: manifest overruns blob at %q", f.Name)
		}
		if err := storage.ValidateMarkup(f.Name, buf[offset:offset+f.Size]); err != nil {
			return Outcome{Total: len(manifest)}, err
		}
		offset += f.Size
	}

	outcome := Outcome{Total: len(manifest)}
	offset = 0
	for _, f := range manifest {
		slice := buf[offset : offset+f.Size]
		offset += f.Size
		if err := r.store.SaveAppFile(owner, f.Name, slice); err != nil {
			r.log.Warn("file save failed",
				zap.String("owner", owner),
				zap.String("file", f.Name),
				zap.Error(err))
			continue
		}
		outcome.Saved++
	}
	if outcome.Saved < outcome.Total {
		return outcome, fmt.Errorf("chunker: saved %s files", outcome.String())
	}
	return outcome, nil
}

// Cancel aborts any transfer, frees the buffer and resets to idle without
// persisting. Safe to call when idle. Main-loop context only.
func (r *Receiver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeLocked()
}

// freeLocked releases the buffer and resets. Caller holds the mutex.
func (r *Receiver) freeLocked() {
	if r.buf != nil {
		r.alloc.Put(r.buf)
		r.buf = nil
	}
	r.resetLocked()
}

// resetLocked clears transfer state without touching the buffer reference.
func (r *Receiver) resetLocked() {
	r.active = false
	r.ready = false
	r.owner = ""
	r.dest = ""
	r.manifest = nil
	r.expected = 0
	r.received = 0
	r.nextSeq = 0
	r.id = ""
}
