// Package dispatch routes command invocations to subsystem handlers and
// tracks request/response correlation for proxied asynchronous calls.
//
// Two correlation paths exist and stay distinct: structured commands
// ([id, subsystem, cmd, args?]) are executed synchronously and their Result
// replies immediately with the same id, while proxied fetch requests are
// asynchronous and resolve through an id-keyed pending-callback map.
package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/result"
	"github.com/machinefabric/devlink-go/transport"
)

// Subsystem handles the commands of one device subsystem. Each subsystem
// owns its own argument validation and returns a canonical Result.
type Subsystem interface {
	Name() string
	Exec(cmd string, args []string) *result.Result
}

// Dispatcher routes commands and correlates proxied fetch replies. All
// methods are safe for main-loop use; HandleFetchReply may additionally be
// invoked from the link callback context (the pending map is mutex-guarded
// and callbacks are expected to defer real work through the work queue).
type Dispatcher struct {
	log        *zap.Logger
	subsystems map[string]Subsystem

	mu        sync.Mutex
	active    transport.Transport
	pending   map[int]FetchCallback
	nextFetch int
}

// New creates a dispatcher with no subsystems registered.
func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:        log,
		subsystems: make(map[string]Subsystem),
		pending:    make(map[int]FetchCallback),
		nextFetch:  1,
	}
}

// Register adds a subsystem. Later registrations with the same name win.
func (d *Dispatcher) Register(s Subsystem) {
	d.subsystems[s.Name()] = s
}

// SetTransport selects the active transport used for structured replies
// and outgoing fetch requests.
func (d *Dispatcher) SetTransport(t transport.Transport) {
	d.mu.Lock()
	d.active = t
	d.mu.Unlock()
}

// Transport returns the active transport (may be nil).
func (d *Dispatcher) Transport() transport.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Exec routes one command invocation to its subsystem.
func (d *Dispatcher) Exec(subsystem, cmd string, args []string) *result.Result {
	s, ok := d.subsystems[subsystem]
	if !ok {
		return result.Errf(result.KindInvalid, "unknown subsystem %q", subsystem)
	}
	if cmd == "" {
		return result.Errf(result.KindInvalid, "missing command for %q", subsystem)
	}
	return s.Exec(cmd, args)
}

// ExecLine parses "subsystem cmd arg1 arg2" and executes it.
func (d *Dispatcher) ExecLine(line string) *result.Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return result.Err(result.KindInvalid, "empty command")
	}
	if len(fields) == 1 {
		return d.Exec(fields[0], "", nil)
	}
	return d.Exec(fields[0], fields[1], fields[2:])
}

// HandleStructured decodes a CBOR command array [id, subsystem, cmd, args?],
// executes it synchronously and, when id > 0, sends the Result back over
// the active transport tagged with the same id. The Result is also returned
// for callers that deliver it themselves.
func (d *Dispatcher) HandleStructured(encoded []byte) *result.Result {
	var arr []any
	if err := cbor.Unmarshal(encoded, &arr); err != nil {
		return d.replyStructured(0, result.Errf(result.KindInvalid, "malformed command: %v", err))
	}
	if len(arr) < 3 || len(arr) > 4 {
		return d.replyStructured(0, result.Errf(result.KindInvalid, "command array must have 3 or 4 elements, got %d", len(arr)))
	}

	id, ok := asInt(arr[0])
	if !ok {
		return d.replyStructured(0, result.Err(result.KindInvalid, "command id must be an integer"))
	}
	subsystem, ok := arr[1].(string)
	if !ok {
		return d.replyStructured(id, result.Err(result.KindInvalid, "subsystem must be a string"))
	}
	cmd, ok := arr[2].(string)
	if !ok {
		return d.replyStructured(id, result.Err(result.KindInvalid, "command must be a string"))
	}

	var args []string
	if len(arr) == 4 && arr[3] != nil {
		rawArgs, ok := arr[3].([]any)
		if !ok {
			return d.replyStructured(id, result.Err(result.KindInvalid, "args must be an array"))
		}
		for _, a := range rawArgs {
			args = append(args, fmt.Sprintf("%v", a))
		}
	}

	return d.replyStructured(id, d.Exec(subsystem, cmd, args))
}

// replyStructured delivers a Result tagged with id when id > 0 and a
// transport is active.
func (d *Dispatcher) replyStructured(id int, r *result.Result) *result.Result {
	if id <= 0 {
		return r
	}
	t := d.Transport()
	if t == nil {
		d.log.Warn("no active transport for structured reply", zap.Int("id", id))
		return r
	}
	if err := t.SendResult(id, r); err != nil {
		d.log.Warn("structured reply delivery failed",
			zap.Int("id", id),
			zap.String("transport", t.Name()),
			zap.Error(err))
	}
	return r
}

// asInt normalizes CBOR integer decodings.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
