package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// FetchCallback receives the proxied reply exactly once. No timeout exists
// in this core: callers must apply their own expiry policy (CancelFetch).
type FetchCallback func(status int, body string)

// FetchSpec describes a network call proxied to the external
// network-capable peer.
type FetchSpec struct {
	Method    string   `json:"method"`
	URL       string   `json:"url"`
	Body      string   `json:"body,omitempty"`
	Authorize bool     `json:"authorize,omitempty"`
	Format    string   `json:"format,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

// fetchRequest is the outgoing request document.
type fetchRequest struct {
	ID int `json:"id"`
	FetchSpec
}

// ErrNoTransport is returned when a fetch is issued with no active link.
var ErrNoTransport = errors.New("dispatch: no active transport")

// fetchReplySchema validates the reply document shape before it can touch
// the pending map.
const fetchReplySchema = `{
	"type": "object",
	"required": ["id", "status", "body"],
	"properties": {
		"id":     {"type": "integer"},
		"status": {"type": "integer"},
		"body":   {"type": "string"}
	}
}`

var fetchReplyLoader = gojsonschema.NewStringLoader(fetchReplySchema)

// SendFetchRequest builds a request document tagged with a fresh monotonic
// id, stores the callback in the pending map, and delivers the document as
// a JSON text line over the active transport. The returned id identifies
// the pending entry for CancelFetch.
func (d *Dispatcher) SendFetchRequest(spec FetchSpec, cb FetchCallback) (int, error) {
	if spec.Method == "" || spec.URL == "" {
		return 0, fmt.Errorf("dispatch: fetch needs method and url")
	}

	d.mu.Lock()
	t := d.active
	if t == nil {
		d.mu.Unlock()
		return 0, ErrNoTransport
	}
	id := d.nextFetch
	d.nextFetch++
	d.pending[id] = cb
	d.mu.Unlock()

	doc, err := json.Marshal(fetchRequest{ID: id, FetchSpec: spec})
	if err != nil {
		d.removePending(id)
		return 0, fmt.Errorf("dispatch: encode fetch request: %w", err)
	}
	if err := t.SendText(string(doc)); err != nil {
		d.removePending(id)
		return 0, fmt.Errorf("dispatch: deliver fetch request: %w", err)
	}

	d.log.Debug("fetch request sent",
		zap.Int("id", id),
		zap.String("method", spec.Method),
		zap.String("url", spec.URL))
	return id, nil
}

// HandleFetchReply processes a reply document {id, status, body} from the
// external peer. The pending entry is removed and invoked exactly once;
// a reply with no pending entry (stale or duplicate) is logged and dropped.
func (d *Dispatcher) HandleFetchReply(doc []byte) error {
	res, err := gojsonschema.Validate(fetchReplyLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("dispatch: validate fetch reply: %w", err)
	}
	if !res.Valid() {
		return fmt.Errorf("dispatch: malformed fetch reply: %v", res.Errors())
	}

	var reply struct {
		ID     int    `json:"id"`
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(doc, &reply); err != nil {
		return fmt.Errorf("dispatch: decode fetch reply: %w", err)
	}

	cb, ok := d.removePending(reply.ID)
	if !ok {
		d.log.Warn("fetch reply with no pending request dropped",
			zap.Int("id", reply.ID),
			zap.Int("status", reply.Status))
		return nil
	}
	if cb != nil {
		cb(reply.Status, reply.Body)
	}
	return nil
}

// CancelFetch removes a pending entry without invoking it. Returns whether
// an entry existed.
func (d *Dispatcher) CancelFetch(id int) bool {
	_, ok := d.removePending(id)
	return ok
}

// PendingCount reports outstanding fetch requests, for integrating systems
// applying their own timeout policy.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) removePending(id int) (FetchCallback, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return cb, ok
}
