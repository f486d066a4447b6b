package transport

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/result"
)

// Link is the wireless short-range link stack as seen by this layer. Write
// delivers one control frame; WriteBinary delivers one chunk frame on the
// binary side channel. Frames arrive at the peer in order or not at all.
type Link interface {
	Write(frame []byte) error
	WriteBinary(frame []byte) error
	Connected() bool
}

// PayloadSink receives ownership of large payload buffers for chunked
// delivery (the outbound chunk sender implements this).
type PayloadSink interface {
	Start(buf []byte)
}

// Wireless encodes Results as compact CBOR tagged arrays
// [requestId, "ok"|"error", dataOrError] over the link's control channel.
// Payload-carrying Results annotate the data object with {bytes, type} and
// hand the payload to the sink for chunked delivery, so the caller knows to
// expect a follow-up chunk stream.
type Wireless struct {
	link Link
	sink PayloadSink
	log  *zap.Logger
}

// NewWireless creates the wireless transport over an injected link stack.
func NewWireless(link Link, sink PayloadSink, log *zap.Logger) *Wireless {
	if log == nil {
		log = zap.NewNop()
	}
	return &Wireless{link: link, sink: sink, log: log}
}

// Name implements Transport.
func (w *Wireless) Name() string { return "wireless" }

// SupportsBinary implements Transport.
func (w *Wireless) SupportsBinary() bool { return true }

// Connected implements Transport.
func (w *Wireless) Connected() bool { return w.link.Connected() }

// SendText implements Transport.
func (w *Wireless) SendText(text string) error {
	if !w.link.Connected() {
		return ErrDisconnected
	}
	return w.link.Write([]byte(text))
}

// SendBinary delivers one chunk frame on the side channel; the outbound
// chunk sender calls this once per tick.
func (w *Wireless) SendBinary(frame []byte) error {
	if !w.link.Connected() {
		return ErrDisconnected
	}
	return w.link.WriteBinary(frame)
}

// SendResult implements Transport.
func (w *Wireless) SendResult(requestID int, r *result.Result) error {
	if !w.link.Connected() {
		// Payload ownership arrived with the Result; release it so a
		// failed delivery does not leak the buffer.
		r.Payload = nil
		return ErrDisconnected
	}

	var reply []any
	if r.Success {
		data := any(r.Data)
		if r.HasPayload() {
			annotated := make(map[string]any, len(r.Data)+2)
			for k, v := range r.Data {
				annotated[k] = v
			}
			annotated["bytes"] = r.PayloadSize
			annotated["type"] = r.PayloadKind.String()
			data = annotated
		}
		reply = []any{requestID, "ok", data}
	} else {
		errObj := map[string]any{
			"code":    r.Code.String(),
			"message": r.Message,
		}
		if r.HTTPCode != 0 {
			errObj["http"] = r.HTTPCode
		}
		reply = []any{requestID, "error", errObj}
	}

	encoded, err := cbor.Marshal(reply)
	if err != nil {
		return fmt.Errorf("transport: encode reply: %w", err)
	}
	if err := w.link.Write(encoded); err != nil {
		// Ownership was transferred with the Result; the payload must not
		// outlive a failed delivery.
		r.Payload = nil
		return fmt.Errorf("transport: deliver reply: %w", err)
	}

	if r.Success && r.HasPayload() {
		w.log.Debug("handing payload to chunk sender",
			zap.Int("request", requestID),
			zap.Uint32("bytes", r.PayloadSize))
		w.sink.Start(r.Payload)
		r.Payload = nil
	}
	return nil
}
