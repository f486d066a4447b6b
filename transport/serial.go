package transport

import (
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/result"
)

// Serial writes human-readable replies over a wired byte transport. The
// serial channel has no frame-size ceiling, so payloads are written inline:
// StringData raw, BinaryData base64-encoded.
type Serial struct {
	w         io.Writer
	connected func() bool
	log       *zap.Logger
}

// NewSerial creates the serial transport over an injected writer. connected
// may be nil, in which case the port is treated as always connected.
func NewSerial(w io.Writer, connected func() bool, log *zap.Logger) *Serial {
	if log == nil {
		log = zap.NewNop()
	}
	return &Serial{w: w, connected: connected, log: log}
}

// Name implements Transport.
func (s *Serial) Name() string { return "serial" }

// SupportsBinary implements Transport. The serial variant needs no chunked
// side channel.
func (s *Serial) SupportsBinary() bool { return false }

// Connected implements Transport.
func (s *Serial) Connected() bool {
	if s.connected == nil {
		return true
	}
	return s.connected()
}

// SendText implements Transport.
func (s *Serial) SendText(text string) error {
	if !s.Connected() {
		return ErrDisconnected
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(s.w, text)
	return err
}

// SendResult implements Transport.
func (s *Serial) SendResult(requestID int, r *result.Result) error {
	if !s.Connected() {
		r.Payload = nil
		return ErrDisconnected
	}

	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "[%d] OK", requestID)
		if r.Status != "" && r.Status != "ok" {
			fmt.Fprintf(&b, " %s", r.Status)
		}
		b.WriteByte('\n')
	} else {
		fmt.Fprintf(&b, "[%d] ERROR %s: %s\n", requestID, r.Code, r.Message)
	}

	// Data fields in stable order so output is scriptable.
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s=%v\n", k, r.Data[k])
	}

	if r.HasPayload() {
		switch r.PayloadKind {
		case result.PayloadString:
			b.Write(r.Payload)
			if len(r.Payload) == 0 || r.Payload[len(r.Payload)-1] != '\n' {
				b.WriteByte('\n')
			}
		case result.PayloadBinary:
			b.WriteString(base64.StdEncoding.EncodeToString(r.Payload))
			b.WriteByte('\n')
		}
		r.Payload = nil
	}

	_, err := io.WriteString(s.w, b.String())
	return err
}
