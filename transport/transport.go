// Package transport defines the capability interface every communication
// link variant implements, plus the wireless and serial variants. The
// physical link layers (radio pairing, serial byte transport) are external
// collaborators injected at construction.
package transport

import (
	"errors"

	"github.com/machinefabric/devlink-go/result"
)

// ErrDisconnected is returned when a send is attempted on a link that is
// not currently connected. Disconnection does not cancel in-progress
// transfers; sends simply fail until reconnection or explicit cancellation.
var ErrDisconnected = errors.New("transport: link disconnected")

// Transport is the closed capability interface consumed by the command
// dispatcher. Exactly these five operations; variants differ in encoding
// and in whether large payloads need chunked side-channel delivery.
type Transport interface {
	// SendResult serializes and delivers a command Result correlated with
	// requestID. Ownership of any attached payload buffer passes to the
	// transport.
	SendResult(requestID int, r *result.Result) error
	// SendText delivers a plain text line (prompts, push outcomes, proxied
	// request documents).
	SendText(text string) error
	// SupportsBinary reports whether the variant has a binary side channel
	// for chunked payload delivery.
	SupportsBinary() bool
	// Connected reports current link state.
	Connected() bool
	// Name identifies the variant for logs.
	Name() string
}
