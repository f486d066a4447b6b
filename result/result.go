// Package result provides the vocabulary for command outcomes: a Result
// value carrying success/error state, an optional structured data document,
// and an optional owned payload buffer delivered separately by a transport.
package result

import "fmt"

// ErrorKind is the canonical set of user-visible error kinds. Internal
// faults are always mapped to one of these before crossing a transport.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalid
	KindNotFound
	KindOffline
	KindTimeout
	KindServer
	KindDenied
	KindBusy
	KindMemory
)

// String returns the wire code for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindInvalid:
		return "INVALID"
	case KindNotFound:
		return "NOT_FOUND"
	case KindOffline:
		return "OFFLINE"
	case KindTimeout:
		return "TIMEOUT"
	case KindServer:
		return "SERVER"
	case KindDenied:
		return "DENIED"
	case KindBusy:
		return "BUSY"
	case KindMemory:
		return "MEMORY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// KindFromHTTPStatus maps an HTTP-like status code to a canonical kind.
// 2xx maps to KindNone (success).
func KindFromHTTPStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return KindNone
	case status == 401 || status == 403:
		return KindDenied
	case status == 404:
		return KindNotFound
	case status == 408 || status == 504:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindServer
	}
}

// PayloadKind indicates how a Result's payload should be delivered.
type PayloadKind int

const (
	// PayloadShort means the Result carries no separate payload buffer;
	// everything fits in the structured reply.
	PayloadShort PayloadKind = iota
	// PayloadString is a text payload delivered out of band (or inline on
	// transports without a frame-size ceiling).
	PayloadString
	// PayloadBinary is a raw byte payload.
	PayloadBinary
)

// String returns the wire name of the payload kind
func (pk PayloadKind) String() string {
	switch pk {
	case PayloadShort:
		return "short"
	case PayloadString:
		return "string"
	case PayloadBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", pk)
	}
}

// Result is the outcome of one command execution. The zero value is not
// meaningful; use OK/Err constructors.
//
// Payload ownership: whichever transport ultimately delivers the Result
// takes ownership of Payload and is responsible for releasing it exactly
// once (on delivery completion or cancellation).
type Result struct {
	Success     bool
	Status      string
	Code        ErrorKind
	Message     string
	HTTPCode    int
	Data        map[string]any
	PayloadKind PayloadKind
	Payload     []byte
	PayloadSize uint32
}

// OK returns a successful Result with status "ok".
func OK() *Result {
	return &Result{Success: true, Status: "ok"}
}

// OKStatus returns a successful Result with a custom status string.
func OKStatus(status string) *Result {
	return &Result{Success: true, Status: status}
}

// Err returns a failed Result with a canonical kind and message.
func Err(kind ErrorKind, message string) *Result {
	return &Result{Success: false, Code: kind, Message: message}
}

// Errf is Err with printf formatting.
func Errf(kind ErrorKind, format string, args ...any) *Result {
	return Err(kind, fmt.Sprintf(format, args...))
}

// ErrHTTP returns a failed Result whose kind is derived from an HTTP-like
// status code. A 2xx status still yields a failed Result tagged SERVER;
// callers wanting success must construct OK themselves.
func ErrHTTP(status int, message string) *Result {
	kind := KindFromHTTPStatus(status)
	if kind == KindNone {
		kind = KindServer
	}
	return &Result{Success: false, Code: kind, Message: message, HTTPCode: status}
}

// WithData attaches a structured data document.
func (r *Result) WithData(data map[string]any) *Result {
	r.Data = data
	return r
}

// WithStringData attaches an owned text payload buffer and switches the
// payload kind. Ownership of buf passes to the delivering transport.
func (r *Result) WithStringData(buf []byte) *Result {
	r.Payload = buf
	r.PayloadSize = uint32(len(buf))
	r.PayloadKind = PayloadString
	return r
}

// WithBinaryData attaches an owned binary payload buffer and switches the
// payload kind. Ownership of buf passes to the delivering transport.
func (r *Result) WithBinaryData(buf []byte) *Result {
	r.Payload = buf
	r.PayloadSize = uint32(len(buf))
	r.PayloadKind = PayloadBinary
	return r
}

// HasPayload reports whether a separate payload buffer is attached.
func (r *Result) HasPayload() bool {
	return r.PayloadKind != PayloadShort && r.Payload != nil
}
