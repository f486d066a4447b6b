package devlink

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/machinefabric/devlink-go/dispatch"
	"github.com/machinefabric/devlink-go/wire"
)

// memLink is an in-memory wireless link for end-to-end tests.
type memLink struct {
	control [][]byte
	binary  [][]byte
	down    bool
}

func (l *memLink) Write(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.control = append(l.control, cp)
	return nil
}

func (l *memLink) WriteBinary(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.binary = append(l.binary, cp)
	return nil
}

func (l *memLink) Connected() bool { return !l.down }

func newTestService(t *testing.T) (*Service, *memLink) {
	t.Helper()
	s := New(Config{StorageDir: t.TempDir()}, zap.NewNop())
	s.Sender.SetPacing(0)
	link := &memLink{}
	s.AttachWireless(link)
	return s, link
}

func ticks(s *Service, n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

func TestStructuredCommandRoundtrip(t *testing.T) {
	s, link := newTestService(t)

	encoded, err := cbor.Marshal([]any{9, "sys", "ping"})
	require.NoError(t, err)
	s.OnStructuredCommand(encoded)
	require.Empty(t, link.control, "nothing executes before the tick")

	s.Tick()
	require.Len(t, link.control, 1)

	var reply []any
	require.NoError(t, cbor.Unmarshal(link.control[0], &reply))
	assert.EqualValues(t, 9, reply[0])
	assert.Equal(t, "ok", reply[1])
}

func TestCommandLineDeferredToMainLoop(t *testing.T) {
	s, link := newTestService(t)
	s.OnCommandLine("sys ping")
	assert.Empty(t, link.control)
	s.Tick()
	assert.Len(t, link.control, 1)
}

func TestInboundPushEndToEnd(t *testing.T) {
	refreshed := false
	s := New(Config{StorageDir: t.TempDir(), AppsRefresh: func() { refreshed = true }}, zap.NewNop())
	s.Sender.SetPacing(0)
	link := &memLink{}
	s.AttachWireless(link)

	data := []byte("<html><body>hi</body></html>")
	require.NoError(t, s.Receiver.Start("Demo App", "index.html", uint32(len(data))))
	require.NoError(t, s.OnChunk(wire.EncodeChunk(0, data)))

	// First tick drains the persist task; second runs the refresh task it
	// enqueues.
	ticks(s, 2)
	assert.True(t, refreshed)

	saved, err := s.Store.ReadAppFile("Demo App", "index.html")
	require.NoError(t, err)
	assert.Equal(t, data, saved)

	// Outcome reported over the transport.
	require.NotEmpty(t, link.control)
	var reply []any
	require.NoError(t, cbor.Unmarshal(link.control[len(link.control)-1], &reply))
	assert.Equal(t, "ok", reply[1])
}

func TestLargePayloadStreamsAsChunks(t *testing.T) {
	s, link := newTestService(t)

	// Install a file bigger than one chunk, then read it back.
	blob := make([]byte, 700)
	for i := range blob {
		blob[i] = byte(i)
	}
	require.NoError(t, s.Store.SaveAppFile("Big", "big.bin", blob))

	encoded, err := cbor.Marshal([]any{5, "apps", "read", []any{"Big", "big.bin"}})
	require.NoError(t, err)
	s.OnStructuredCommand(encoded)
	s.Tick() // executes command, sends reply, hands payload to sender

	require.Len(t, link.control, 1)
	var reply []any
	require.NoError(t, cbor.Unmarshal(link.control[0], &reply))
	data, ok := reply[2].(map[any]any)
	require.True(t, ok)
	assert.EqualValues(t, len(blob), data["bytes"])
	assert.Equal(t, "binary", data["type"])

	// ceil(700/250) = 3 chunks, one per tick, then a terminating tick.
	ticks(s, 4)
	require.Len(t, link.binary, 3)

	var reassembled []byte
	for i, frame := range link.binary {
		seq, payload, ok := wire.ParseChunk(frame)
		require.True(t, ok)
		assert.Equal(t, uint16(i), seq)
		reassembled = append(reassembled, payload...)
	}
	assert.Equal(t, blob, reassembled)
	assert.False(t, s.Sender.Active())
}

func TestBinarySendFailsWithoutBinaryTransport(t *testing.T) {
	s := New(Config{StorageDir: t.TempDir()}, zap.NewNop())
	assert.Error(t, s.SendBinary([]byte{1, 2, 3}))
}

func TestFetchReplyThroughService(t *testing.T) {
	s, link := newTestService(t)

	called := 0
	// The request document goes out as a JSON text line over the link.
	_, err := s.Dispatcher.SendFetchRequest(
		dispatch.FetchSpec{Method: "GET", URL: "https://example.com"},
		func(status int, body string) { called++ })
	require.NoError(t, err)
	require.Len(t, link.control, 1)

	require.NoError(t, s.OnFetchReply([]byte(`{"id":1,"status":200,"body":"ok"}`)))
	assert.Equal(t, 1, called)
}

func TestSysVersionReportsServiceVersion(t *testing.T) {
	s, _ := newTestService(t)
	r := s.Dispatcher.ExecLine("sys version")
	require.True(t, r.Success)
	assert.Equal(t, Version, r.Data["version"])
}
