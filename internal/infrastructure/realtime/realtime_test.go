package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	block    chan struct{}
	written  chan struct{}
	controls []int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{written: make(chan struct{}, 256)}
}

func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	if messageType == websocket.TextMessage {
		f.frames = append(f.frames, data)
	}
	f.mu.Unlock()
	f.written <- struct{}{}
	return nil
}

func (f *fakeSocket) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	f.controls = append(f.controls, messageType)
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func TestConnectionSendWritesInOrder(t *testing.T) {
	ws := newFakeSocket()
	c := NewConnection("u1", ws)
	c.Start()
	defer c.Close(websocket.CloseNormalClosure, "")

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, c.Send([]byte(p), time.Second))
	}
	for i := 0; i < 3; i++ {
		<-ws.written
	}
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, ws.Frames())
}

func TestConnectionSendTimesOutWhenBufferFull(t *testing.T) {
	ws := newFakeSocket()
	ws.block = make(chan struct{})
	c := NewConnection("u1", ws)
	c.Start()
	defer func() {
		close(ws.block)
		c.Close(websocket.CloseNormalClosure, "")
	}()

	// One frame is held by the blocked writer, the rest fill the buffer.
	for i := 0; i < sendBuffer+1; i++ {
		require.NoError(t, c.Send([]byte("x"), time.Second))
	}
	err := c.Send([]byte("overflow"), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrSendTimeout)
}

func TestConnectionClose(t *testing.T) {
	ws := newFakeSocket()
	c := NewConnection("u1", ws)
	c.Close(websocket.CloseGoingAway, "bye")
	c.Close(websocket.CloseGoingAway, "again")

	require.ErrorIs(t, c.Send([]byte("x"), time.Second), ErrConnectionClosed)
	require.True(t, ws.closed)
	require.Equal(t, []int{websocket.CloseMessage}, ws.controls)
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestHubTracksMultipleSessions(t *testing.T) {
	h := NewHub()
	a := NewConnection("u1", newFakeSocket())
	b := NewConnection("u1", newFakeSocket())
	other := NewConnection("u2", newFakeSocket())
	h.Attach(a)
	h.Attach(b)
	h.Attach(other)

	require.Len(t, h.SessionsOf("u1"), 2)
	require.Len(t, h.SessionsOf("u2"), 1)
	require.Empty(t, h.SessionsOf("nobody"))
	require.Equal(t, 3, h.Count())

	require.True(t, h.Detach(a))
	require.False(t, h.Detach(a))
	sessions := h.SessionsOf("u1")
	require.Len(t, sessions, 1)
	require.Equal(t, b.ID, sessions[0].ID)

	h.Close()
	require.Zero(t, h.Count())
	require.ErrorIs(t, b.Send([]byte("x"), time.Millisecond), ErrConnectionClosed)
	a.Close(websocket.CloseNormalClosure, "")
}

// stuckSocket never finishes a write; the close frame waits on the same lock,
// the way a blocked gorilla connection behaves.
type stuckSocket struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func (s *stuckSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *stuckSocket) WriteMessage(int, []byte) error {
	<-s.release
	return nil
}

func (s *stuckSocket) WriteControl(int, []byte, time.Time) error {
	<-s.release
	return nil
}

func (s *stuckSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestConnectionCloseAsyncDoesNotWaitForStuckWriter(t *testing.T) {
	ws := &stuckSocket{release: make(chan struct{}), closed: make(chan struct{})}
	c := NewConnection("u1", ws)
	c.Start()
	require.NoError(t, c.Send([]byte("x"), time.Second))

	start := time.Now()
	c.CloseAsync(websocket.CloseNormalClosure, "")
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.ErrorIs(t, c.Send([]byte("y"), time.Millisecond), ErrConnectionClosed)

	close(ws.release)
	select {
	case <-ws.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket not closed")
	}
}
