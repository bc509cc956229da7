package router_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/collapsinghierarchy/relay/internal/registry"
	"github.com/collapsinghierarchy/relay/internal/router"
)

// fakeConn is an in-memory conn.Conn that records every frame sent to
// it instead of touching a real socket.
type fakeConn struct {
	mu     sync.Mutex
	text   []string
	binary [][]byte
	closed bool
}

func (f *fakeConn) SendText(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, s)
	return nil
}

func (f *fakeConn) SendBinary(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.binary = append(f.binary, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.text) == 0 {
		return ""
	}
	return f.text[len(f.text)-1]
}

func (f *fakeConn) textCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.text)
}

func (f *fakeConn) lastBinary() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.binary) == 0 {
		return nil
	}
	return f.binary[len(f.binary)-1]
}

func (f *fakeConn) binaryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.binary)
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("room-%d", atomic.AddInt64(&n, 1))
	}
}

func newRouter() *router.Router {
	reg := registry.New(sequentialIDs())
	return router.New(reg, nil, nil)
}

func TestHandleTextCreateThenAck(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":2}`)

	if got := a.lastText(); got != `{"type":"create","id":"room-1"}` {
		t.Fatalf("unexpected create ack: %s", got)
	}
}

func TestHandleTextJoinNotifiesExistingMembers(t *testing.T) {
	rt := newRouter()
	a, b := &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":2}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)

	if got := b.lastText(); got != `{"type":"join","size":1}` {
		t.Fatalf("unexpected join ack for b: %s", got)
	}
	if got := a.lastText(); got != `{"type":"join"}` {
		t.Fatalf("expected a to be notified of the join, got: %s", got)
	}
}

func TestHandleTextJoinDoesNotExist(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleText(a, `{"type":"join","id":"nope"}`)

	if got := a.lastText(); got != `{"type":"error","message":"DoesNotExist"}` {
		t.Fatalf("unexpected error: %s", got)
	}
}

func TestHandleTextJoinIsFull(t *testing.T) {
	rt := newRouter()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":1}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)
	before := b.textCount()
	rt.HandleText(c, `{"type":"join","id":"room-1"}`)

	if got := c.lastText(); got != `{"type":"error","message":"IsFull"}` {
		t.Fatalf("unexpected error: %s", got)
	}
	if b.textCount() != before {
		t.Fatalf("b should not have been touched by c's failed join")
	}
}

func TestHandleTextCreateWhileInsideIsSilentDrop(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":2}`)
	before := a.textCount()

	rt.HandleText(a, `{"type":"create","size":3}`)

	if a.textCount() != before {
		t.Fatalf("create while inside a room must be a silent drop")
	}
}

func TestHandleTextMalformedIsSilentDrop(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleText(a, `not json at all`)

	if a.textCount() != 0 {
		t.Fatalf("malformed frame must be a silent drop")
	}
}

func TestHandleBinaryBroadcastRewritesHeaderToSenderIndex(t *testing.T) {
	rt := newRouter()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":3}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)
	rt.HandleText(c, `{"type":"join","id":"room-1"}`)

	rt.HandleBinary(b, []byte{255, 0xAB, 0xCD})

	if a.binaryCount() != 1 || c.binaryCount() != 1 {
		t.Fatalf("broadcast should reach every other member exactly once")
	}
	if b.binaryCount() != 0 {
		t.Fatalf("sender must not receive its own broadcast")
	}
	want := []byte{1, 0xAB, 0xCD}
	if got := a.lastBinary(); string(got) != string(want) {
		t.Fatalf("header not rewritten to sender index: got %v want %v", got, want)
	}
}

func TestHandleBinaryUnicastTargetsOneMember(t *testing.T) {
	rt := newRouter()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":3}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)
	rt.HandleText(c, `{"type":"join","id":"room-1"}`)

	rt.HandleBinary(a, []byte{2, 0x01})

	if c.binaryCount() != 1 {
		t.Fatalf("unicast target (index 2) should receive the frame")
	}
	if b.binaryCount() != 0 {
		t.Fatalf("non-target member must not receive the frame")
	}
	if got := c.lastBinary(); string(got) != string([]byte{0, 0x01}) {
		t.Fatalf("header should be rewritten to sender index 0, got %v", got)
	}
}

func TestHandleBinaryOutOfRangeTargetIsSilentDrop(t *testing.T) {
	rt := newRouter()
	a, b := &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":2}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)

	rt.HandleBinary(a, []byte{250, 0x01})

	if b.binaryCount() != 0 {
		t.Fatalf("out-of-range unicast target must be a silent drop")
	}
}

func TestHandleBinaryEmptyFrameIsSilentDrop(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}
	rt.HandleText(a, `{"type":"create","size":2}`)

	rt.HandleBinary(a, []byte{})
}

func TestHandleBinaryOutsideRoomIsSilentDrop(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleBinary(a, []byte{255, 0x01})

	if a.binaryCount() != 0 {
		t.Fatalf("binary frame outside any room must be a silent drop")
	}
}

func TestHandleCloseReconcilesAndNotifiesRemaining(t *testing.T) {
	rt := newRouter()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}

	rt.HandleText(a, `{"type":"create","size":3}`)
	rt.HandleText(b, `{"type":"join","id":"room-1"}`)
	rt.HandleText(c, `{"type":"join","id":"room-1"}`)

	rt.HandleClose(a)

	if got := b.lastText(); got != `{"type":"leave","index":0}` {
		t.Fatalf("b should be notified of a's departure at index 0, got: %s", got)
	}
	if got := c.lastText(); got != `{"type":"leave","index":0}` {
		t.Fatalf("c should be notified of a's departure at index 0, got: %s", got)
	}
}

func TestHandleCloseOnLastMemberIsQuiet(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}
	rt.HandleText(a, `{"type":"create","size":2}`)

	before := a.textCount()
	rt.HandleClose(a)

	if a.textCount() != before {
		t.Fatalf("destroying an empty room should not send anything")
	}
}

func TestHandleCloseUnknownConnIsNoop(t *testing.T) {
	rt := newRouter()
	a := &fakeConn{}

	rt.HandleClose(a)
}
