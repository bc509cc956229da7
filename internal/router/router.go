// Package router is the behavioral heart of the relay: it dispatches
// every inbound frame from a connection against the registry
// according to the connection's current state (Outside any room, or
// Inside one) and the frame's kind (text control vs. binary relay).
//
// Router carries no per-connection state of its own — "Outside" vs.
// "Inside(room, index)" (spec §4.5, §9) is derived on every frame
// from the registry (Lookup for text frames, RouteSnapshot for binary
// frames), so there is nothing here that can
// drift out of sync with the registry under concurrent access.
package router

import (
	"errors"

	"github.com/collapsinghierarchy/relay/internal/conn"
	"github.com/collapsinghierarchy/relay/internal/logs"
	"github.com/collapsinghierarchy/relay/internal/metrics"
	"github.com/collapsinghierarchy/relay/internal/protocol"
	"github.com/collapsinghierarchy/relay/internal/registry"
)

// broadcastIndex is the binary header byte that means "send to every
// other member" (spec §4.4). Bytes 0..254 are unicast targets.
const broadcastIndex = 255

// Router ties the registry to connection handles. It is safe for
// concurrent use by many connections' read loops.
type Router struct {
	reg *registry.Registry
	log logs.Logger
	m   *metrics.Metrics
}

// New builds a Router over reg. log and m may be nil in tests.
func New(reg *registry.Registry, log logs.Logger, m *metrics.Metrics) *Router {
	return &Router{reg: reg, log: log, m: m}
}

// HandleText dispatches one inbound text frame per spec §4.1/§4.5.
func (rt *Router) HandleText(h conn.Conn, payload string) {
	_, _, inside := rt.reg.Lookup(h)

	req, ok := protocol.Decode(payload)
	if !ok {
		// Bad JSON, non-object root, or unrecognized/missing type:
		// silent drop regardless of state.
		return
	}

	if inside {
		// create/join while already a member: silent drop, per the
		// reference behavior spec §9 preserves.
		rt.count("inside_drop")
		return
	}

	switch req.Kind {
	case protocol.KindCreate:
		rt.handleCreate(h, req)
	case protocol.KindJoin:
		rt.handleJoin(h, req)
	}
}

func (rt *Router) handleCreate(h conn.Conn, req protocol.Request) {
	size := protocol.DefaultSize
	if req.HasSize {
		size = req.Size
	}

	id, err := rt.reg.CreateRoom(h, size)
	switch {
	case err == nil:
		rt.count("create_ok")
		rt.logInfo("room created", logs.F("room", id), logs.F("size", size))
		rt.send(h, protocol.EncodeCreateAck(id))
	case errors.Is(err, registry.ErrInvalidSize):
		rt.count("create_invalid_size")
		rt.send(h, protocol.EncodeError(protocol.ErrInvalidSize))
	case errors.Is(err, registry.ErrAlreadyExists):
		rt.count("create_already_exists")
		rt.send(h, protocol.EncodeError(protocol.ErrAlreadyExists))
	case errors.Is(err, registry.ErrAlreadyInRoom):
		// Silent drop: a client already in a room has no "create"
		// error defined for it (spec §4.3, §9).
		rt.count("create_already_in_room")
	default:
		rt.logWarn("unexpected create error", logs.F("err", err))
	}
}

func (rt *Router) handleJoin(h conn.Conn, req protocol.Request) {
	index, priorSize, others, err := rt.reg.JoinRoom(h, req.RoomID)
	switch {
	case err == nil:
		rt.count("join_ok")
		rt.logInfo("room joined", logs.F("room", req.RoomID), logs.F("index", index))
		rt.send(h, protocol.EncodeJoinAck(priorSize))
		notify := protocol.EncodeJoinNotify()
		for _, other := range others {
			rt.send(other, notify)
		}
	case errors.Is(err, registry.ErrDoesNotExist):
		rt.count("join_does_not_exist")
		rt.send(h, protocol.EncodeError(protocol.ErrDoesNotExist))
	case errors.Is(err, registry.ErrIsFull):
		rt.count("join_is_full")
		rt.send(h, protocol.EncodeError(protocol.ErrIsFull))
	case errors.Is(err, registry.ErrAlreadyInRoom):
		rt.count("join_already_in_room")
	default:
		rt.logWarn("unexpected join error", logs.F("err", err))
	}
}

// HandleBinary dispatches one inbound binary frame per spec §4.4.
func (rt *Router) HandleBinary(h conn.Conn, payload []byte) {
	if len(payload) == 0 {
		return
	}

	selfIndex, members, ok := rt.reg.RouteSnapshot(h)
	if !ok {
		// Not currently in a room: silent drop.
		return
	}

	header := payload[0]
	out := make([]byte, len(payload))
	out[0] = byte(selfIndex)
	copy(out[1:], payload[1:])

	if header == broadcastIndex {
		for i, member := range members {
			if i == selfIndex {
				continue
			}
			rt.sendBinary(member, out)
		}
		rt.countBytes(len(payload) * maxInt(len(members)-1, 0))
		return
	}

	target := int(header)
	if target >= len(members) {
		// Out-of-range unicast target: silent drop.
		return
	}
	rt.sendBinary(members[target], out)
	rt.countBytes(len(payload))
}

// HandleClose runs disconnect reconciliation for h: removes it from
// its room (if any), destroys the room if it becomes empty, and
// otherwise notifies every remaining member with a leave frame
// carrying h's former index (spec §4.5's "Any state / Close" row).
func (rt *Router) HandleClose(h conn.Conn) {
	roomID, index, remaining, ok := rt.reg.HandleDisconnect(h)
	if !ok {
		return
	}
	rt.logInfo("disconnect reconciled", logs.F("room", roomID), logs.F("index", index), logs.F("remaining", len(remaining)))
	if len(remaining) == 0 {
		return
	}
	leave := protocol.EncodeLeave(index)
	for _, member := range remaining {
		rt.send(member, leave)
	}
}

func (rt *Router) send(h conn.Conn, text string) {
	if err := h.SendText(text); err != nil {
		rt.logWarn("send failed", logs.F("err", err))
	}
}

func (rt *Router) sendBinary(h conn.Conn, payload []byte) {
	if err := h.SendBinary(payload); err != nil {
		rt.logWarn("binary send failed", logs.F("err", err))
	}
}

func (rt *Router) count(outcome string) {
	if rt.m != nil {
		rt.m.IncControl(outcome)
	}
}

func (rt *Router) countBytes(n int) {
	if rt.m != nil {
		rt.m.AddBytesRelayed(n)
	}
}

func (rt *Router) logInfo(msg string, fields ...logs.Field) {
	if rt.log != nil {
		rt.log.Info(msg, fields...)
	}
}

func (rt *Router) logWarn(msg string, fields ...logs.Field) {
	if rt.log != nil {
		rt.log.Warn(msg, fields...)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
