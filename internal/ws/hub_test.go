package ws

import (
	"encoding/json"
	"testing"
)

func newTestClient(playerID string) *Client {
	return &Client{playerID: playerID, send: make(chan []byte, 8)}
}

func addClient(h *Hub, c *Client) {
	h.mu.Lock()
	h.clients[c.playerID] = c
	h.mu.Unlock()
}

func decodeFrame(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Frame not valid JSON: %v", err)
	}
	return out
}

func TestWSMessageFraming(t *testing.T) {
	frame := wsMessage("pong", map[string]interface{}{"serverTime": 42})

	out := decodeFrame(t, frame)
	if out["type"] != "pong" {
		t.Errorf("Frame type = %v, want pong", out["type"])
	}
	if out["serverTime"] != float64(42) {
		t.Errorf("Frame data not merged: %v", out)
	}
}

func TestJoinRoomRequiresRegisteredClient(t *testing.T) {
	h := NewHub()

	if h.JoinRoom("r1", "ghost") {
		t.Error("JoinRoom succeeded for an unregistered player")
	}

	c := newTestClient("p1")
	addClient(h, c)
	if !h.JoinRoom("r1", "p1") {
		t.Fatal("JoinRoom failed for a registered player")
	}
	if c.roomID != "r1" {
		t.Errorf("Client roomID = %q, want r1", c.roomID)
	}
}

func TestLeaveRoomClearsMembership(t *testing.T) {
	h := NewHub()
	c := newTestClient("p1")
	addClient(h, c)
	h.JoinRoom("r1", "p1")

	h.LeaveRoom("r1", "p1")

	if c.roomID != "" {
		t.Errorf("Client roomID = %q after leave", c.roomID)
	}
	h.BroadcastToRoom("r1", "test", nil)
	select {
	case <-c.send:
		t.Error("Left client still receives room broadcasts")
	default:
	}
}

func TestBroadcastToRoomExceptOmitsOrigin(t *testing.T) {
	h := NewHub()
	origin := newTestClient("p1")
	peer := newTestClient("p2")
	addClient(h, origin)
	addClient(h, peer)
	h.JoinRoom("r1", "p1")
	h.JoinRoom("r1", "p2")

	h.BroadcastToRoomExcept("r1", "p1", "opponent_movement", map[string]interface{}{"x": 1.0})

	select {
	case raw := <-peer.send:
		if out := decodeFrame(t, raw); out["type"] != "opponent_movement" {
			t.Errorf("Peer frame = %v", out)
		}
	default:
		t.Error("Peer received nothing")
	}
	select {
	case <-origin.send:
		t.Error("Origin received its own echo")
	default:
	}
}

func TestSendToPlayerDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := &Client{playerID: "p1", send: make(chan []byte, 1)}
	addClient(h, c)

	// Second send must drop, not block.
	h.SendToPlayer("p1", "a", nil)
	h.SendToPlayer("p1", "b", nil)

	if got := len(c.send); got != 1 {
		t.Errorf("Buffered frames = %d, want 1", got)
	}
}

func TestRemoveRoomDropsAllMembers(t *testing.T) {
	h := NewHub()
	a := newTestClient("p1")
	b := newTestClient("p2")
	addClient(h, a)
	addClient(h, b)
	h.JoinRoom("r1", "p1")
	h.JoinRoom("r1", "p2")

	h.RemoveRoom("r1")

	if a.roomID != "" || b.roomID != "" {
		t.Errorf("Members keep roomID after removal: %q / %q", a.roomID, b.roomID)
	}
	h.BroadcastToRoom("r1", "test", nil)
	if len(a.send) != 0 || len(b.send) != 0 {
		t.Error("Removed room still broadcasts")
	}
}
