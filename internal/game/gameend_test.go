package game

import (
	"testing"
	"time"
)

func newTestGameEnd(t *testing.T, sink *recordingSink) (*GameEndProcessor, *RoomManager, *Room, chan string) {
	t.Helper()
	pipeline := newTestPipeline(sink)
	pipeline.Start()
	t.Cleanup(pipeline.Stop)

	manager := NewRoomManager(0)
	p1 := NewPlayer("p1", "Alice", "s1")
	p2 := NewPlayer("p2", "Bob", "s2")
	room, err := manager.CreateRoom(ModeCasual, p1, p2, nil, nil)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	gep := NewGameEndProcessor(pipeline, NewPersistenceAdapter(nil, 1), manager,
		time.Millisecond, time.Millisecond, time.Millisecond)

	cleaned := make(chan string, 1)
	gep.OnCleanup = func(roomID string) { cleaned <- roomID }
	return gep, manager, room, cleaned
}

func TestGameEndChoreographyOrder(t *testing.T) {
	sink := &recordingSink{}
	gep, manager, room, cleaned := newTestGameEnd(t, sink)

	room.Forfeit("p1")
	gep.Process(room, EndForfeit)

	select {
	case roomID := <-cleaned:
		if roomID != room.ID {
			t.Errorf("Cleanup callback room = %q, want %s", roomID, room.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Cleanup never ran")
	}

	evs := sink.waitFor(t, 5)
	want := []string{EventGameEnded, EventWinnerCelebration, EventDetailedResults,
		EventCleanupStarting, EventGameCleanup}
	for i, name := range want {
		if evs[i].event != name {
			t.Errorf("Broadcast %d = %s, want %s", i, evs[i].event, name)
		}
	}

	if _, ok := manager.GetRoom(room.ID); ok {
		t.Error("Room still registered after cleanup")
	}
	if room.Left().RoleAssigned() != RoleUnset || room.Left().Status() != StatusIdle {
		t.Errorf("Left not released: role=%q status=%q",
			room.Left().RoleAssigned(), room.Left().Status())
	}
}

func TestGameEndDuplicateProcessIsNoop(t *testing.T) {
	sink := &recordingSink{}
	gep, _, room, cleaned := newTestGameEnd(t, sink)

	room.EndByAgreement()
	gep.Process(room, EndMutualAgreement)
	gep.Process(room, EndMutualAgreement)

	select {
	case <-cleaned:
	case <-time.After(3 * time.Second):
		t.Fatal("Cleanup never ran")
	}

	ended := 0
	for _, ev := range sink.waitFor(t, 1) {
		if ev.event == EventGameEnded {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("game_ended broadcast %d times, want 1", ended)
	}
}

func TestGameEndDisconnectedPlayerStaysDisconnected(t *testing.T) {
	sink := &recordingSink{}
	gep, _, room, cleaned := newTestGameEnd(t, sink)

	room.Right().MarkDisconnected()
	room.EndForDisconnect()
	gep.Process(room, EndDisconnect)

	select {
	case <-cleaned:
	case <-time.After(3 * time.Second):
		t.Fatal("Cleanup never ran")
	}

	// The grace-expired player keeps DISCONNECTED; only connected players go
	// back to IDLE.
	if room.Right().Status() != StatusDisconnected {
		t.Errorf("Right status = %q, want DISCONNECTED", room.Right().Status())
	}
	if room.Right().RoleAssigned() != RoleUnset {
		t.Error("Right role not cleared")
	}
}
