package game

import (
	"context"
	"log"
	"sync"
	"time"
)

// GameEndProcessor runs the terminal choreography for finished rooms:
// result computation, staged broadcasts, async persistence, and cleanup.
// Duplicate calls for the same room are no-ops.
type GameEndProcessor struct {
	pipeline    *Pipeline
	persistence *PersistenceAdapter
	manager     *RoomManager

	celebration   time.Duration
	postGameDelay time.Duration
	cleanupLead   time.Duration

	mu       sync.Mutex
	inflight map[string]bool

	// OnCleanup unregisters room sockets in the connection manager.
	OnCleanup func(roomID string)
}

// NewGameEndProcessor creates the processor.
func NewGameEndProcessor(pipeline *Pipeline, persistence *PersistenceAdapter, manager *RoomManager,
	celebration, postGameDelay, cleanupLead time.Duration) *GameEndProcessor {
	return &GameEndProcessor{
		pipeline:      pipeline,
		persistence:   persistence,
		manager:       manager,
		celebration:   celebration,
		postGameDelay: postGameDelay,
		cleanupLead:   cleanupLead,
		inflight:      make(map[string]bool),
	}
}

// Process takes exclusive ownership of a finished room and runs the end
// choreography. Safe to call from the room's onEnd hook or directly.
func (gep *GameEndProcessor) Process(r *Room, reason EndReason) {
	gep.mu.Lock()
	if gep.inflight[r.ID] {
		gep.mu.Unlock()
		return
	}
	gep.inflight[r.ID] = true
	gep.mu.Unlock()

	result := ComputeResult(r, reason)
	log.Printf("[GAMEEND] Room %s ended: reason=%s winner=%s score=%d-%d",
		r.ID, reason, result.Winner, result.Left.Score, result.Right.Score)

	go gep.choreograph(r, result)
}

// choreograph runs the staged broadcast sequence. Cleanup always runs, even
// when an intermediate phase panics; persistence never blocks the chain.
func (gep *GameEndProcessor) choreograph(r *Room, result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[GAMEEND] Phase panic for room %s: %v", r.ID, rec)
		}
		gep.cleanup(r, result)
	}()

	gep.publish(r.ID, EventGameEnded, map[string]interface{}{
		"room_id": result.RoomID,
		"reason":  string(result.Reason),
		"winner":  string(result.Winner),
		"score": map[string]interface{}{
			"left": result.Left.Score, "right": result.Right.Score,
		},
	})

	// Persistence runs off the broadcast chain; failures are retried and
	// metered inside the adapter.
	go func(res Result) {
		ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelFn()
		if err := gep.persistence.SaveMatch(ctx, res); err != nil {
			log.Printf("[GAMEEND] SaveMatch failed for room %s: %v", res.RoomID, err)
		}
		if err := gep.persistence.UpdatePlayerStats(ctx, res); err != nil {
			log.Printf("[GAMEEND] UpdatePlayerStats failed for room %s: %v", res.RoomID, err)
		}
	}(result)

	time.Sleep(500 * time.Millisecond)
	gep.publish(r.ID, EventWinnerCelebration, map[string]interface{}{
		"winner":      string(result.Winner),
		"winner_id":   result.WinnerID(),
		"duration_ms": gep.celebration.Milliseconds(),
	})

	time.Sleep(gep.celebration)
	gep.publish(r.ID, EventDetailedResults, map[string]interface{}{
		"result": result,
	})

	time.Sleep(gep.postGameDelay)
}

// cleanup broadcasts the teardown notice, purges the room, and queues the
// low-priority system cleanup event.
func (gep *GameEndProcessor) cleanup(r *Room, result Result) {
	gep.publish(r.ID, EventCleanupStarting, map[string]interface{}{
		"room_id": r.ID,
	})

	time.Sleep(gep.cleanupLead)

	if r.Left() != nil {
		r.Left().ClearRole()
		if r.Left().Connected() {
			r.Left().SetStatus(StatusIdle)
		}
	}
	if r.Right() != nil {
		r.Right().ClearRole()
		if r.Right().Connected() {
			r.Right().SetStatus(StatusIdle)
		}
	}

	if gep.manager != nil {
		gep.manager.RemoveRoom(r.ID)
	}

	if gep.pipeline != nil {
		gep.pipeline.Publish(&Envelope{
			Type:    EventGameCleanup,
			Payload: map[string]interface{}{"room_id": r.ID},
			Origin:  OriginSystem,
		})
	}

	if gep.OnCleanup != nil {
		gep.OnCleanup(r.ID)
	}

	gep.mu.Lock()
	delete(gep.inflight, r.ID)
	gep.mu.Unlock()

	log.Printf("[GAMEEND] Room %s cleaned up", r.ID)
}

func (gep *GameEndProcessor) publish(roomID, eventType string, payload map[string]interface{}) {
	if gep.pipeline == nil {
		return
	}
	gep.pipeline.Publish(&Envelope{
		Type:       eventType,
		Payload:    payload,
		Origin:     OriginSystem,
		TargetRoom: roomID,
	})
}
