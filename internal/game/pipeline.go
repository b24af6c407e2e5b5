package game

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playheadball/backend/internal/metrics"
)

// Broadcaster is the fan-out sink the pipeline releases events into. The
// connection manager implements it over its room membership index.
type Broadcaster interface {
	BroadcastToRoom(roomID, event string, data map[string]interface{})
	BroadcastToRoomExcept(roomID, excludePlayerID, event string, data map[string]interface{})
	SendToPlayer(playerID, event string, data map[string]interface{})
	BroadcastToAll(event string, data map[string]interface{})
}

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrQueueFull        = errors.New("event queue full")
)

// tokenBucket is a per-(player, event-type) rate limiter.
type tokenBucket struct {
	tokens   float64
	lastFill time.Time
}

// Pipeline is the prioritized, rate-limited event queue. Publish validates
// and enqueues; a single worker drains in strict priority order.
type Pipeline struct {
	registry Registry
	sink     Broadcaster

	mu     sync.Mutex
	cond   *sync.Cond
	queues [4][]*Envelope
	caps   [4]int
	closed bool

	buckets   map[string]*tokenBucket
	bucketsMu sync.Mutex

	latencyMu sync.Mutex
	latencies map[string]float64 // playerID -> EWMA latency estimate (ms)

	seq uint64

	// Called when CRITICAL would overflow for a room; the room is unhealthy
	// and must be forcibly ended.
	OnUnhealthyRoom func(roomID string)

	// Called for room-targeted events whose spec is marked Persistent, so
	// the owning room can append them to its event log.
	OnPersistent func(roomID, eventType string, payload map[string]interface{})

	processed atomic.Uint64
}

// NewPipeline creates a pipeline with per-priority queue caps
// (critical, high, normal, low).
func NewPipeline(registry Registry, sink Broadcaster, caps [4]int) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		sink:      sink,
		caps:      caps,
		buckets:   make(map[string]*tokenBucket),
		latencies: make(map[string]float64),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the drain worker.
func (p *Pipeline) Start() {
	go p.run()
}

// Stop wakes and terminates the worker. Pending events are dropped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Publish runs the full ingestion path: registry lookup, schema validation,
// rate limiting, sanitization, enqueue. Rejections notify the origin player
// and never enter a queue.
func (p *Pipeline) Publish(env *Envelope) error {
	spec, ok := p.registry[env.Type]
	if !ok {
		metrics.EventsRejected.WithLabelValues("unknown_type").Inc()
		if env.Origin != OriginSystem {
			p.sink.SendToPlayer(env.Origin, "error", map[string]interface{}{
				"code":    "unknown_event",
				"message": "unknown event type: " + env.Type,
			})
		}
		return ErrUnknownEventType
	}

	if reasons := spec.ValidatePayload(env.Payload); len(reasons) > 0 {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		if env.Origin != OriginSystem {
			p.sink.SendToPlayer(env.Origin, "validation_error", map[string]interface{}{
				"event":   env.Type,
				"reasons": reasons,
			})
		}
		return errors.New("validation failed: " + reasons[0])
	}

	if env.Origin != OriginSystem && spec.RatePerSec > 0 {
		if !p.allow(env.Origin+":"+env.Type, spec.RatePerSec, spec.Burst) {
			metrics.EventsRejected.WithLabelValues("rate_limit").Inc()
			p.sink.SendToPlayer(env.Origin, "rate_limit_exceeded", map[string]interface{}{
				"event": env.Type,
				"limit": spec.RatePerSec,
			})
			return ErrRateLimited
		}
	}

	env.Priority = spec.Priority
	env.EnqueuedAt = time.Now()
	env.Sequence = atomic.AddUint64(&p.seq, 1)

	if env.ClientTimestamp > 0 && env.Origin != OriginSystem {
		p.recordLatency(env.Origin, env.EnqueuedAt.UnixMilli()-env.ClientTimestamp)
	}

	return p.enqueue(env)
}

// allow implements the token bucket: refill at ratePerSec, capacity burst.
func (p *Pipeline) allow(key string, ratePerSec float64, burst int) bool {
	p.bucketsMu.Lock()
	defer p.bucketsMu.Unlock()

	now := time.Now()
	b, ok := p.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(burst), lastFill: now}
		p.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * ratePerSec
	if b.tokens > float64(burst) {
		b.tokens = float64(burst)
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (p *Pipeline) enqueue(env *Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrQueueFull
	}

	pri := int(env.Priority)
	if len(p.queues[pri]) >= p.caps[pri] {
		return p.overflowLocked(env)
	}

	p.queues[pri] = append(p.queues[pri], env)
	p.cond.Signal()
	return nil
}

// overflowLocked handles a full queue: LOW is dropped first, then NORMAL.
// CRITICAL overflow means the room cannot publish terminal events; the room
// is marked unhealthy and forcibly ended.
func (p *Pipeline) overflowLocked(env *Envelope) error {
	switch env.Priority {
	case PriorityLow, PriorityNormal:
		metrics.EventsDropped.WithLabelValues(env.Priority.String()).Inc()
		log.Printf("[PIPELINE] Backpressure: dropping %s event %s (queue full)", env.Priority, env.Type)
		bp := &Envelope{
			Type:       EventBackpressure,
			Payload:    map[string]interface{}{"dropped": env.Type, "priority": env.Priority.String()},
			Origin:     OriginSystem,
			TargetRoom: env.TargetRoom,
			EnqueuedAt: time.Now(),
			Sequence:   atomic.AddUint64(&p.seq, 1),
		}
		bp.Priority = PriorityCritical
		if len(p.queues[PriorityCritical]) < p.caps[PriorityCritical] {
			p.queues[PriorityCritical] = append(p.queues[PriorityCritical], bp)
			p.cond.Signal()
		}
		return ErrQueueFull
	case PriorityHigh:
		// HIGH overflow also drops, but without a backpressure event storm.
		metrics.EventsDropped.WithLabelValues(env.Priority.String()).Inc()
		return ErrQueueFull
	default:
		log.Printf("[PIPELINE] CRITICAL queue overflow for room %s - marking unhealthy", env.TargetRoom)
		if p.OnUnhealthyRoom != nil && env.TargetRoom != "" {
			roomID := env.TargetRoom
			go p.OnUnhealthyRoom(roomID)
		}
		return ErrQueueFull
	}
}

// run drains CRITICAL fully before HIGH, HIGH before NORMAL, NORMAL before
// LOW, then sleeps until the next enqueue.
func (p *Pipeline) run() {
	for {
		p.mu.Lock()
		for p.emptyLocked() && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}

		var env *Envelope
		for pri := 0; pri < 4; pri++ {
			if len(p.queues[pri]) > 0 {
				env = p.queues[pri][0]
				p.queues[pri] = p.queues[pri][1:]
				break
			}
		}
		p.mu.Unlock()

		if env != nil {
			p.dispatch(env)
		}
	}
}

func (p *Pipeline) emptyLocked() bool {
	for pri := 0; pri < 4; pri++ {
		if len(p.queues[pri]) > 0 {
			return false
		}
	}
	return true
}

// dispatch fans an event out per its target. Input echoes omit the origin
// socket; authoritative state goes to the full room.
func (p *Pipeline) dispatch(env *Envelope) {
	start := time.Now()

	if env.TargetRoom != "" && p.OnPersistent != nil {
		if spec, ok := p.registry[env.Type]; ok && spec.Persistent {
			p.OnPersistent(env.TargetRoom, env.Type, env.Payload)
		}
	}

	switch {
	case env.TargetPlayer != "":
		p.sink.SendToPlayer(env.TargetPlayer, env.Type, env.Payload)
	case env.TargetRoom != "":
		if env.ExcludeOrigin && env.Origin != OriginSystem {
			p.sink.BroadcastToRoomExcept(env.TargetRoom, env.Origin, env.Type, env.Payload)
		} else {
			p.sink.BroadcastToRoom(env.TargetRoom, env.Type, env.Payload)
		}
	default:
		p.sink.BroadcastToAll(env.Type, env.Payload)
	}

	p.processed.Add(1)
	metrics.EventsProcessed.WithLabelValues(env.Priority.String()).Inc()

	if wall := time.Since(start); wall > 50*time.Millisecond {
		log.Printf("[PIPELINE] Slow dispatch: %s took %v", env.Type, wall)
	}
}

// recordLatency folds a new sample into the player's EWMA latency estimate.
func (p *Pipeline) recordLatency(playerID string, sampleMs int64) {
	if sampleMs < 0 {
		sampleMs = 0
	}
	p.latencyMu.Lock()
	defer p.latencyMu.Unlock()
	prev, ok := p.latencies[playerID]
	if !ok {
		p.latencies[playerID] = float64(sampleMs)
		return
	}
	p.latencies[playerID] = prev*0.8 + float64(sampleMs)*0.2
}

// ObserveLatency folds a client-reported timestamp into the player's
// latency estimate without going through the queue.
func (p *Pipeline) ObserveLatency(playerID string, clientTsMs int64) {
	if clientTsMs <= 0 {
		return
	}
	p.recordLatency(playerID, time.Now().UnixMilli()-clientTsMs)
}

// LatencyEstimate returns the EWMA latency for a player in milliseconds.
func (p *Pipeline) LatencyEstimate(playerID string) float64 {
	p.latencyMu.Lock()
	defer p.latencyMu.Unlock()
	return p.latencies[playerID]
}

// Processed returns the number of events dispatched so far.
func (p *Pipeline) Processed() uint64 {
	return p.processed.Load()
}

// PendingCounts returns the queue depths (critical, high, normal, low).
func (p *Pipeline) PendingCounts() [4]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out [4]int
	for i := 0; i < 4; i++ {
		out[i] = len(p.queues[i])
	}
	return out
}
