package game

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrQueueFullMM   = errors.New("matchmaking queue is full")
	ErrAlreadyQueued = errors.New("player already in queue")
	ErrNotQueued     = errors.New("player not in queue")
	ErrPlayerBusy    = errors.New("player already in a room")
	ErrTooManyRooms  = errors.New("concurrent room limit reached")
)

// QueueEntry is one waiting player. Entries are ordered by JoinedAt.
type QueueEntry struct {
	Player   *Player
	JoinedAt time.Time
	Mode     GameMode
	Region   string
}

// Tolerance returns the entry's current skill tolerance, which grows the
// longer the player waits.
func (e *QueueEntry) Tolerance(base, increase, stepSeconds int) int {
	if stepSeconds <= 0 {
		return base
	}
	steps := int(time.Since(e.JoinedAt).Seconds()) / stepSeconds
	return base + steps*increase
}

// MatchmakerConfig carries the queue knobs.
type MatchmakerConfig struct {
	MaxQueueSize           int
	MaxWaitTime            time.Duration
	SkillTolerance         int
	SkillToleranceIncrease int
	ToleranceStep          int // seconds per tolerance increment
	MaxConcurrentRooms     int
}

// MatchmakerStats is a point-in-time queue snapshot.
type MatchmakerStats struct {
	QueueSize      int            `json:"queue_size"`
	ByMode         map[string]int `json:"by_mode"`
	TotalMatched   int            `json:"total_matched"`
	TotalExpired   int            `json:"total_expired"`
	LongestWaitSec int            `json:"longest_wait_sec"`
}

// Matchmaker owns the FIFO queue. The queue is mutated only under the
// matchmaker's lock; a pairing pass runs on every enqueue and on a ticker.
type Matchmaker struct {
	cfg MatchmakerConfig

	mu      sync.Mutex
	entries []*QueueEntry
	byID    map[string]*QueueEntry

	totalMatched int
	totalExpired int

	// OnMatch receives each paired couple, oldest first. The receiver
	// provisions the room.
	OnMatch func(a, b *QueueEntry)
	// OnTimeout notifies a player whose wait exceeded MaxWaitTime.
	OnTimeout func(e *QueueEntry)

	roomCount func() int

	cancel chan struct{}
	once   sync.Once
}

// NewMatchmaker creates a matchmaker. roomCount reports active rooms so the
// pairing pass can respect MaxConcurrentRooms.
func NewMatchmaker(cfg MatchmakerConfig, roomCount func() int) *Matchmaker {
	return &Matchmaker{
		cfg:       cfg,
		byID:      make(map[string]*QueueEntry),
		roomCount: roomCount,
		cancel:    make(chan struct{}),
	}
}

// Start runs the periodic pairing pass.
func (m *Matchmaker) Start(pollInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		log.Printf("[MATCHMAKER] Starting pairing worker (poll every %v)", pollInterval)
		for {
			select {
			case <-m.cancel:
				log.Printf("[MATCHMAKER] Worker stopped")
				return
			case <-ticker.C:
				m.Pass()
			}
		}
	}()
}

// Stop terminates the pairing worker.
func (m *Matchmaker) Stop() {
	m.once.Do(func() { close(m.cancel) })
}

// Enqueue adds a player and immediately attempts a pairing pass.
// Duplicate insertion is rejected.
func (m *Matchmaker) Enqueue(p *Player, mode GameMode, region string) error {
	m.mu.Lock()
	if _, exists := m.byID[p.ID]; exists {
		m.mu.Unlock()
		return ErrAlreadyQueued
	}
	if p.Status() == StatusInRoom || p.Status() == StatusInGame {
		m.mu.Unlock()
		return ErrPlayerBusy
	}
	if len(m.entries) >= m.cfg.MaxQueueSize {
		m.mu.Unlock()
		return ErrQueueFullMM
	}

	e := &QueueEntry{Player: p, JoinedAt: time.Now(), Mode: mode, Region: region}
	m.entries = append(m.entries, e)
	m.byID[p.ID] = e
	p.SetStatus(StatusInQueue)
	m.mu.Unlock()

	m.Pass()
	return nil
}

// EnqueueFront reinserts a player at the head of the queue (ready-up rewind
// keeps the confirmed player's priority).
func (m *Matchmaker) EnqueueFront(p *Player, mode GameMode, region string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[p.ID]; exists {
		return ErrAlreadyQueued
	}
	e := &QueueEntry{Player: p, JoinedAt: time.Now(), Mode: mode, Region: region}
	m.entries = append([]*QueueEntry{e}, m.entries...)
	m.byID[p.ID] = e
	p.SetStatus(StatusInQueue)
	return nil
}

// Dequeue removes a player from the queue.
func (m *Matchmaker) Dequeue(playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.byID[playerID]
	if !exists {
		return ErrNotQueued
	}
	m.removeLocked(e)
	e.Player.SetStatus(StatusIdle)
	return nil
}

// PositionOf returns the 1-indexed queue position, or 0 when not queued.
func (m *Matchmaker) PositionOf(playerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.Player.ID == playerID {
			return i + 1
		}
	}
	return 0
}

// SnapshotStats returns a point-in-time view of the queue.
func (m *Matchmaker) SnapshotStats() MatchmakerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := MatchmakerStats{
		QueueSize:    len(m.entries),
		ByMode:       make(map[string]int),
		TotalMatched: m.totalMatched,
		TotalExpired: m.totalExpired,
	}
	for _, e := range m.entries {
		stats.ByMode[string(e.Mode)]++
		if wait := int(time.Since(e.JoinedAt).Seconds()); wait > stats.LongestWaitSec {
			stats.LongestWaitSec = wait
		}
	}
	return stats
}

// Pass runs one pairing scan: expire stale entries, purge disconnected
// players, then pair oldest-first within the skill window.
func (m *Matchmaker) Pass() {
	m.mu.Lock()

	now := time.Now()
	var expired []*QueueEntry

	// Purge disconnected and expired entries first
	kept := m.entries[:0]
	for _, e := range m.entries {
		switch {
		case !e.Player.Connected():
			delete(m.byID, e.Player.ID)
			e.Player.SetStatus(StatusIdle)
		case now.Sub(e.JoinedAt) > m.cfg.MaxWaitTime:
			delete(m.byID, e.Player.ID)
			e.Player.SetStatus(StatusIdle)
			expired = append(expired, e)
			m.totalExpired++
		default:
			kept = append(kept, e)
		}
	}
	m.entries = kept

	type pair struct{ a, b *QueueEntry }
	var pairs []pair

	if m.roomCount == nil || m.roomCount() < m.cfg.MaxConcurrentRooms {
		matched := make(map[string]bool)
		for i := 0; i < len(m.entries); i++ {
			a := m.entries[i]
			if matched[a.Player.ID] {
				continue
			}
			tolA := a.Tolerance(m.cfg.SkillTolerance, m.cfg.SkillToleranceIncrease, m.cfg.ToleranceStep)
			for j := i + 1; j < len(m.entries); j++ {
				b := m.entries[j]
				if matched[b.Player.ID] {
					continue
				}
				if a.Mode != b.Mode {
					continue
				}
				if a.Region != "" && b.Region != "" && a.Region != b.Region {
					continue
				}
				tolB := b.Tolerance(m.cfg.SkillTolerance, m.cfg.SkillToleranceIncrease, m.cfg.ToleranceStep)
				window := tolA
				if tolB < window {
					window = tolB
				}
				gap := a.Player.Elo() - b.Player.Elo()
				if gap < 0 {
					gap = -gap
				}
				if gap > window {
					continue
				}
				matched[a.Player.ID] = true
				matched[b.Player.ID] = true
				pairs = append(pairs, pair{a, b})
				break
			}
		}

		if len(pairs) > 0 {
			kept := m.entries[:0]
			for _, e := range m.entries {
				if !matched[e.Player.ID] {
					kept = append(kept, e)
				} else {
					delete(m.byID, e.Player.ID)
				}
			}
			m.entries = kept
			m.totalMatched += len(pairs) * 2
		}
	}

	onMatch := m.OnMatch
	onTimeout := m.OnTimeout
	m.mu.Unlock()

	for _, e := range expired {
		log.Printf("[MATCHMAKER] Queue timeout for player %s after %v", e.Player.ID, now.Sub(e.JoinedAt).Round(time.Second))
		if onTimeout != nil {
			onTimeout(e)
		}
	}
	for _, pr := range pairs {
		log.Printf("[MATCHMAKER] Matched %s (elo=%d) vs %s (elo=%d) mode=%s",
			pr.a.Player.ID, pr.a.Player.Elo(), pr.b.Player.ID, pr.b.Player.Elo(), pr.a.Mode)
		if onMatch != nil {
			onMatch(pr.a, pr.b)
		}
	}
}

// QueueSize returns the number of waiting entries.
func (m *Matchmaker) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Matchmaker) removeLocked(target *QueueEntry) {
	for i, e := range m.entries {
		if e == target {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	delete(m.byID, target.Player.ID)
}
