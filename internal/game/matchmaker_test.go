package game

import (
	"testing"
	"time"
)

func newTestMatchmaker(onMatch func(a, b *QueueEntry)) *Matchmaker {
	m := NewMatchmaker(MatchmakerConfig{
		MaxQueueSize:           10,
		MaxWaitTime:            2 * time.Minute,
		SkillTolerance:         200,
		SkillToleranceIncrease: 25,
		ToleranceStep:          10,
		MaxConcurrentRooms:     100,
	}, func() int { return 0 })
	m.OnMatch = onMatch
	return m
}

func TestEnqueuePairsCompatiblePlayers(t *testing.T) {
	var matched [][2]string
	m := newTestMatchmaker(func(a, b *QueueEntry) {
		matched = append(matched, [2]string{a.Player.ID, b.Player.ID})
	})

	p1 := NewPlayer("p1", "Alice", "s1")
	p1.SetElo(1250)
	p2 := NewPlayer("p2", "Bob", "s2")
	p2.SetElo(1200)

	if err := m.Enqueue(p1, ModeCasual, ""); err != nil {
		t.Fatalf("Enqueue p1: %v", err)
	}
	if err := m.Enqueue(p2, ModeCasual, ""); err != nil {
		t.Fatalf("Enqueue p2: %v", err)
	}

	if len(matched) != 1 {
		t.Fatalf("Expected 1 pairing, got %d", len(matched))
	}
	if matched[0] != [2]string{"p1", "p2"} {
		t.Errorf("Pairing order: %v, want oldest first", matched[0])
	}
	if m.QueueSize() != 0 {
		t.Errorf("Queue not drained: %d entries left", m.QueueSize())
	}
}

func TestEnqueueRejectsDuplicateAndBusy(t *testing.T) {
	m := newTestMatchmaker(nil)

	p := NewPlayer("p1", "Alice", "s1")
	if err := m.Enqueue(p, ModeCasual, ""); err != nil {
		t.Fatalf("First enqueue: %v", err)
	}
	if err := m.Enqueue(p, ModeCasual, ""); err != ErrAlreadyQueued {
		t.Errorf("Duplicate enqueue = %v, want ErrAlreadyQueued", err)
	}

	busy := NewPlayer("p2", "Bob", "s2")
	busy.SetStatus(StatusInGame)
	if err := m.Enqueue(busy, ModeCasual, ""); err != ErrPlayerBusy {
		t.Errorf("Busy enqueue = %v, want ErrPlayerBusy", err)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	m := NewMatchmaker(MatchmakerConfig{
		MaxQueueSize:   2,
		MaxWaitTime:    time.Minute,
		SkillTolerance: 0, // nobody pairs
	}, func() int { return 0 })

	a, b := NewPlayer("a", "", "s"), NewPlayer("b", "", "s")
	a.SetElo(1000)
	b.SetElo(2000)
	m.Enqueue(a, ModeCasual, "")
	m.Enqueue(b, ModeCasual, "")

	c := NewPlayer("c", "", "s")
	if err := m.Enqueue(c, ModeCasual, ""); err != ErrQueueFullMM {
		t.Errorf("Full queue enqueue = %v, want ErrQueueFullMM", err)
	}
}

func TestModeGatesPairing(t *testing.T) {
	var matches int
	m := newTestMatchmaker(func(a, b *QueueEntry) { matches++ })

	m.Enqueue(NewPlayer("p1", "", "s1"), ModeCasual, "")
	m.Enqueue(NewPlayer("p2", "", "s2"), ModeRanked, "")
	if matches != 0 {
		t.Fatal("Different modes paired")
	}
}

func TestRegionGatesPairing(t *testing.T) {
	var matches int
	m := newTestMatchmaker(func(a, b *QueueEntry) { matches++ })

	m.Enqueue(NewPlayer("p1", "", "s1"), ModeCasual, "eu")
	m.Enqueue(NewPlayer("p2", "", "s2"), ModeCasual, "us")
	if matches != 0 {
		t.Fatal("Different regions paired")
	}

	// A region-less entry pairs with any region.
	m.Enqueue(NewPlayer("p3", "", "s3"), ModeCasual, "")
	if matches != 1 {
		t.Errorf("Region-less entry did not pair: %d matches", matches)
	}
}

func TestSkillWindowBlocksThenGrows(t *testing.T) {
	var matches int
	m := newTestMatchmaker(func(a, b *QueueEntry) { matches++ })

	strong := NewPlayer("p1", "", "s1")
	strong.SetElo(1500)
	weak := NewPlayer("p2", "", "s2")
	weak.SetElo(1200)

	m.Enqueue(strong, ModeRanked, "")
	m.Enqueue(weak, ModeRanked, "")
	if matches != 0 {
		t.Fatal("300 Elo gap paired within base tolerance 200")
	}

	// After 40s of waiting the tolerance is 200 + 4*25 = 300.
	m.mu.Lock()
	for _, e := range m.entries {
		e.JoinedAt = time.Now().Add(-40 * time.Second)
	}
	m.mu.Unlock()

	m.Pass()
	if matches != 1 {
		t.Errorf("Grown tolerance did not pair: %d matches", matches)
	}
}

func TestWindowIsMinOfBothTolerances(t *testing.T) {
	var matches int
	m := newTestMatchmaker(func(a, b *QueueEntry) { matches++ })

	veteran := NewPlayer("p1", "", "s1")
	veteran.SetElo(1500)
	fresh := NewPlayer("p2", "", "s2")
	fresh.SetElo(1210)

	m.Enqueue(veteran, ModeRanked, "")
	m.mu.Lock()
	m.entries[0].JoinedAt = time.Now().Add(-40 * time.Second) // tolerance 300 by now
	m.mu.Unlock()

	// The fresh entry's tolerance (200) still gates the pairing.
	m.Enqueue(fresh, ModeRanked, "")
	if matches != 0 {
		t.Errorf("Pairing ignored the newer entry's tolerance")
	}
}

func TestQueueExpiry(t *testing.T) {
	var timedOut []string
	m := newTestMatchmaker(nil)
	m.OnTimeout = func(e *QueueEntry) { timedOut = append(timedOut, e.Player.ID) }

	p := NewPlayer("p1", "", "s1")
	m.Enqueue(p, ModeCasual, "")

	m.mu.Lock()
	m.entries[0].JoinedAt = time.Now().Add(-3 * time.Minute)
	m.mu.Unlock()

	m.Pass()
	if len(timedOut) != 1 || timedOut[0] != "p1" {
		t.Errorf("Expiry callbacks: %v", timedOut)
	}
	if p.Status() != StatusIdle {
		t.Errorf("Expired player status = %q", p.Status())
	}
}

func TestDisconnectedPurgedOnPass(t *testing.T) {
	m := newTestMatchmaker(nil)

	p := NewPlayer("p1", "", "s1")
	m.Enqueue(p, ModeCasual, "")
	p.MarkDisconnected()

	m.Pass()
	if m.QueueSize() != 0 {
		t.Errorf("Disconnected entry not purged: %d", m.QueueSize())
	}
}

func TestDequeueAndPosition(t *testing.T) {
	m := newTestMatchmaker(nil)

	a := NewPlayer("a", "", "s")
	a.SetElo(1000)
	b := NewPlayer("b", "", "s")
	b.SetElo(2000)
	m.Enqueue(a, ModeCasual, "")
	m.Enqueue(b, ModeCasual, "")

	if pos := m.PositionOf("b"); pos != 2 {
		t.Errorf("PositionOf(b) = %d, want 2", pos)
	}
	if err := m.Dequeue("a"); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if pos := m.PositionOf("b"); pos != 1 {
		t.Errorf("PositionOf(b) after dequeue = %d, want 1", pos)
	}
	if err := m.Dequeue("a"); err != ErrNotQueued {
		t.Errorf("Double dequeue = %v, want ErrNotQueued", err)
	}
}

func TestEnqueueFrontKeepsPriority(t *testing.T) {
	m := newTestMatchmaker(nil)

	waiting := NewPlayer("w", "", "s")
	waiting.SetElo(1000)
	m.Enqueue(waiting, ModeCasual, "")

	rewound := NewPlayer("r", "", "s")
	rewound.SetElo(2000)
	if err := m.EnqueueFront(rewound, ModeCasual, ""); err != nil {
		t.Fatalf("EnqueueFront: %v", err)
	}
	if pos := m.PositionOf("r"); pos != 1 {
		t.Errorf("Rewound player position = %d, want 1", pos)
	}
}

func TestRoomCapBlocksPairing(t *testing.T) {
	var matches int
	m := NewMatchmaker(MatchmakerConfig{
		MaxQueueSize:       10,
		MaxWaitTime:        time.Minute,
		SkillTolerance:     200,
		MaxConcurrentRooms: 5,
	}, func() int { return 5 })
	m.OnMatch = func(a, b *QueueEntry) { matches++ }

	m.Enqueue(NewPlayer("a", "", "s"), ModeCasual, "")
	m.Enqueue(NewPlayer("b", "", "s"), ModeCasual, "")

	if matches != 0 {
		t.Errorf("Pairing proceeded at the room cap")
	}
}
