package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()
	if got := sink.len(); got != 10 {
		t.Fatalf("expected 10 events after close, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.len(); got != 10 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot buffer")
	}
	close(sink.block)
	d.Close()
}

func TestDispatcherNeverDropsCriticalEvents(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"refresh_reuse_detected"},
	}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	routineDrops := d.Dropped()
	if routineDrops == 0 {
		t.Fatal("expected routine drops with a blocked sink and a one-slot buffer")
	}

	emitted := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			d.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", UserID: "u1"})
		}
		close(emitted)
	}()

	close(sink.block)
	<-emitted
	d.Close()

	if d.Dropped() != routineDrops {
		t.Fatalf("critical events must not be dropped: drops went from %d to %d", routineDrops, d.Dropped())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	reuse := 0
	for _, e := range sink.events {
		if e.EventType == "refresh_reuse_detected" {
			reuse++
		}
	}
	if reuse != 3 {
		t.Fatalf("expected 3 reuse events delivered, got %d", reuse)
	}
}

func TestDispatcherCriticalEventGivesUpWithContext(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"authorize_denied"},
	}, sink)
	defer func() {
		close(sink.block)
		d.Close()
	}()

	// One event is held by the blocked sink, one fills the reserved slot.
	d.Emit(context.Background(), Event{EventType: "authorize_denied"})
	waitFor(t, func() bool { return len(d.priority) == 0 })
	d.Emit(context.Background(), Event{EventType: "authorize_denied"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "authorize_denied"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the timed-out critical event to be counted, got %d", d.Dropped())
	}
}

func TestDispatcherIsCritical(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, Critical: []string{"authorize_denied"}}, NoOpSink{})
	defer d.Close()
	if !d.IsCritical("authorize_denied") || d.IsCritical("login_success") {
		t.Fatal("unexpected critical classification")
	}
	var nilDispatcher *Dispatcher
	if nilDispatcher.IsCritical("authorize_denied") {
		t.Fatal("nil dispatcher has no critical events")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventType != "login_success" || got.UserID != "u1" || !got.Success {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger, "refresh_reuse_detected")

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, Timestamp: time.Now()})
	sink.Emit(context.Background(), Event{EventType: "refresh_reuse_detected", Success: true, UserID: "u1"})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(lines))
	}
	wantLevels := []string{"INFO", "WARN", "WARN"}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if rec["level"] != wantLevels[i] {
			t.Fatalf("line %d: expected level %s, got %v", i, wantLevels[i], rec["level"])
		}
		if rec["component"] != "audit" {
			t.Fatalf("line %d: missing component attr", i)
		}
	}
}
