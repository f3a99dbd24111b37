package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) {
	panic("sink exploded")
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 || d.Pending() != 0 {
		t.Fatal("expected nil dispatcher helpers to be safe")
	}
	if st := d.Stats(); st.Delivered != 0 || st.LostByType == nil {
		t.Fatalf("expected zero stats from nil dispatcher, got %+v", st)
	}
}

func TestDispatcherCloseDrainsBufferedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "login"})
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected emit after close to be ignored, got %d", got)
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "otp_issue"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a tiny buffer")
	}

	close(sink.gate)
	d.Close()

	st := d.Stats()
	if st.Shed != d.Dropped() || st.Failed != 0 {
		t.Fatalf("expected every drop to be a shed, got %+v", st)
	}
	if st.LostByType["otp_issue"] != st.Shed {
		t.Fatalf("expected shed events attributed to otp_issue, got %v", st.LostByType)
	}
	if st.Delivered+st.Shed != 20 {
		t.Fatalf("expected every event delivered or shed, got %+v", st)
	}
}

func TestDispatcherStampsMissingTimestamp(t *testing.T) {
	sink := NewChannelSink(2)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, sink)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Emit(context.Background(), Event{EventType: "register", Timestamp: fixed})
	d.Close()

	first, second := <-sink.Events(), <-sink.Events()
	if first.Timestamp.IsZero() || first.Timestamp.Location() != time.UTC {
		t.Fatalf("expected a UTC timestamp to be filled in, got %v", first.Timestamp)
	}
	if !second.Timestamp.Equal(fixed) {
		t.Fatalf("expected caller timestamp to be kept, got %v", second.Timestamp)
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{EventType: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected blocked emit to return once context expired")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()

	if d.Dropped() != 1 {
		t.Fatalf("expected panicking delivery to count as dropped, got %d", d.Dropped())
	}
	if st := d.Stats(); st.Failed != 1 || st.Delivered != 0 || st.LostByType["login"] != 1 {
		t.Fatalf("expected one failed login delivery, got %+v", st)
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: "login", Email: "a@x.io", Success: true})
	sink.Emit(context.Background(), Event{EventType: "otp_verify", Error: "challenge_rejected"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if ev.EventType != "login" || ev.Email != "a@x.io" || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSlogSinkLevelsByOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login", AgentUID: "u1", Success: true})
	sink.Emit(context.Background(), Event{
		EventType: "otp_verify",
		Email:     "a@x.io",
		Error:     "challenge_expired",
		Metadata:  map[string]string{"reason": "absent"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if first["level"] != "INFO" || first["agent_uid"] != "u1" {
		t.Fatalf("unexpected success record %v", first)
	}
	if second["level"] != "WARN" || second["error"] != "challenge_expired" {
		t.Fatalf("unexpected failure record %v", second)
	}
	meta, ok := second["metadata"].(map[string]any)
	if !ok || meta["reason"] != "absent" {
		t.Fatalf("expected metadata group, got %v", second["metadata"])
	}
}
