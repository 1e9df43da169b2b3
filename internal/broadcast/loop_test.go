package broadcast

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_cast/internal/events"
	"github.com/friendsincode/muninn_cast/internal/media"
	"github.com/friendsincode/muninn_cast/internal/playlist"
	"github.com/friendsincode/muninn_cast/internal/timeline"
)

type testClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps chan time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0), sleeps: make(chan time.Duration, 64)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	select {
	case c.sleeps <- d:
	default:
	}
}

type stubTrack struct {
	path string
	read bool
}

func (t *stubTrack) Info() media.TrackInfo {
	return media.TrackInfo{
		Path:        t.path,
		Codec:       "aac",
		ContentType: "audio/aac",
		SampleRate:  44100,
		Channels:    2,
		TimeBase:    media.Rational{Num: 1, Den: 44100},
	}
}

func (t *stubTrack) ReadPacket() (*media.Packet, error) {
	if t.read {
		return nil, io.EOF
	}
	t.read = true
	return &media.Packet{
		PTS:      0,
		DTS:      0,
		Duration: 0, // zero duration keeps the loop from pacing in tests
		TimeBase: media.Rational{Num: 1, Den: 44100},
		Data:     []byte{0xFF, 0xF1},
	}, nil
}

func (t *stubTrack) Close() error { return nil }

type stubOpener struct {
	bad map[string]bool
}

func (o *stubOpener) Open(_ context.Context, path string) (media.Track, error) {
	if o.bad[filepath.Base(path)] {
		return nil, errors.New("no such codec")
	}
	return &stubTrack{path: path}, nil
}

type stubSink struct {
	mu            sync.Mutex
	negotiations  int
	failNegotiate bool
	failWrite     bool
	writes        int
	closed        bool
}

func (s *stubSink) Negotiate(_ context.Context, _ media.TrackInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negotiations++
	if s.failNegotiate {
		return errors.New("401 unauthorized")
	}
	return nil
}

func (s *stubSink) Write(_ *media.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return errors.New("broken pipe")
	}
	s.writes++
	return nil
}

func (s *stubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) snapshot() (negotiations, writes int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiations, s.writes, s.closed
}

func writeTestFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newTestBroadcaster(dir string, opener media.Opener, sink Sink, clock timeline.Clock, bus *events.Bus) *Broadcaster {
	scanner := playlist.NewScanner(dir, []string{".mp3", ".m4a"})
	engine := timeline.NewEngine(clock, nil, zerolog.Nop())
	return New(scanner, opener, sink, engine, clock, bus, Options{
		EmptyRescanWait: 5 * time.Second,
		SkipPause:       0,
	}, zerolog.Nop())
}

func recvEvent(t *testing.T, ch events.Subscriber) events.Payload {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPerFileFailureDoesNotHaltPass(t *testing.T) {
	dir := writeTestFiles(t, "a.mp3", "b.mp3", "c.mp3", "d.mp3", "e.mp3")
	opener := &stubOpener{bad: map[string]bool{"c.mp3": true}}
	sink := &stubSink{}
	bus := events.NewBus()
	clock := newTestClock()

	played := bus.Subscribe(events.EventNowPlaying)
	skipped := bus.Subscribe(events.EventTrackSkipped)

	b := newTestBroadcaster(dir, opener, sink, clock, bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// Four files play and one is skipped, in shuffled order; the failure
	// must not stop the rest of the pass.
	playedSet := make(map[string]bool)
	var skippedFile string
	deadline := time.After(2 * time.Second)
	for skippedFile == "" || len(playedSet) < 4 {
		select {
		case payload := <-played:
			playedSet[filepath.Base(payload["file"].(string))] = true
		case payload := <-skipped:
			skippedFile = filepath.Base(payload["file"].(string))
		case <-deadline:
			t.Fatalf("timed out waiting for pass: played %v, skipped %q", playedSet, skippedFile)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}

	if skippedFile != "c.mp3" {
		t.Fatalf("skipped %q, want c.mp3", skippedFile)
	}
	for _, name := range []string{"a.mp3", "b.mp3", "d.mp3", "e.mp3"} {
		if !playedSet[name] {
			t.Fatalf("%s did not stream in the pass with the failure", name)
		}
	}

	negotiations, _, closed := sink.snapshot()
	if negotiations != 1 {
		t.Fatalf("negotiations = %d, want 1", negotiations)
	}
	if !closed {
		t.Fatal("sink not finalized on exit")
	}
}

func TestIdleRetryOnEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	sink := &stubSink{}
	clock := newTestClock()

	b := newTestBroadcaster(dir, &stubOpener{}, sink, clock, events.NewBus())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// The loop must wait a bounded interval between rescans, indefinitely.
	for i := 0; i < 3; i++ {
		select {
		case d := <-clock.sleeps:
			if d != 5*time.Second {
				t.Fatalf("idle wait = %v, want 5s", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for idle rescan wait")
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}

	negotiations, _, _ := sink.snapshot()
	if negotiations != 0 {
		t.Fatalf("negotiated with no files: %d", negotiations)
	}
}

func TestSinkWriteFailureIsFatal(t *testing.T) {
	dir := writeTestFiles(t, "a.mp3")
	sink := &stubSink{failWrite: true}
	clock := newTestClock()

	b := newTestBroadcaster(dir, &stubOpener{}, sink, clock, events.NewBus())
	err := b.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !IsFatal(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
	var sinkErr *timeline.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError cause, got %v", err)
	}

	_, _, closed := sink.snapshot()
	if !closed {
		t.Fatal("sink not finalized after fatal error")
	}
}

func TestNegotiateFailureIsFatal(t *testing.T) {
	dir := writeTestFiles(t, "a.mp3")
	sink := &stubSink{failNegotiate: true}
	clock := newTestClock()

	b := newTestBroadcaster(dir, &stubOpener{}, sink, clock, events.NewBus())
	err := b.Run(context.Background())
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestNegotiateHappensOncePerProcess(t *testing.T) {
	dir := writeTestFiles(t, "a.mp3", "b.mp3", "c.m4a")
	sink := &stubSink{}
	bus := events.NewBus()
	clock := newTestClock()

	played := bus.Subscribe(events.EventNowPlaying)

	b := newTestBroadcaster(dir, &stubOpener{}, sink, clock, bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	for i := 0; i < 3; i++ {
		recvEvent(t, played)
	}
	cancel()
	<-done

	negotiations, writes, _ := sink.snapshot()
	if negotiations != 1 {
		t.Fatalf("negotiations = %d, want 1", negotiations)
	}
	if writes < 3 {
		t.Fatalf("writes = %d, want at least 3", writes)
	}
}
