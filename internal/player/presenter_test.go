package player

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/queue"
	"github.com/doomhound188/wavehound/internal/track"
)

func startFakePlaying(t *testing.T, q *queue.Queue) *fakePlayback {
	t.Helper()
	token, _, ok := q.BeginAttempt()
	if !ok {
		t.Fatal("Expected attempt to begin")
	}
	pb := newFakePlayback()
	if !q.CommitPlaying(token, pb) {
		t.Fatal("Expected commit to land")
	}
	return pb
}

func TestRenderStatusIdle(t *testing.T) {
	q := newTestQueue()
	if got := RenderStatus(q); got != "⏹ Nothing playing." {
		t.Errorf("Expected idle status, got %q", got)
	}
}

func TestRenderStatusPlaying(t *testing.T) {
	q := newTestQueue("first song", "second song", "third song")
	startFakePlaying(t, q)

	got := RenderStatus(q)
	if !strings.Contains(got, "▶ **first song**") {
		t.Errorf("Expected playing marker and title, got %q", got)
	}
	if !strings.Contains(got, "/3:00") {
		t.Errorf("Expected total duration, got %q", got)
	}
	if !strings.Contains(got, "Requested by <@user1>") {
		t.Errorf("Expected requester attribution, got %q", got)
	}
	if !strings.Contains(got, "Up next:") || !strings.Contains(got, "1. second song") {
		t.Errorf("Expected upcoming tracks, got %q", got)
	}
}

func TestRenderStatusPaused(t *testing.T) {
	q := newTestQueue("a")
	startFakePlaying(t, q)
	if err := q.SetPaused(true); err != nil {
		t.Fatalf("Expected pause to succeed, got %v", err)
	}
	if got := RenderStatus(q); !strings.Contains(got, "⏸") {
		t.Errorf("Expected pause marker, got %q", got)
	}
}

func TestRenderStatusLive(t *testing.T) {
	q := queue.New("guild1")
	q.SetChannels("voice1", "text1")
	q.Push(track.NewVideo("vid123", "live stream", "some channel", "", 0, true, "user1"))
	startFakePlaying(t, q)

	got := RenderStatus(q)
	if !strings.Contains(got, "LIVE") {
		t.Errorf("Expected live marker instead of progress, got %q", got)
	}
	if !strings.Contains(got, "some channel") {
		t.Errorf("Expected channel attribution, got %q", got)
	}
}

func TestRenderStatusLoopMarker(t *testing.T) {
	q := newTestQueue("a")
	q.SetLoop(queue.LoopAll)
	startFakePlaying(t, q)
	if got := RenderStatus(q); !strings.Contains(got, "(loop: all)") {
		t.Errorf("Expected loop marker, got %q", got)
	}
}

func TestRenderStatusUpNextCapped(t *testing.T) {
	q := newTestQueue("a", "b", "c", "d", "e", "f")
	startFakePlaying(t, q)
	got := RenderStatus(q)
	if !strings.Contains(got, "3. d") {
		t.Errorf("Expected three upcoming tracks, got %q", got)
	}
	if strings.Contains(got, "4. e") {
		t.Errorf("Expected up-next list capped, got %q", got)
	}
}

func TestPresenterSendsThenEdits(t *testing.T) {
	notify := &fakeNotifier{}
	p := NewPresenter(notify, zap.NewNop())
	defer p.Close()
	q := newTestQueue("a")
	startFakePlaying(t, q)

	p.Notify(q)
	waitFor(t, "first render", func() bool {
		notify.mu.Lock()
		defer notify.mu.Unlock()
		return len(notify.sends) == 1
	})

	if err := q.SetPaused(true); err != nil {
		t.Fatalf("Expected pause to succeed, got %v", err)
	}
	p.Notify(q)
	waitFor(t, "edit with paused state", func() bool {
		notify.mu.Lock()
		defer notify.mu.Unlock()
		return len(notify.edits) >= 1 &&
			strings.Contains(notify.edits[len(notify.edits)-1], "⏸")
	})

	notify.mu.Lock()
	sends := len(notify.sends)
	notify.mu.Unlock()
	if sends != 1 {
		t.Errorf("Expected updates to edit the original message, got %d sends", sends)
	}
}

func TestPresenterCoalescedNotifiesConverge(t *testing.T) {
	notify := &fakeNotifier{}
	p := NewPresenter(notify, zap.NewNop())
	defer p.Close()
	q := newTestQueue("a")
	startFakePlaying(t, q)

	// A burst of notifications may drop intermediate renders, but the
	// last render must reflect the final state.
	for i := 0; i < 50; i++ {
		p.Notify(q)
	}
	if err := q.SetPaused(true); err != nil {
		t.Fatalf("Expected pause to succeed, got %v", err)
	}
	p.Notify(q)

	waitFor(t, "final state rendered", func() bool {
		notify.mu.Lock()
		defer notify.mu.Unlock()
		if len(notify.edits) > 0 {
			return strings.Contains(notify.edits[len(notify.edits)-1], "⏸")
		}
		return len(notify.sends) > 0 &&
			strings.Contains(notify.sends[len(notify.sends)-1], "⏸")
	})
}

func TestNotifyThenFinishSendsOneMessage(t *testing.T) {
	// Finish may race the worker's render of a still-pending dirty
	// signal; whichever lands first, exactly one message is created.
	for i := 0; i < 25; i++ {
		notify := &fakeNotifier{}
		p := NewPresenter(notify, zap.NewNop())
		q := newTestQueue("a")
		startFakePlaying(t, q)

		p.Notify(q)
		q.Reset()
		p.Finish(q)

		notify.mu.Lock()
		sends := len(notify.sends)
		notify.mu.Unlock()
		if sends != 1 {
			t.Fatalf("iteration %d: expected exactly one status message, got %d", i, sends)
		}
	}
}

func TestPresenterFinishStartsFresh(t *testing.T) {
	notify := &fakeNotifier{}
	p := NewPresenter(notify, zap.NewNop())
	defer p.Close()
	q := newTestQueue("a")
	startFakePlaying(t, q)

	p.Notify(q)
	waitFor(t, "first render", func() bool {
		notify.mu.Lock()
		defer notify.mu.Unlock()
		return len(notify.sends) == 1
	})

	q.Reset()
	p.Finish(q)
	notify.mu.Lock()
	final := notify.edits[len(notify.edits)-1]
	notify.mu.Unlock()
	if !strings.Contains(final, "Nothing playing") {
		t.Errorf("Expected terminal render, got %q", final)
	}

	// A later session gets its own message instead of editing the old one.
	q.Push(track.NewAudio("https://example.com/b", "b", "artist", time.Minute, "user1"))
	startFakePlaying(t, q)
	p.Notify(q)
	waitFor(t, "fresh message", func() bool {
		notify.mu.Lock()
		defer notify.mu.Unlock()
		return len(notify.sends) == 2
	})
}
