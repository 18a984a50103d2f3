package player

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/queue"
	"github.com/doomhound188/wavehound/internal/track"
)

// ErrConnectFailed marks a failure to open or keep the voice session.
// Unlike a bad track source, this ends the whole playback session.
var ErrConnectFailed = errors.New("could not join voice channel")

// SessionOpener acquires the voice transport for a guild.
type SessionOpener interface {
	Open(ctx context.Context, guildID, channelID string) (queue.VoiceSession, error)
}

// StreamOpener resolves a track into a playable stream URL. Expensive;
// called exactly once per play attempt.
type StreamOpener interface {
	StreamURL(ctx context.Context, t track.Track) (string, error)
}

// Notifier posts and edits user-facing messages. Errors are logged,
// never retried.
type Notifier interface {
	Send(channelID, content string) (messageID string, err error)
	Edit(channelID, messageID, content string) error
}

// Engine drives one queue's playback: it starts the track at the
// cursor, arms a completion callback guarded by the queue's attempt
// token, and on completion advances per loop mode and recurses. All
// queue mutations go through Queue methods, so engine callbacks and
// user commands serialize on the queue's mutex.
type Engine struct {
	sessions SessionOpener
	streams  StreamOpener
	notify   Notifier
	present  *Presenter
	log      *zap.Logger
}

func NewEngine(sessions SessionOpener, streams StreamOpener, notify Notifier, present *Presenter, log *zap.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		streams:  streams,
		notify:   notify,
		present:  present,
		log:      log,
	}
}

// PlayNext begins playing the track at the queue's cursor. Callers
// invoke it when a track lands on a non-playing queue; the engine
// invokes it itself while advancing.
func (e *Engine) PlayNext(ctx context.Context, q *queue.Queue) {
	token, t, ok := q.BeginAttempt()
	if !ok {
		if q.Len() > 0 {
			// Cursor out of bounds with tracks present: logic fault.
			// Forcing the terminal state beats guessing at a valid one.
			e.log.Error("cursor out of bounds, forcing stop",
				snapshotFields(q.Snapshot())...)
		}
		if s := q.DetachSession(); s != nil {
			_ = s.Disconnect()
		}
		e.present.Notify(q)
		return
	}

	sess := q.Session()
	if sess == nil {
		s, err := e.sessions.Open(ctx, q.GuildID(), q.VoiceChannelID())
		if err != nil {
			// The session is a shared precondition for every queued
			// track, so this is fatal to the playback session.
			e.log.Warn("voice session acquisition failed",
				zap.String("guild", q.GuildID()), zap.Error(err))
			e.send(q, fmt.Sprintf("Could not join the voice channel: %v", err))
			q.MarkStopped()
			e.present.Notify(q)
			return
		}
		if !q.AttachSession(token, s) {
			// A stop or skip superseded this attempt while connecting.
			_ = s.Disconnect()
			return
		}
		sess = s
	}

	url, err := e.streams.StreamURL(ctx, t)
	if err != nil {
		// One bad source never stalls the queue: report once, drop the
		// track so no loop mode can retry it, and move on.
		e.log.Warn("stream resolution failed",
			zap.String("guild", q.GuildID()),
			zap.String("title", t.Title),
			zap.Error(err))
		e.send(q, fmt.Sprintf("Skipping **%s**: %v", t.Title, err))
		e.advance(ctx, q, q.DiscardCurrent(token))
		return
	}

	pb, err := sess.Play(ctx, url)
	if err != nil {
		e.log.Warn("transport playback failed to start",
			zap.String("guild", q.GuildID()),
			zap.String("title", t.Title),
			zap.Error(err))
		e.send(q, fmt.Sprintf("Skipping **%s**: %v", t.Title, err))
		e.advance(ctx, q, q.DiscardCurrent(token))
		return
	}

	if !q.CommitPlaying(token, pb) {
		// Superseded between resolve and start; tear the stream down.
		pb.Stop()
		return
	}

	e.log.Info("playing",
		zap.String("guild", q.GuildID()),
		zap.String("title", t.Title),
		zap.String("kind", t.Kind.String()))
	e.present.Notify(q)
	go e.watch(q, token, pb)
}

// watch waits for the attempt's terminal events. The transport may
// emit more than one for a single track end; every one funnels into
// advance, where the token guard makes all but the first a no-op.
func (e *Engine) watch(q *queue.Queue, token uint64, pb queue.Playback) {
	for err := range pb.Done() {
		if err != nil {
			e.log.Warn("playback ended with error",
				zap.String("guild", q.GuildID()), zap.Error(err))
		}
		e.advance(context.Background(), q, q.Advance(token))
	}
}

// advance acts on the completion decision for one attempt.
func (e *Engine) advance(ctx context.Context, q *queue.Queue, outcome queue.AdvanceOutcome) {
	switch outcome {
	case queue.AdvanceStale:
		return
	case queue.AdvanceReplay, queue.AdvanceNext, queue.AdvanceWrapped:
		e.present.Notify(q)
		e.PlayNext(ctx, q)
	case queue.AdvanceDrained:
		if s := q.DetachSession(); s != nil {
			_ = s.Disconnect()
		}
		e.log.Info("queue drained", zap.String("guild", q.GuildID()))
		e.present.Finish(q)
	}
}

// Pause suspends the current track.
func (e *Engine) Pause(q *queue.Queue) error {
	if err := q.SetPaused(true); err != nil {
		return err
	}
	if s := q.Session(); s != nil {
		s.SetPaused(true)
	}
	e.present.Notify(q)
	return nil
}

// Resume continues a paused track.
func (e *Engine) Resume(q *queue.Queue) error {
	if err := q.SetPaused(false); err != nil {
		return err
	}
	if s := q.Session(); s != nil {
		s.SetPaused(false)
	}
	e.present.Notify(q)
	return nil
}

// Skip cancels the in-flight attempt and moves the cursor off the
// current track, loop one notwithstanding. The stale attempt's own
// terminal event, whenever it arrives, is a no-op.
func (e *Engine) Skip(ctx context.Context, q *queue.Queue) error {
	if !q.IsPlaying() {
		return queue.ErrNotPlaying
	}
	token, pb := q.CancelAttempt()
	if pb != nil {
		pb.Stop()
	}
	e.advance(ctx, q, q.AdvanceSkip(token))
	return nil
}

// Stop ends the playback session: queue cleared, session released,
// status display finished. involuntary marks a connection drop rather
// than a user command.
func (e *Engine) Stop(q *queue.Queue, involuntary bool) {
	_, pb := q.CancelAttempt()
	if pb != nil {
		pb.Stop()
	}
	q.Reset()
	if s := q.DetachSession(); s != nil {
		_ = s.Disconnect()
	}
	if involuntary {
		e.log.Warn("voice session dropped", zap.String("guild", q.GuildID()))
	} else {
		e.log.Info("playback stopped", zap.String("guild", q.GuildID()))
	}
	e.present.Finish(q)
}

func (e *Engine) send(q *queue.Queue, content string) {
	ch := q.NotifyChannelID()
	if ch == "" {
		return
	}
	if _, err := e.notify.Send(ch, content); err != nil {
		e.log.Warn("notification failed",
			zap.String("guild", q.GuildID()), zap.Error(err))
	}
}

func snapshotFields(s queue.Snapshot) []zap.Field {
	return []zap.Field{
		zap.String("guild", s.GuildID),
		zap.Int("len", s.Len),
		zap.Int("cursor", s.Cursor),
		zap.String("state", s.State),
		zap.String("loop", s.Loop),
		zap.Uint64("attempt", s.Attempt),
	}
}
