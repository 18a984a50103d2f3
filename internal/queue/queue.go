package queue

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/doomhound188/wavehound/internal/track"
)

var (
	ErrNothingQueued = errors.New("nothing queued")
	ErrInvalidRange  = errors.New("invalid track range")
	ErrNotPlaying    = errors.New("nothing is playing")
	ErrNotPaused     = errors.New("playback is not paused")
)

// LiveDuration is the sentinel returned by Remaining and TotalLength
// when a live stream makes the figure meaningless.
const LiveDuration = time.Duration(-1)

// LoopMode governs cursor advancement on track completion.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopOne
	LoopAll
)

func (m LoopMode) String() string {
	switch m {
	case LoopOne:
		return "one"
	case LoopAll:
		return "all"
	default:
		return "none"
	}
}

// State is the playback engine's position in its lifecycle. Only the
// engine moves it; command handlers read it.
type State int

const (
	Idle State = iota
	Acquiring
	Playing
	Paused
	Advancing
	Stopped
)

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Advancing:
		return "advancing"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// AdvanceOutcome is the decision taken when a play attempt completes.
type AdvanceOutcome int

const (
	AdvanceStale   AdvanceOutcome = iota // completion belonged to a superseded attempt
	AdvanceReplay                        // loop one: same track again
	AdvanceNext                          // cursor moved to the next track
	AdvanceWrapped                       // loop all: cursor wrapped to 0
	AdvanceDrained                       // no next track; playback session over
)

// Queue is one guild's playback state: ordered tracks, a cursor, loop
// mode, and the handles of the active voice session. Every mutation
// happens under a single mutex so commands and engine callbacks observe
// either the pre- or post-transition state, never a partial one.
type Queue struct {
	mu      sync.Mutex
	guildID string

	tracks []track.Track
	cursor int
	loop   LoopMode
	state  State

	// attempt is bumped every time a new play attempt starts (or an
	// old one is cancelled). Completion callbacks carry the token they
	// were armed with; a mismatch makes them no-ops, which is what
	// prevents double-advance on duplicate or stale terminal events.
	attempt uint64

	session  VoiceSession
	playback Playback

	voiceChannelID  string
	notifyChannelID string

	startedAt time.Time
	pausedAt  time.Time
	pausedFor time.Duration
}

func New(guildID string) *Queue {
	return &Queue{
		guildID: guildID,
		cursor:  -1,
	}
}

func (q *Queue) GuildID() string { return q.guildID }

// SetChannels records where to stream and where to post status.
func (q *Queue) SetChannels(voiceChannelID, notifyChannelID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.voiceChannelID = voiceChannelID
	q.notifyChannelID = notifyChannelID
}

func (q *Queue) VoiceChannelID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.voiceChannelID
}

func (q *Queue) NotifyChannelID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notifyChannelID
}

// Push appends a track and returns the new queue length. It has no
// side effect on playback, but after a drain it re-points the cursor at
// the new track so a subsequent play attempt picks it up.
func (q *Queue) Push(t track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
	if !q.isPlayingLocked() && (q.cursor < 0 || q.cursor >= len(q.tracks)-1) {
		q.cursor = len(q.tracks) - 1
	}
	return len(q.tracks)
}

// Tracks returns a copy of the queued tracks in order.
func (q *Queue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]track.Track{}, q.tracks...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracks)
}

func (q *Queue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Current returns the track at the cursor, if any.
func (q *Queue) Current() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[q.cursor], true
}

// RemoveRange removes tracks [start, end] using 1-based user-facing
// indices. Removing the currently-playing track while playing is
// rejected; callers wanting that use Clear semantics instead. Returns
// the number of tracks removed.
func (q *Queue) RemoveRange(start, end int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, e := start-1, end-1
	if s > e || s < 0 || e >= len(q.tracks) {
		return 0, ErrInvalidRange
	}
	if q.isPlayingLocked() && s <= q.cursor && q.cursor <= e {
		return 0, ErrInvalidRange
	}

	count := e - s + 1
	q.tracks = append(q.tracks[:s], q.tracks[e+1:]...)

	switch {
	case len(q.tracks) == 0:
		q.cursor = -1
	case q.cursor > e:
		q.cursor -= count
	case q.cursor >= s:
		// Cursor track was removed (only reachable when not playing).
		if s >= len(q.tracks) {
			q.cursor = len(q.tracks) - 1
		} else {
			q.cursor = s
		}
	}
	return count, nil
}

// Clear empties the queue. With keepCurrent while playing, only the
// track at the cursor survives, at index 0.
func (q *Queue) Clear(keepCurrent bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if keepCurrent && q.isPlayingLocked() && q.cursor >= 0 && q.cursor < len(q.tracks) {
		q.tracks = []track.Track{q.tracks[q.cursor]}
		q.cursor = 0
		return
	}
	q.tracks = nil
	q.cursor = -1
}

// Shuffle permutes all tracks except the current one, which moves to
// index 0 with the cursor following it.
func (q *Queue) Shuffle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) < 2 {
		return ErrNothingQueued
	}
	if q.cursor >= 0 && q.cursor < len(q.tracks) {
		q.tracks[0], q.tracks[q.cursor] = q.tracks[q.cursor], q.tracks[0]
		q.cursor = 0
		rest := q.tracks[1:]
		rand.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
		return nil
	}
	rand.Shuffle(len(q.tracks), func(i, j int) {
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	})
	return nil
}

// SetLoop changes the loop mode. The engine reads it only at
// completion time, so a mid-track change applies on the next
// completion.
func (q *Queue) SetLoop(m LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = m
}

func (q *Queue) Loop() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// IsPlaying reports whether a playback session is active, paused or
// not.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isPlayingLocked()
}

func (q *Queue) isPlayingLocked() bool {
	switch q.state {
	case Acquiring, Playing, Paused, Advancing:
		return true
	default:
		return false
	}
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == Paused
}

// Elapsed is how far into the current track playback is, excluding
// paused time.
func (q *Queue) Elapsed() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.elapsedLocked()
}

func (q *Queue) elapsedLocked() time.Duration {
	switch q.state {
	case Playing:
		return time.Since(q.startedAt) - q.pausedFor
	case Paused:
		return q.pausedAt.Sub(q.startedAt) - q.pausedFor
	default:
		return 0
	}
}

// Remaining is the time left in the current track, clamped to zero.
// LiveDuration for live streams: remaining time is meaningless there.
func (q *Queue) Remaining() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		return 0
	}
	cur := q.tracks[q.cursor]
	if cur.Live {
		return LiveDuration
	}
	left := cur.Duration - q.elapsedLocked()
	if left < 0 {
		left = 0
	}
	return left
}

// TotalLength sums the durations of all un-played tracks, excluding the
// elapsed portion of the current one. LiveDuration when any queued
// track is live.
func (q *Queue) TotalLength() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return 0
	}
	start := q.cursor
	if start < 0 {
		start = 0
	}
	var total time.Duration
	for i := start; i < len(q.tracks); i++ {
		if q.tracks[i].Live {
			return LiveDuration
		}
		total += q.tracks[i].Duration
	}
	if q.cursor >= 0 && q.cursor < len(q.tracks) {
		total -= q.elapsedLocked()
		if total < 0 {
			total = 0
		}
	}
	return total
}

// Attempt returns the current attempt token.
func (q *Queue) Attempt() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempt
}

// BeginAttempt mints a fresh attempt token and moves to Acquiring. ok
// is false when there is no track at the cursor to play.
func (q *Queue) BeginAttempt() (token uint64, t track.Track, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempt++
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		q.state = Stopped
		if len(q.tracks) == 0 {
			q.state = Idle
		}
		return q.attempt, track.Track{}, false
	}
	q.state = Acquiring
	return q.attempt, q.tracks[q.cursor], true
}

// AttachSession hands the queue its voice session. Refused when the
// attempt went stale or a session is already held.
func (q *Queue) AttachSession(token uint64, s VoiceSession) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token != q.attempt || q.session != nil {
		return false
	}
	q.session = s
	return true
}

func (q *Queue) Session() VoiceSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.session
}

// DetachSession releases ownership of the voice session to the caller.
func (q *Queue) DetachSession() VoiceSession {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.session
	q.session = nil
	return s
}

// CommitPlaying moves Acquiring to Playing for the given attempt and
// records the playback handle. Refused for stale tokens, in which case
// the caller must tear the playback down itself.
func (q *Queue) CommitPlaying(token uint64, pb Playback) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token != q.attempt || q.state != Acquiring {
		return false
	}
	q.state = Playing
	q.playback = pb
	q.startedAt = time.Now()
	q.pausedFor = 0
	return true
}

// SetPaused toggles pause on the queue's own bookkeeping. Transport
// pause is the engine's job.
func (q *Queue) SetPaused(paused bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if paused {
		if q.state != Playing {
			return ErrNotPlaying
		}
		q.state = Paused
		q.pausedAt = time.Now()
		return nil
	}
	if q.state != Paused {
		return ErrNotPaused
	}
	q.state = Playing
	q.pausedFor += time.Since(q.pausedAt)
	return nil
}

// Advance runs the completion decision for a track that finished
// naturally, evaluated exactly once per completion: stale tokens are
// rejected before anything else, so duplicate terminal events and
// events from skipped attempts cannot move the cursor twice.
func (q *Queue) Advance(token uint64) AdvanceOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token != q.attempt {
		return AdvanceStale
	}
	q.consumeLocked()
	if q.loop == LoopOne && q.cursor >= 0 && q.cursor < len(q.tracks) {
		return AdvanceReplay
	}
	return q.stepLocked()
}

// AdvanceSkip is Advance for a deliberately abandoned track: the
// cursor always moves off it, so loop one cannot pin a skip to the
// same track. Loop all still wraps.
func (q *Queue) AdvanceSkip(token uint64) AdvanceOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token != q.attempt {
		return AdvanceStale
	}
	q.consumeLocked()
	return q.stepLocked()
}

// DiscardCurrent handles a track whose source failed: it is removed
// from the queue outright, so no loop mode can ever retry it. With
// every track bad, loop all drains instead of spinning.
func (q *Queue) DiscardCurrent(token uint64) AdvanceOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	if token != q.attempt {
		return AdvanceStale
	}
	q.consumeLocked()

	if q.cursor >= 0 && q.cursor < len(q.tracks) {
		q.tracks = append(q.tracks[:q.cursor], q.tracks[q.cursor+1:]...)
	}
	switch {
	case q.cursor >= 0 && q.cursor < len(q.tracks):
		return AdvanceNext
	case q.loop == LoopAll && len(q.tracks) > 0:
		q.cursor = 0
		return AdvanceWrapped
	case len(q.tracks) == 0:
		q.cursor = -1
		q.state = Stopped
		return AdvanceDrained
	default:
		q.cursor = len(q.tracks)
		q.state = Stopped
		return AdvanceDrained
	}
}

// consumeLocked burns the accepted token: a second terminal event for
// the same attempt must find it stale, no matter when it arrives.
func (q *Queue) consumeLocked() {
	q.attempt++
	q.playback = nil
	q.state = Advancing
}

func (q *Queue) stepLocked() AdvanceOutcome {
	switch {
	case q.cursor+1 < len(q.tracks):
		q.cursor++
		return AdvanceNext
	case q.loop == LoopAll && len(q.tracks) > 0:
		q.cursor = 0
		return AdvanceWrapped
	default:
		q.cursor = len(q.tracks)
		q.state = Stopped
		return AdvanceDrained
	}
}

// CancelAttempt supersedes the in-flight attempt: the token is bumped
// so any pending completion callback becomes a no-op, and the old
// playback handle is returned for teardown. The new token is the one
// to advance with.
func (q *Queue) CancelAttempt() (token uint64, pb Playback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempt++
	pb = q.playback
	q.playback = nil
	return q.attempt, pb
}

// MarkStopped forces the terminal state without clearing tracks, used
// when the voice session itself could not be acquired.
func (q *Queue) MarkStopped() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = Stopped
	q.playback = nil
}

// Reset clears everything for an explicit stop or disconnect. The
// Queue object itself stays registered for reuse.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
	q.cursor = -1
	q.state = Stopped
	q.playback = nil
}

// Snapshot captures the fields worth logging on a fault.
type Snapshot struct {
	GuildID string
	Len     int
	Cursor  int
	State   string
	Loop    string
	Attempt uint64
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		GuildID: q.guildID,
		Len:     len(q.tracks),
		Cursor:  q.cursor,
		State:   q.state.String(),
		Loop:    q.loop.String(),
		Attempt: q.attempt,
	}
}
