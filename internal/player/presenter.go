package player

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/queue"
	"github.com/doomhound188/wavehound/internal/track"
)

const (
	// How often the progress indicator re-renders while playing.
	refreshInterval = 10 * time.Second
	upNextShown     = 3
)

// Presenter keeps one live-updating "now playing" message per guild.
// Notify calls coalesce: a single worker per guild drains a 1-slot
// dirty signal, so only the latest queue state gets rendered no matter
// how many transitions raced in. A ticker re-renders the progress
// indicator while a track is playing.
type Presenter struct {
	api Notifier
	log *zap.Logger

	mu       sync.Mutex
	displays map[string]*display
}

type display struct {
	channelID string
	messageID string
	dirty     chan struct{}
	quit      chan struct{}

	// renderMu serializes renders from the worker and from Finish, so
	// the create-or-edit decision is atomic per display. retired stops
	// a straggling worker render from overwriting the terminal state.
	renderMu sync.Mutex
	retired  bool
}

func NewPresenter(api Notifier, log *zap.Logger) *Presenter {
	return &Presenter{
		api:      api,
		log:      log,
		displays: make(map[string]*display),
	}
}

// Notify schedules a render of the queue's current state. Idempotent
// and non-blocking.
func (p *Presenter) Notify(q *queue.Queue) {
	d := p.displayFor(q)
	select {
	case d.dirty <- struct{}{}:
	default:
		// A render is already pending; it will pick up this state.
	}
}

// Finish renders the terminal state once and retires the display, so a
// later play starts a fresh message.
func (p *Presenter) Finish(q *queue.Queue) {
	p.mu.Lock()
	d, ok := p.displays[q.GuildID()]
	delete(p.displays, q.GuildID())
	p.mu.Unlock()
	if !ok {
		return
	}
	close(d.quit)
	d.renderMu.Lock()
	p.renderLocked(q, d)
	d.retired = true
	d.renderMu.Unlock()
}

// Close retires every display, for shutdown.
func (p *Presenter) Close() {
	p.mu.Lock()
	displays := p.displays
	p.displays = make(map[string]*display)
	p.mu.Unlock()
	for _, d := range displays {
		close(d.quit)
	}
}

func (p *Presenter) displayFor(q *queue.Queue) *display {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.displays[q.GuildID()]; ok {
		if ch := q.NotifyChannelID(); ch != "" {
			d.channelID = ch
		}
		return d
	}
	d := &display{
		channelID: q.NotifyChannelID(),
		dirty:     make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	p.displays[q.GuildID()] = d
	go p.run(q, d)
	return d
}

func (p *Presenter) run(q *queue.Queue, d *display) {
	tick := time.NewTicker(refreshInterval)
	defer tick.Stop()
	for {
		select {
		case <-d.quit:
			return
		case <-d.dirty:
		case <-tick.C:
			if !q.IsPlaying() || q.IsPaused() {
				continue
			}
		}
		p.render(q, d)
	}
}

func (p *Presenter) render(q *queue.Queue, d *display) {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	if d.retired {
		return
	}
	p.renderLocked(q, d)
}

func (p *Presenter) renderLocked(q *queue.Queue, d *display) {
	content := RenderStatus(q)

	p.mu.Lock()
	channelID, messageID := d.channelID, d.messageID
	p.mu.Unlock()
	if channelID == "" {
		return
	}

	if messageID == "" {
		id, err := p.api.Send(channelID, content)
		if err != nil {
			p.log.Warn("status message send failed",
				zap.String("guild", q.GuildID()), zap.Error(err))
			return
		}
		p.mu.Lock()
		d.messageID = id
		p.mu.Unlock()
		return
	}

	if err := p.api.Edit(channelID, messageID, content); err != nil {
		p.log.Warn("status message edit failed",
			zap.String("guild", q.GuildID()), zap.Error(err))
	}
}

// RenderStatus derives the status payload from current queue state.
func RenderStatus(q *queue.Queue) string {
	cur, ok := q.Current()
	if !ok || !q.IsPlaying() {
		return "⏹ Nothing playing."
	}

	var position string
	if cur.Live {
		position = "LIVE"
	} else {
		position = track.FormatDuration(q.Elapsed()) + "/" + track.FormatDuration(cur.Duration)
	}

	marker := "▶"
	if q.IsPaused() {
		marker = "⏸"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%s** [`%s`]", marker, cur.Title, position)
	if cur.Channel != "" {
		fmt.Fprintf(&sb, " - %s", cur.Channel)
	}
	if q.Loop() != queue.LoopNone {
		fmt.Fprintf(&sb, " (loop: %s)", q.Loop())
	}
	fmt.Fprintf(&sb, "\nRequested by <@%s>", cur.RequesterID)

	tracks := q.Tracks()
	cursor := q.Cursor()
	if cursor >= 0 && cursor+1 < len(tracks) {
		upcoming := lo.Slice(tracks, cursor+1, cursor+1+upNextShown)
		lines := lo.Map(upcoming, func(t track.Track, i int) string {
			return fmt.Sprintf("%d. %s", i+1, t.Title)
		})
		fmt.Fprintf(&sb, "\nUp next:\n%s", strings.Join(lines, "\n"))
	}
	return sb.String()
}
