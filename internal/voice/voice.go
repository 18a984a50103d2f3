package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"
	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/player"
	"github.com/doomhound188/wavehound/internal/queue"
)

// Manager opens voice sessions over an active Discord gateway session.
// discordgo hands every ChannelVoiceJoin caller the guild's one shared
// connection, so joins are reference-counted per guild: each Open takes
// a reference, each session Disconnect drops one, and the underlying
// connection is severed only on the last. A session opened for an
// attempt that lost (a racing play command, a skip mid-acquire) can
// then be torn down without killing the winner's stream.
type Manager struct {
	discord *discordgo.Session
	log     *zap.Logger

	mu   sync.Mutex
	refs map[string]int
}

func NewManager(discord *discordgo.Session, log *zap.Logger) *Manager {
	return &Manager{
		discord: discord,
		log:     log,
		refs:    make(map[string]int),
	}
}

// Open joins the guild's voice channel and wraps the connection as a
// queue.VoiceSession holding one reference.
func (m *Manager) Open(ctx context.Context, guildID, channelID string) (queue.VoiceSession, error) {
	vc, err := m.discord.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", player.ErrConnectFailed, err)
	}
	m.mu.Lock()
	m.refs[guildID]++
	m.mu.Unlock()
	s := &session{vc: vc, log: m.log}
	s.release = func() bool { return m.release(guildID) }
	return s, nil
}

// release drops one reference to the guild's connection and reports
// whether it was the last.
func (m *Manager) release(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[guildID] == 0 {
		return false
	}
	m.refs[guildID]--
	if m.refs[guildID] == 0 {
		delete(m.refs, guildID)
		return true
	}
	return false
}

type session struct {
	mu       sync.Mutex
	vc       *discordgo.VoiceConnection
	stream   *dca.StreamingSession
	log      *zap.Logger
	release  func() bool
	released bool
}

// Play encodes the stream URL through dca and starts sending opus
// frames over the voice connection.
func (s *session) Play(ctx context.Context, streamURL string) (queue.Playback, error) {
	options := dca.StdEncodeOptions
	options.RawOutput = true
	options.Bitrate = 96

	encoder, err := dca.EncodeFile(streamURL, options)
	if err != nil {
		return nil, fmt.Errorf("encoding stream: %w", err)
	}

	done := make(chan error)
	s.mu.Lock()
	s.stream = dca.NewStream(encoder, s.vc, done)
	s.mu.Unlock()

	pb := &playback{encoder: encoder, out: make(chan error, 1)}
	go pb.wait(done)
	return pb, nil
}

func (s *session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		s.stream.SetPaused(paused)
	}
}

func (s *session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.stream = nil
	if s.release != nil && !s.release() {
		return nil
	}
	return s.vc.Disconnect()
}

type playback struct {
	encoder *dca.EncodeSession
	out     chan error
}

func (p *playback) Done() <-chan error { return p.out }

// Stop aborts the encode; the dca stream then reports a terminal
// event, which wait forwards.
func (p *playback) Stop() {
	p.encoder.Cleanup()
}

// wait normalizes dca's terminal signal: io.EOF is a natural finish,
// anything else a real error. The encoder is always cleaned up.
func (p *playback) wait(done chan error) {
	err := <-done
	if err == io.EOF {
		err = nil
	}
	p.encoder.Cleanup()
	p.out <- err
	close(p.out)
}
