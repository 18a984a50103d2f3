package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/config"
	"github.com/doomhound188/wavehound/internal/player"
	"github.com/doomhound188/wavehound/internal/queue"
	"github.com/doomhound188/wavehound/internal/resolver"
	"github.com/doomhound188/wavehound/internal/track"
	"github.com/doomhound188/wavehound/internal/voice"
)

const resolveTimeout = 15 * time.Second

type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	queues   *queue.Registry
	engine   *player.Engine
	present  *player.Presenter
	resolver *resolver.Resolver
	log      *zap.Logger

	mu          sync.Mutex
	voiceStates map[string]string // guildID:userID -> channelID
}

func New(cfg *config.Config, log *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	notify := &discordNotifier{session: session}
	present := player.NewPresenter(notify, log.Named("presenter"))
	engine := player.NewEngine(
		voice.NewManager(session, log.Named("voice")),
		track.NewOpener(),
		notify,
		present,
		log.Named("engine"),
	)

	b := &Bot{
		session:     session,
		cfg:         cfg,
		queues:      queue.NewRegistry(),
		engine:      engine,
		present:     present,
		resolver:    resolver.New(cfg.YouTubeAPIKey, cfg.ResolveCacheSize, cfg.ResolveCacheTTL, log.Named("resolver")),
		log:         log,
		voiceStates: make(map[string]string),
	}

	session.AddHandler(b.readyHandler)
	session.AddHandler(b.messageHandler)
	session.AddHandler(b.voiceStateUpdateHandler)
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	return b, nil
}

func (b *Bot) Start() error {
	return b.session.Open()
}

func (b *Bot) Close() error {
	for _, q := range b.queues.All() {
		if q.IsPlaying() {
			b.engine.Stop(q, false)
		}
	}
	b.present.Close()
	return b.session.Close()
}

func (b *Bot) readyHandler(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("bot ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))

	// Seed voice state tracking from the guild payloads so commands
	// issued before any voice event still find the user's channel.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, guild := range r.Guilds {
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID != "" {
				b.voiceStates[vs.GuildID+":"+vs.UserID] = vs.ChannelID
			}
		}
	}
}

func (b *Bot) voiceStateUpdateHandler(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	key := vsu.GuildID + ":" + vsu.UserID
	b.mu.Lock()
	if vsu.ChannelID == "" {
		delete(b.voiceStates, key)
	} else {
		b.voiceStates[key] = vsu.ChannelID
	}
	b.mu.Unlock()

	q, ok := b.queues.Get(vsu.GuildID)
	if !ok || !q.IsPlaying() {
		return
	}

	// The bot itself was removed from the channel: involuntary stop.
	if s.State.User != nil && vsu.UserID == s.State.User.ID && vsu.ChannelID == "" {
		b.engine.Stop(q, true)
		return
	}

	// Empty-channel auto-leave: nobody left listening.
	if b.listeners(vsu.GuildID, q.VoiceChannelID(), s) == 0 {
		b.log.Info("voice channel empty, leaving", zap.String("guild", vsu.GuildID))
		b.engine.Stop(q, false)
	}
}

// listeners counts non-bot users in the given voice channel.
func (b *Bot) listeners(guildID, channelID string, s *discordgo.Session) int {
	if channelID == "" {
		return 0
	}
	var botID string
	if s.State.User != nil {
		botID = s.State.User.ID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for key, ch := range b.voiceStates {
		if ch != channelID || !strings.HasPrefix(key, guildID+":") {
			continue
		}
		if userID := strings.TrimPrefix(key, guildID+":"); userID != botID {
			count++
		}
	}
	return count
}

func (b *Bot) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if !strings.HasPrefix(m.Content, b.cfg.CommandPrefix) {
		return
	}

	parts := strings.Fields(strings.TrimPrefix(m.Content, b.cfg.CommandPrefix))
	if len(parts) == 0 {
		return
	}

	response, err := b.HandleCommand(parts[0], parts[1:], m)
	if err != nil {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Error: %s", err))
		return
	}
	if response != "" {
		s.ChannelMessageSend(m.ChannelID, response)
	}
}

func (b *Bot) HandleCommand(command string, args []string, m *discordgo.MessageCreate) (string, error) {
	switch strings.ToLower(command) {
	case "play":
		return b.handlePlay(args, m)
	case "pause":
		return b.handlePause(m.GuildID)
	case "resume":
		return b.handleResume(m.GuildID)
	case "stop":
		return b.handleStop(m.GuildID)
	case "skip":
		return b.handleSkip(m.GuildID)
	case "queue":
		return b.handleQueue(m.GuildID)
	case "remove":
		return b.handleRemove(args, m.GuildID)
	case "clear":
		return b.handleClear(args, m.GuildID)
	case "shuffle":
		return b.handleShuffle(m.GuildID)
	case "loop":
		return b.handleLoop(args, m.GuildID)
	case "np":
		return b.handleNowPlaying(m)
	case "help":
		return b.handleHelp(), nil
	default:
		return "", errors.New("unknown command. Type " + b.cfg.CommandPrefix + "help for available commands")
	}
}

func (b *Bot) handlePlay(args []string, m *discordgo.MessageCreate) (string, error) {
	if m.GuildID == "" {
		return "", errors.New("this command can only be used in a server")
	}

	voiceChannelID := b.userVoiceChannel(m.GuildID, m.Author.ID)
	if voiceChannelID == "" {
		return "", errors.New("you must be in a voice channel to play music")
	}

	var (
		t   track.Track
		err error
	)
	switch {
	case len(args) == 0 && len(m.Attachments) > 0:
		t = b.resolver.ResolveAttachment(m.Attachments[0], m.Author.ID)
	case len(args) == 0:
		return "", errors.New("provide a search query, a URL, or attach a file")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		t, err = b.resolver.Resolve(ctx, strings.Join(args, " "), m.Author.ID)
		if err != nil {
			return "", err
		}
	}

	q := b.queues.GetOrCreate(m.GuildID)
	q.SetChannels(voiceChannelID, m.ChannelID)
	length := q.Push(t)

	if !q.IsPlaying() {
		go b.engine.PlayNext(context.Background(), q)
		return fmt.Sprintf("Playing **%s**", t.Title), nil
	}
	return fmt.Sprintf("Queued **%s** (position %d)", t.Title, length), nil
}

func (b *Bot) handlePause(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNotPlaying
	}
	if err := b.engine.Pause(q); err != nil {
		return "", err
	}
	return "Playback paused", nil
}

func (b *Bot) handleResume(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNotPlaying
	}
	if err := b.engine.Resume(q); err != nil {
		return "", err
	}
	return "Playback resumed", nil
}

func (b *Bot) handleStop(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok || !q.IsPlaying() {
		return "", queue.ErrNotPlaying
	}
	b.engine.Stop(q, false)
	return "Playback stopped and queue cleared", nil
}

func (b *Bot) handleSkip(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNotPlaying
	}
	if err := b.engine.Skip(context.Background(), q); err != nil {
		return "", err
	}
	return "Skipped", nil
}

func (b *Bot) handleQueue(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok || q.Len() == 0 {
		return "Queue is empty", nil
	}

	tracks := q.Tracks()
	cursor := q.Cursor()
	lines := lo.Map(tracks, func(t track.Track, i int) string {
		marker := "  "
		if i == cursor && q.IsPlaying() {
			marker = "▶ "
		}
		length := track.FormatDuration(t.Duration)
		if t.Live {
			length = "LIVE"
		}
		return fmt.Sprintf("%s%d. %s [%s]", marker, i+1, t.Title, length)
	})

	var sb strings.Builder
	sb.WriteString("Current queue:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	if total := q.TotalLength(); total == queue.LiveDuration {
		sb.WriteString("\nTotal: LIVE")
	} else if total > 0 {
		sb.WriteString("\nTotal: " + track.FormatDuration(total))
	}
	return sb.String(), nil
}

func (b *Bot) handleRemove(args []string, guildID string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("provide a track number or range, e.g. 3 or 2-5")
	}
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNothingQueued
	}

	start, end, err := parseRange(args[0])
	if err != nil {
		return "", err
	}
	count, err := q.RemoveRange(start, end)
	if err != nil {
		return "", err
	}
	if count == 1 {
		return fmt.Sprintf("Removed track %d", start), nil
	}
	return fmt.Sprintf("Removed %d tracks", count), nil
}

func (b *Bot) handleClear(args []string, guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNothingQueued
	}
	keepCurrent := !(len(args) > 0 && strings.EqualFold(args[0], "all"))
	q.Clear(keepCurrent)
	if keepCurrent && q.IsPlaying() {
		return "Cleared the queue; current track keeps playing", nil
	}
	return "Queue cleared", nil
}

func (b *Bot) handleShuffle(guildID string) (string, error) {
	q, ok := b.queues.Get(guildID)
	if !ok {
		return "", queue.ErrNothingQueued
	}
	if err := q.Shuffle(); err != nil {
		return "", err
	}
	return "Queue shuffled", nil
}

func (b *Bot) handleLoop(args []string, guildID string) (string, error) {
	q := b.queues.GetOrCreate(guildID)
	if len(args) == 0 {
		return fmt.Sprintf("Loop mode: %s", q.Loop()), nil
	}
	switch strings.ToLower(args[0]) {
	case "none", "off":
		q.SetLoop(queue.LoopNone)
	case "one", "track":
		q.SetLoop(queue.LoopOne)
	case "all", "queue":
		q.SetLoop(queue.LoopAll)
	default:
		return "", errors.New("loop mode must be one of: none, one, all")
	}
	return fmt.Sprintf("Loop mode set to %s", q.Loop()), nil
}

func (b *Bot) handleNowPlaying(m *discordgo.MessageCreate) (string, error) {
	q, ok := b.queues.Get(m.GuildID)
	if !ok || !q.IsPlaying() {
		return "", queue.ErrNotPlaying
	}
	// Move the status display to the channel that asked.
	q.SetChannels(q.VoiceChannelID(), m.ChannelID)
	b.present.Notify(q)
	return "", nil
}

func (b *Bot) handleHelp() string {
	p := b.cfg.CommandPrefix
	return "**wavehound commands:**\n" +
		p + "play <query|url> - queue a track (or attach a file)\n" +
		p + "pause / " + p + "resume - pause or resume playback\n" +
		p + "skip - skip the current track\n" +
		p + "stop - stop playback and clear the queue\n" +
		p + "queue - show the queue\n" +
		p + "remove <n|a-b> - remove a track or range\n" +
		p + "clear [all] - clear queued tracks (all includes the current one)\n" +
		p + "shuffle - shuffle the queue\n" +
		p + "loop <none|one|all> - set loop mode\n" +
		p + "np - show the now-playing display here"
}

// userVoiceChannel finds which voice channel a user occupies, checking
// our own tracking before falling back to the gateway state cache.
func (b *Bot) userVoiceChannel(guildID, userID string) string {
	b.mu.Lock()
	if ch, ok := b.voiceStates[guildID+":"+userID]; ok {
		b.mu.Unlock()
		return ch
	}
	b.mu.Unlock()

	if vs, err := b.session.State.VoiceState(guildID, userID); err == nil && vs != nil {
		return vs.ChannelID
	}
	return ""
}

// parseRange parses "3" or "2-5" into a 1-based inclusive range.
func parseRange(arg string) (start, end int, err error) {
	if a, b, found := strings.Cut(arg, "-"); found {
		start, err = strconv.Atoi(a)
		if err != nil {
			return 0, 0, queue.ErrInvalidRange
		}
		end, err = strconv.Atoi(b)
		if err != nil {
			return 0, 0, queue.ErrInvalidRange
		}
		return start, end, nil
	}
	start, err = strconv.Atoi(arg)
	if err != nil {
		return 0, 0, queue.ErrInvalidRange
	}
	return start, start, nil
}

// discordNotifier adapts the gateway session to player.Notifier.
type discordNotifier struct {
	session *discordgo.Session
}

func (n *discordNotifier) Send(channelID, content string) (string, error) {
	msg, err := n.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (n *discordNotifier) Edit(channelID, messageID, content string) error {
	_, err := n.session.ChannelMessageEdit(channelID, messageID, content)
	return err
}
