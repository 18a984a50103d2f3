package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/bot"
	"github.com/doomhound188/wavehound/internal/config"
	"github.com/doomhound188/wavehound/internal/logger"
)

func main() {
	cfg := config.Load()

	// Flags override the environment.
	discordToken := flag.String("discord", cfg.DiscordToken, "Discord bot token")
	youtubeKey := flag.String("youtube", cfg.YouTubeAPIKey, "YouTube Data API key")
	prefix := flag.String("prefix", cfg.CommandPrefix, "Command prefix")
	flag.Parse()
	cfg.DiscordToken = *discordToken
	cfg.YouTubeAPIKey = *youtubeKey
	cfg.CommandPrefix = *prefix

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
	})
	defer logger.Sync()
	log := logger.L()

	if cfg.DiscordToken == "" {
		log.Fatal("Discord token is required. Set it via -discord flag or DISCORD_TOKEN environment variable")
	}

	discordBot, err := bot.New(cfg, log.Named("bot"))
	if err != nil {
		log.Fatal("failed to create bot", zap.Error(err))
	}

	if err := discordBot.Start(); err != nil {
		log.Fatal("failed to start bot", zap.Error(err))
	}
	log.Info("bot is now running, press CTRL-C to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info("shutting down")
	if err := discordBot.Close(); err != nil {
		log.Warn("error while shutting down", zap.Error(err))
	}
}
