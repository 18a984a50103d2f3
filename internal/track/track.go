package track

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the three playable source kinds. Dispatch on it is
// an exhaustive switch; adding a kind means touching every switch.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// ErrSourceUnavailable marks a track whose stream could not be opened
// (deleted video, private source, network failure).
var ErrSourceUnavailable = errors.New("track source unavailable")

// Track is one queueable media item. It never mutates after
// construction; queue operations move values around, never edit them.
//
// SourceID holds the variant-specific source: a YouTube video ID for
// KindVideo, a direct stream URL for KindAudio, an attachment URL for
// KindFile.
type Track struct {
	Kind        Kind
	RequesterID string
	Title       string
	Duration    time.Duration // zero permitted for live streams
	Live        bool          // video only
	SourceID    string
	Channel     string // uploader / artist attribution
	CoverURL    string
}

// NewVideo builds a video track from already-resolved metadata.
// Construction never fails; validation happened at resolution time.
func NewVideo(videoID, title, channel, coverURL string, duration time.Duration, live bool, requesterID string) Track {
	return Track{
		Kind:        KindVideo,
		RequesterID: requesterID,
		Title:       title,
		Duration:    duration,
		Live:        live,
		SourceID:    videoID,
		Channel:     channel,
		CoverURL:    coverURL,
	}
}

// NewAudio builds a track for a direct audio stream URL.
func NewAudio(url, title, artist string, duration time.Duration, requesterID string) Track {
	return Track{
		Kind:        KindAudio,
		RequesterID: requesterID,
		Title:       title,
		Duration:    duration,
		SourceID:    url,
		Channel:     artist,
	}
}

// NewFile builds a track for an uploaded file attachment.
func NewFile(url, filename, requesterID string) Track {
	return Track{
		Kind:        KindFile,
		RequesterID: requesterID,
		Title:       filename,
		SourceID:    url,
	}
}

// FormatDuration renders a duration as m:ss (or h:mm:ss above an hour)
// for queue listings and the now-playing display.
func FormatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
