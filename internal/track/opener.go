package track

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"
)

// Opener resolves a Track into a playable stream URL. Opening is
// effectful (video tracks hit the network) and expensive; the playback
// engine calls it exactly once per play attempt.
type Opener struct {
	yt *youtube.Client
}

func NewOpener() *Opener {
	return &Opener{yt: &youtube.Client{}}
}

// StreamURL returns the URL the transport should encode from. Failures
// wrap ErrSourceUnavailable so callers can recognize a skippable track.
func (o *Opener) StreamURL(ctx context.Context, t Track) (string, error) {
	switch t.Kind {
	case KindVideo:
		return o.videoStreamURL(ctx, t)
	case KindAudio, KindFile:
		return t.SourceID, nil
	default:
		return "", fmt.Errorf("%w: unknown track kind %d", ErrSourceUnavailable, t.Kind)
	}
}

func (o *Opener) videoStreamURL(ctx context.Context, t Track) (string, error) {
	video, err := o.yt.GetVideoContext(ctx, t.SourceID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", fmt.Errorf("%w: no audio formats for %s", ErrSourceUnavailable, t.SourceID)
	}

	url, err := o.yt.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return url, nil
}
