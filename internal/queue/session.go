package queue

import "context"

// VoiceSession is the live transport connection for one guild. A Queue
// owns at most one; acquiring a new one requires the old one be
// released first.
type VoiceSession interface {
	// Play starts streaming the given URL. The returned Playback
	// reports the attempt's terminal event.
	Play(ctx context.Context, streamURL string) (Playback, error)
	SetPaused(paused bool)
	Disconnect() error
}

// Playback is one in-flight play attempt on a voice session.
type Playback interface {
	// Done delivers the attempt's terminal events. The underlying
	// transport may emit more than one event for a single logical
	// track end; consumers must de-duplicate.
	Done() <-chan error
	// Stop tears the attempt down early (skip, stop). A terminal
	// event still arrives on Done afterwards.
	Stop()
}
