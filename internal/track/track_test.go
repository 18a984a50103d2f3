package track

import (
	"testing"
	"time"
)

func TestConstructors(t *testing.T) {
	v := NewVideo("dQw4w9WgXcQ", "Never Gonna Give You Up", "Rick Astley", "https://i.ytimg.com/x.jpg", 213*time.Second, false, "user1")
	if v.Kind != KindVideo {
		t.Errorf("Expected KindVideo, got %s", v.Kind)
	}
	if v.SourceID != "dQw4w9WgXcQ" || v.Channel != "Rick Astley" {
		t.Errorf("Unexpected video fields: %+v", v)
	}

	a := NewAudio("https://example.com/stream.mp3", "Some Stream", "Someone", 0, "user2")
	if a.Kind != KindAudio || a.Live {
		t.Errorf("Unexpected audio fields: %+v", a)
	}

	f := NewFile("https://cdn.discordapp.com/attachments/1/2/tune.ogg", "tune.ogg", "user3")
	if f.Kind != KindFile || f.Title != "tune.ogg" {
		t.Errorf("Unexpected file fields: %+v", f)
	}
}

func TestLiveVideo(t *testing.T) {
	v := NewVideo("liveid12345", "24/7 lofi", "beats", "", 0, true, "user1")
	if !v.Live {
		t.Error("Expected live flag set")
	}
	if v.Duration != 0 {
		t.Errorf("Expected zero duration for live stream, got %s", v.Duration)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindVideo: "video",
		KindAudio: "audio",
		KindFile:  "file",
		Kind(99):  "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String(): expected %s, got %s", k, want, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                "0:00",
		5 * time.Second:                  "0:05",
		213 * time.Second:                "3:33",
		time.Hour + 2*time.Minute:        "1:02:00",
		time.Hour + 61*time.Second:       "1:01:01",
		90*time.Minute + 30*time.Second:  "1:30:30",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%s): expected %s, got %s", d, want, got)
		}
	}
}
