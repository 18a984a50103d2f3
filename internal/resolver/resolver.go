package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/doomhound188/wavehound/internal/track"
)

var (
	ErrNotFound = errors.New("no results for query")
	ErrNoAPIKey = errors.New("text search requires a YouTube API key")
)

const searchEndpoint = "https://www.googleapis.com/youtube/v3/search"

// Resolver turns a user-supplied query into a Track: a YouTube URL or
// ID becomes a video track, any other URL a direct audio track, and
// plain text goes through YouTube search. Resolved metadata is cached
// with an explicit TTL so repeated queries skip the network.
type Resolver struct {
	apiKey string
	client *http.Client
	yt     *youtube.Client
	cache  *expirable.LRU[string, track.Track]
	log    *zap.Logger
}

func New(apiKey string, cacheSize int, cacheTTL time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		yt:     &youtube.Client{},
		cache:  expirable.NewLRU[string, track.Track](cacheSize, nil, cacheTTL),
		log:    log,
	}
}

// Resolve maps a query to a Track for the given requester.
func (r *Resolver) Resolve(ctx context.Context, query, requesterID string) (track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Track{}, ErrNotFound
	}

	key := strings.ToLower(query)
	if cached, ok := r.cache.Get(key); ok {
		cached.RequesterID = requesterID
		return cached, nil
	}

	var (
		t   track.Track
		err error
	)
	switch {
	case extractVideoID(query) != "":
		t, err = r.resolveVideo(ctx, extractVideoID(query), requesterID)
	case isURL(query):
		t = track.NewAudio(query, titleFromURL(query), "", 0, requesterID)
	default:
		t, err = r.search(ctx, query, requesterID)
	}
	if err != nil {
		return track.Track{}, err
	}

	cached := t
	cached.RequesterID = ""
	r.cache.Add(key, cached)
	return t, nil
}

// ResolveAttachment wraps an uploaded file as a track. Never fails:
// the attachment already exists on the CDN.
func (r *Resolver) ResolveAttachment(att *discordgo.MessageAttachment, requesterID string) track.Track {
	return track.NewFile(att.URL, att.Filename, requesterID)
}

func (r *Resolver) resolveVideo(ctx context.Context, videoID, requesterID string) (track.Track, error) {
	video, err := r.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return track.Track{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var cover string
	if len(video.Thumbnails) > 0 {
		cover = video.Thumbnails[0].URL
	}
	// Live broadcasts report a zero duration.
	live := video.Duration == 0
	return track.NewVideo(video.ID, video.Title, video.Author, cover, video.Duration, live, requesterID), nil
}

// YouTube Data API search response, trimmed to what we read.
type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

func (r *Resolver) search(ctx context.Context, query, requesterID string) (track.Track, error) {
	if r.apiKey == "" {
		return track.Track{}, ErrNoAPIKey
	}

	endpoint := fmt.Sprintf("%s?part=snippet&q=%s&type=video&key=%s&maxResults=1",
		searchEndpoint, url.QueryEscape(query), r.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return track.Track{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return track.Track{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return track.Track{}, fmt.Errorf("%w: search returned %d", ErrNotFound, resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return track.Track{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if len(parsed.Items) == 0 || parsed.Items[0].ID.VideoID == "" {
		return track.Track{}, ErrNotFound
	}

	return r.resolveVideo(ctx, parsed.Items[0].ID.VideoID, requesterID)
}

// extractVideoID pulls a video ID out of the common YouTube URL shapes
// or a bare 11-character ID. Empty when the query is not one of those.
func extractVideoID(query string) string {
	if len(query) == 11 && !strings.ContainsAny(query, "/ .") {
		return query
	}
	u, err := url.Parse(query)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		return u.Query().Get("v")
	case "youtu.be":
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

func isURL(query string) bool {
	return strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://")
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	return path.Base(u.Path)
}
