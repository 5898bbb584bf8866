package sources

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	youtubeFeedURL  = "https://www.youtube.com/feeds/videos.xml?playlist_id=%s"
	youtubeWatchURL = "https://www.youtube.com/watch?v=%s"
)

// YouTubePoller reads the Atom feed YouTube publishes for a playlist. The
// feed only carries the most recent entries, so long backlogs are picked up
// over successive sweeps.
type YouTubePoller struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
	feedURL      string
}

func NewYouTubePoller(httpClient *http.Client, userAgent string) *YouTubePoller {
	return &YouTubePoller{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
		feedURL:      youtubeFeedURL,
	}
}

func (p *YouTubePoller) Kind() string {
	return KindYouTubePlaylist
}

func (p *YouTubePoller) Poll(ctx context.Context, sourceID string, since *time.Time) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		data, err := p.fetchFeed(ctx, fmt.Sprintf(p.feedURL, sourceID))
		if err != nil {
			yield(RawItem{}, fmt.Errorf("failed to fetch playlist feed: %w", err))
			return
		}

		feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
		if err != nil {
			yield(RawItem{}, fmt.Errorf("failed to parse playlist feed: %w", err))
			return
		}

		for _, item := range feed.Items {
			raw := p.normalizeItem(item)
			if raw.ID == "" {
				continue
			}
			if since != nil && !raw.PublishedAt.IsZero() && !raw.PublishedAt.After(*since) {
				continue
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

func (p *YouTubePoller) normalizeItem(item *gofeed.Item) RawItem {
	raw := RawItem{
		ID:          videoID(item),
		Title:       item.Title,
		Description: cmp.Or(mediaDescription(item), item.Description),
	}

	if raw.ID != "" {
		raw.URL = cmp.Or(item.Link, fmt.Sprintf(youtubeWatchURL, raw.ID))
	}

	if item.PublishedParsed != nil {
		raw.PublishedAt = *item.PublishedParsed
	}

	return raw
}

// videoID resolves the video id from the yt:videoId extension, falling back
// to the "yt:video:ID" GUID form.
func videoID(item *gofeed.Item) string {
	if exts, ok := item.Extensions["yt"]["videoId"]; ok && len(exts) > 0 {
		return exts[0].Value
	}
	if id, ok := strings.CutPrefix(item.GUID, "yt:video:"); ok {
		return id
	}
	return ""
}

// mediaDescription extracts the full description from the media:group
// extension. The Atom item description is usually truncated.
func mediaDescription(item *gofeed.Item) string {
	groups, ok := item.Extensions["media"]["group"]
	if !ok || len(groups) == 0 {
		return ""
	}
	descs, ok := groups[0].Children["description"]
	if !ok || len(descs) == 0 {
		return ""
	}
	return descs[0].Value
}

func (p *YouTubePoller) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	return data, nil
}
