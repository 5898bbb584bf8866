package sources

import (
	"context"
	"iter"
	"time"
)

// Source kinds supported by the pollers.
const (
	KindYouTubePlaylist = "youtube_playlist"
	KindInstagramLikes  = "instagram_likes"
)

// RawItem is a single item descriptor yielded by a source poller. URL is the
// canonical page for the media, in whatever form the source publishes it.
type RawItem struct {
	ID          string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
}

// Poller produces item descriptors for a source since a checkpoint. A poll
// is finite and safely re-runnable over the same window: overlapping items
// are deduplicated downstream by id.
type Poller interface {
	Kind() string
	Poll(ctx context.Context, sourceID string, since *time.Time) iter.Seq2[RawItem, error]
}

// Config describes a single configured source.
type Config struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`
	// CheckInterval overrides the global sweep interval, in seconds.
	CheckInterval int `yaml:"check_interval"`
	// URL overrides the feed URL derived from the source id.
	URL string `yaml:"url"`
}
