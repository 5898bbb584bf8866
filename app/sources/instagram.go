package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"time"
)

const (
	instagramLikedURL = "https://www.instagram.com/api/v1/feed/liked/?max_id=%s"
	instagramPostURL  = "https://www.instagram.com/p/%s/"
)

// InstagramPoller walks the liked-media feed of the authenticated account.
// Authentication comes from a credential chain resolved per poll, so an
// expired cookie file falls through to the persisted session or a login.
type InstagramPoller struct {
	httpClient  *http.Client
	credentials *CredentialChain
	userAgent   string
	baseURL     string
}

func NewInstagramPoller(httpClient *http.Client, credentials *CredentialChain, userAgent string) *InstagramPoller {
	return &InstagramPoller{
		httpClient:  httpClient,
		credentials: credentials,
		userAgent:   userAgent,
		baseURL:     instagramLikedURL,
	}
}

func (p *InstagramPoller) Kind() string {
	return KindInstagramLikes
}

type instagramMedia struct {
	PK      json.Number `json:"pk"`
	Code    string      `json:"code"`
	TakenAt int64       `json:"taken_at"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
}

type instagramFeedPage struct {
	Items         []instagramMedia `json:"items"`
	MoreAvailable bool             `json:"more_available"`
	NextMaxID     json.Number      `json:"next_max_id"`
	Status        string           `json:"status"`
}

func (p *InstagramPoller) Poll(ctx context.Context, _ string, since *time.Time) iter.Seq2[RawItem, error] {
	return func(yield func(RawItem, error) bool) {
		token, err := p.credentials.Token(ctx)
		if err != nil {
			yield(RawItem{}, fmt.Errorf("failed to resolve credentials: %w", err))
			return
		}

		maxID := ""
		for {
			page, err := p.fetchPage(ctx, token, maxID)
			if err != nil {
				yield(RawItem{}, err)
				return
			}

			for _, media := range page.Items {
				takenAt := time.Unix(media.TakenAt, 0).UTC()
				if since != nil && !takenAt.After(*since) {
					// The feed is newest first. Everything past the
					// checkpoint is already known.
					return
				}

				raw := RawItem{
					ID:          media.PK.String(),
					Title:       media.Code,
					PublishedAt: takenAt,
				}
				if media.Code != "" {
					raw.URL = fmt.Sprintf(instagramPostURL, media.Code)
				}
				if media.Caption != nil {
					raw.Description = media.Caption.Text
				}

				if !yield(raw, nil) {
					return
				}
			}

			if !page.MoreAvailable || page.NextMaxID.String() == "" {
				return
			}
			maxID = page.NextMaxID.String()
		}
	}
}

func (p *InstagramPoller) fetchPage(ctx context.Context, token, maxID string) (*instagramFeedPage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf(p.baseURL, maxID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: token})

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch liked feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	var page instagramFeedPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse feed page: %w", err)
	}
	if page.Status != "" && page.Status != "ok" {
		return nil, fmt.Errorf("feed API returned status %s", strconv.Quote(page.Status))
	}

	return &page, nil
}
