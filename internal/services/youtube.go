package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/shared"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const defaultMaxResults int64 = 10

// OAuth endpoints for Google accounts
const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// YouTubeOAuthConfig returns the OAuth client config used to refresh stored tokens.
func YouTubeOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{youtube.YoutubeReadonlyScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}
}

// YouTubeOptions selects how the searcher authenticates.
//
// HTTPClient wins over TokenSource, which wins over APIKey.
type YouTubeOptions struct {
	APIKey      string
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	Endpoint    string
	MaxResults  int64
}

// YouTubeSearcher searches a channel's videos through the YouTube Data API.
type YouTubeSearcher struct {
	svc        *youtube.Service
	maxResults int64
}

// NewYouTubeSearcher builds a search client.
func NewYouTubeSearcher(ctx context.Context, opts YouTubeOptions) (*YouTubeSearcher, error) {
	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(opts.TokenSource))
	case opts.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	default:
		return nil, fmt.Errorf("%w: youtube api_key or oauth token", shared.ErrMissingCredentials)
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}
	return &YouTubeSearcher{svc: svc, maxResults: opts.MaxResults}, nil
}

// Name returns the service name.
func (y *YouTubeSearcher) Name() string {
	return "YouTube"
}

// Search returns videos on channelID matching query, in relevance order.
func (y *YouTubeSearcher) Search(ctx context.Context, query, channelID string) ([]models.Candidate, error) {
	call := y.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(y.maxResults)
	if channelID != "" {
		call = call.ChannelId(channelID)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, mapYouTubeError(err)
	}

	candidates := make([]models.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		candidates = append(candidates, models.Candidate{
			VideoID:     item.Id.VideoId,
			Title:       html.UnescapeString(item.Snippet.Title),
			ChannelID:   item.Snippet.ChannelId,
			PublishedAt: item.Snippet.PublishedAt,
		})
	}
	return candidates, nil
}

// mapYouTubeError turns provider quota and throttling responses into sentinel errors.
func mapYouTubeError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("youtube search failed: %w", err)
	}

	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded":
			return fmt.Errorf("%w: %s", shared.ErrQuotaExceeded, gerr.Message)
		case "rateLimitExceeded", "userRateLimitExceeded":
			return fmt.Errorf("%w: %s", shared.ErrRateLimited, gerr.Message)
		}
	}
	if gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", shared.ErrRateLimited, gerr.Message)
	}
	return &StatusError{Service: "youtube", Code: gerr.Code, Detail: gerr.Message}
}
