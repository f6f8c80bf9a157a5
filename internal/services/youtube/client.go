// Package youtube wraps the YouTube Data API for Shorts upload and metric
// collection. Each channel authenticates with its own OAuth refresh token;
// the client credentials come from the environment.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"

	"shortreel/internal/services"
)

// CollaboratorName keys the circuit breaker for publish and analytics.
const CollaboratorName = "youtube"

const (
	envClientID     = "SHORTREEL_YT_CLIENT_ID"
	envClientSecret = "SHORTREEL_YT_CLIENT_SECRET"
)

// shortsCategoryID is "People & Blogs", the conventional default for
// generated Shorts.
const shortsCategoryID = "22"

// Client talks to the YouTube Data API on behalf of one channel.
type Client struct {
	svc *youtubeapi.Service
}

// NewClient builds a client from the channel's stored OAuth token. The
// token file holds a JSON oauth2.Token with at least a refresh token.
func NewClient(ctx context.Context, tokenFile string) (*Client, error) {
	clientID := strings.TrimSpace(os.Getenv(envClientID))
	clientSecret := strings.TrimSpace(os.Getenv(envClientSecret))
	if clientID == "" || clientSecret == "" {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "auth",
			envClientID+" and "+envClientSecret+" must be set", nil)
	}
	if strings.TrimSpace(tokenFile) == "" {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "auth",
			"channel has no oauth_token_file configured", nil)
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "auth",
			"read oauth token file", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "auth",
			"parse oauth token file", err)
	}
	if token.RefreshToken == "" {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "auth",
			"oauth token file has no refresh token", nil)
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtubeapi.YoutubeUploadScope, youtubeapi.YoutubeReadonlyScope},
	}
	svc, err := youtubeapi.NewService(ctx,
		option.WithTokenSource(conf.TokenSource(ctx, &token)))
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, CollaboratorName, "auth",
			"build youtube service", err)
	}
	return &Client{svc: svc}, nil
}

// UploadRequest describes one Shorts upload.
type UploadRequest struct {
	VideoPath   string
	Title       string
	Description string
	Tags        []string
}

// Upload publishes the video and returns its id and watch URL.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, string, error) {
	if req.VideoPath == "" || req.Title == "" {
		return "", "", services.Wrap(services.ErrValidation, CollaboratorName, "upload",
			"video path and title are required", nil)
	}

	file, err := os.Open(req.VideoPath)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, CollaboratorName, "upload",
			"open rendered video", err)
	}
	defer file.Close()

	video := &youtubeapi.Video{
		Snippet: &youtubeapi.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  shortsCategoryID,
		},
		Status: &youtubeapi.VideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}

	call := c.svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(file)
	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", "", classifyAPIError("upload", err)
	}

	url := fmt.Sprintf("https://www.youtube.com/shorts/%s", uploaded.Id)
	return uploaded.Id, url, nil
}

// Stats holds raw counters for one published video.
type Stats struct {
	Views       int64
	Likes       int64
	Comments    int64
	DurationSec float64
}

// FetchStats reads current statistics for a video. A video the API cannot
// find yet classifies retryable, since freshly published Shorts can lag in
// the reporting surfaces.
func (c *Client) FetchStats(ctx context.Context, videoID string) (Stats, error) {
	if videoID == "" {
		return Stats{}, services.Wrap(services.ErrValidation, CollaboratorName, "stats",
			"video id is required", nil)
	}

	resp, err := c.svc.Videos.List([]string{"statistics", "contentDetails"}).
		Id(videoID).Context(ctx).Do()
	if err != nil {
		return Stats{}, classifyAPIError("stats", err)
	}
	if len(resp.Items) == 0 {
		return Stats{}, services.Wrap(services.ErrTransient, CollaboratorName, "stats",
			"video not visible in reporting yet", nil)
	}

	item := resp.Items[0]
	stats := Stats{}
	if item.Statistics != nil {
		stats.Views = int64(item.Statistics.ViewCount)
		stats.Likes = int64(item.Statistics.LikeCount)
		stats.Comments = int64(item.Statistics.CommentCount)
	}
	if item.ContentDetails != nil {
		stats.DurationSec = parseISODuration(item.ContentDetails.Duration)
	}
	return stats, nil
}

func classifyAPIError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := fmt.Sprintf("http %d: %s", apiErr.Code, apiErr.Message)
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return services.Wrap(services.ErrAuth, CollaboratorName, operation, message, err)
		case apiErr.Code == http.StatusForbidden:
			if hasReason(apiErr, "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded") {
				return services.Wrap(services.ErrRateLimited, CollaboratorName, operation, message, err)
			}
			return services.Wrap(services.ErrAuth, CollaboratorName, operation, message, err)
		case apiErr.Code == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, CollaboratorName, operation, message, err)
		case apiErr.Code == http.StatusTooManyRequests:
			return services.Wrap(services.ErrRateLimited, CollaboratorName, operation, message, err)
		case apiErr.Code >= http.StatusInternalServerError:
			return services.Wrap(services.ErrUnavailable, CollaboratorName, operation, message, err)
		default:
			return services.Wrap(services.ErrValidation, CollaboratorName, operation, message, err)
		}
	}
	return services.Wrap(services.ErrUnavailable, CollaboratorName, operation,
		"request failed", err)
}

func hasReason(err *googleapi.Error, reasons ...string) bool {
	for _, item := range err.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
