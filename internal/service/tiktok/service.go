// Package tiktok publishes videos through the TikTok Content Posting API.
package tiktok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL      = "https://open.tiktokapis.com"
	defaultAuthorizeURL = "https://www.tiktok.com/v2/auth/authorize/"
	scopes              = "user.info.basic,video.publish,video.upload"

	// The API accepts chunks between 5MB and 64MB; the last one may hold the
	// remainder.
	maxChunkSize = 64 * 1024 * 1024
)

type Options struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	OpenID       string
	BaseURL      string
	AuthorizeURL string
}

type TikTokService struct {
	api    *platform.APIClient
	opts   Options
	tokens platform.TokenRepository
	logger *zap.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewTikTokService(api *platform.APIClient, opts Options, tokens platform.TokenRepository, logger *zap.Logger) *TikTokService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.AuthorizeURL == "" {
		opts.AuthorizeURL = defaultAuthorizeURL
	}
	return &TikTokService{
		api:    api,
		opts:   opts,
		tokens: tokens,
		logger: logger,
	}
}

func (ts *TikTokService) Platform() domain.Platform {
	return domain.PlatformTikTok
}

func (ts *TikTokService) AccountID() string {
	return ts.opts.OpenID
}

func (ts *TikTokService) AuthURL(state string) string {
	query := url.Values{
		"client_key":    {ts.opts.ClientKey},
		"scope":         {scopes},
		"redirect_uri":  {ts.opts.RedirectURI},
		"state":         {state},
		"response_type": {"code"},
	}
	return ts.opts.AuthorizeURL + "?" + query.Encode()
}

// Exchange trades an authorization code for tokens and stores them under the
// returned open_id.
func (ts *TikTokService) Exchange(ctx context.Context, code string) error {
	token, openID, err := ts.requestToken(ctx, url.Values{
		"client_key":    {ts.opts.ClientKey},
		"client_secret": {ts.opts.ClientSecret},
		"code":          {strings.TrimSpace(code)},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {ts.opts.RedirectURI},
	})
	if err != nil {
		return err
	}

	if ts.opts.OpenID != "" && openID != "" && openID != ts.opts.OpenID {
		ts.logger.Warn("Authorized TikTok account differs from configured one",
			zap.String("configured", ts.opts.OpenID),
			zap.String("authorized", openID))
	}
	account := ts.opts.OpenID
	if account == "" {
		account = openID
	}

	if err := platform.SaveToken(ctx, ts.tokens, domain.PlatformTikTok, account, token); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}

	ts.mu.Lock()
	ts.source = nil
	ts.mu.Unlock()

	ts.logger.Info("TikTok authorization complete", zap.String("open_id", account))
	return nil
}

func (ts *TikTokService) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.source != nil {
		return ts.source, nil
	}

	token, err := platform.LoadToken(ctx, ts.tokens, domain.PlatformTikTok, ts.opts.OpenID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("TikTok account %q is not authorized, run the authorize command", ts.opts.OpenID)
	}

	refresher := &refreshSource{service: ts, refreshToken: token.RefreshToken}
	ts.source = platform.NewPersistingTokenSource(refresher, ts.tokens, domain.PlatformTikTok, ts.opts.OpenID, token, ts.logger)
	return ts.source, nil
}

// refreshSource uses TikTok's token endpoint, which expects client_key
// rather than the client_id oauth2.Config would send.
type refreshSource struct {
	service      *TikTokService
	mu           sync.Mutex
	refreshToken string
}

func (r *refreshSource) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.APIConfig.HTTPTimeout)
	defer cancel()

	token, _, err := r.service.requestToken(ctx, url.Values{
		"client_key":    {r.service.opts.ClientKey},
		"client_secret": {r.service.opts.ClientSecret},
		"refresh_token": {r.refreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = r.refreshToken
	}
	r.refreshToken = token.RefreshToken
	return token, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	OpenID           string `json:"open_id"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (ts *TikTokService) requestToken(ctx context.Context, form url.Values) (*oauth2.Token, string, error) {
	req := platform.Request{
		Method: http.MethodPost,
		URL:    ts.opts.BaseURL + "/v2/oauth/token/",
		Header: http.Header{},
		Body:   []byte(form.Encode()),
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	var resp tokenResponse
	if err := ts.api.DoJSON(ctx, req, &resp); err != nil {
		return nil, "", fmt.Errorf("TikTok token request failed: %w", err)
	}
	if resp.Error != "" || resp.AccessToken == "" {
		return nil, "", fmt.Errorf("TikTok token request rejected: %s %s", resp.Error, resp.ErrorDescription)
	}

	token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: resp.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	return token, resp.OpenID, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e apiError) err(operation string) error {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	return fmt.Errorf("TikTok %s failed: %s (%s, log_id=%s)", operation, e.Code, e.Message, e.LogID)
}

type CreatorInfo struct {
	Username             string   `json:"creator_username"`
	Nickname             string   `json:"creator_nickname"`
	PrivacyLevelOptions  []string `json:"privacy_level_options"`
	MaxVideoPostDuration int      `json:"max_video_post_duration_sec"`
	CommentDisabled      bool     `json:"comment_disabled"`
	DuetDisabled         bool     `json:"duet_disabled"`
	StitchDisabled       bool     `json:"stitch_disabled"`
}

func (ts *TikTokService) authorizedRequest(ctx context.Context, method, path string, payload any) (platform.Request, error) {
	source, err := ts.tokenSource(ctx)
	if err != nil {
		return platform.Request{}, err
	}
	token, err := source.Token()
	if err != nil {
		return platform.Request{}, fmt.Errorf("TikTok token refresh failed: %w", err)
	}

	req, err := platform.JSONRequest(method, ts.opts.BaseURL+path, payload)
	if err != nil {
		return platform.Request{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return req, nil
}

func (ts *TikTokService) QueryCreatorInfo(ctx context.Context) (*CreatorInfo, error) {
	req, err := ts.authorizedRequest(ctx, http.MethodPost, "/v2/post/publish/creator_info/query/", struct{}{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data  CreatorInfo `json:"data"`
		Error apiError    `json:"error"`
	}
	if err := ts.api.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.err("creator info query"); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

type sourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int64  `json:"total_chunk_count"`
}

// chunkPlan splits size into chunks of at most maxChunkSize; the final chunk
// absorbs the remainder.
func chunkPlan(size int64) (chunkSize int64, count int64) {
	if size <= maxChunkSize {
		return size, 1
	}
	return maxChunkSize, size / maxChunkSize
}

// Publish sends the video to the creator's inbox as a draft and returns the
// publish id.
func (ts *TikTokService) Publish(ctx context.Context, artifact platform.Artifact) (string, error) {
	creator, err := ts.QueryCreatorInfo(ctx)
	if err != nil {
		return "", err
	}
	ts.logger.Debug("TikTok creator info",
		zap.String("username", creator.Username),
		zap.Int("max_duration", creator.MaxVideoPostDuration))

	file, err := os.Open(artifact.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat video file: %w", err)
	}
	size := stat.Size()
	if size == 0 {
		return "", fmt.Errorf("video file %s is empty", artifact.FilePath)
	}
	chunkSize, count := chunkPlan(size)

	req, err := ts.authorizedRequest(ctx, http.MethodPost, "/v2/post/publish/inbox/video/init/", map[string]any{
		"source_info": sourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       chunkSize,
			TotalChunkCount: count,
		},
	})
	if err != nil {
		return "", err
	}

	var initResp struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	if err := ts.api.DoJSON(ctx, req, &initResp); err != nil {
		return "", err
	}
	if err := initResp.Error.err("video init"); err != nil {
		return "", err
	}
	if initResp.Data.UploadURL == "" {
		return "", fmt.Errorf("TikTok video init returned no upload url")
	}

	if err := ts.uploadChunks(ctx, file, initResp.Data.UploadURL, size, chunkSize, count); err != nil {
		return "", err
	}

	publishID := initResp.Data.PublishID
	ts.logger.Info("Video uploaded to TikTok",
		zap.String("publish_id", publishID),
		zap.Int64("bytes", size),
		zap.Int64("chunks", count))

	if status, err := ts.FetchStatus(ctx, publishID); err != nil {
		ts.logger.Warn("Failed to fetch TikTok publish status", zap.String("publish_id", publishID), zap.Error(err))
	} else {
		ts.logger.Info("TikTok publish status", zap.String("publish_id", publishID), zap.String("status", status))
	}

	return publishID, nil
}

func (ts *TikTokService) uploadChunks(ctx context.Context, r io.Reader, uploadURL string, size, chunkSize, count int64) error {
	var first int64
	for i := int64(0); i < count; i++ {
		length := chunkSize
		if i == count-1 {
			length = size - first
		}

		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("failed to read chunk %d: %w", i, err)
		}

		last := first + length - 1
		req := platform.Request{
			Method: http.MethodPut,
			URL:    uploadURL,
			Header: http.Header{},
			Body:   buf,
		}
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, size))

		if _, err := ts.api.Do(ctx, req); err != nil {
			return fmt.Errorf("failed to upload chunk %d: %w", i, err)
		}
		first = last + 1
	}
	return nil
}

func (ts *TikTokService) FetchStatus(ctx context.Context, publishID string) (string, error) {
	req, err := ts.authorizedRequest(ctx, http.MethodPost, "/v2/post/publish/status/fetch/", map[string]string{
		"publish_id": publishID,
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
		Error apiError `json:"error"`
	}
	if err := ts.api.DoJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if err := resp.Error.err("status fetch"); err != nil {
		return "", err
	}
	return resp.Data.Status, nil
}
