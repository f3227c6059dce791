// Package instagram publishes reels through the Instagram Graph API.
package instagram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kapu/top-music-bot-go/internal/constants"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
)

const (
	defaultGraphURL  = "https://graph.facebook.com/v21.0"
	defaultUploadURL = "https://rupload.facebook.com/ig-api-upload/v21.0"
)

// Container status codes reported by the Graph API.
const (
	statusFinished   = "FINISHED"
	statusInProgress = "IN_PROGRESS"
	statusError      = "ERROR"
	statusExpired    = "EXPIRED"
)

type Options struct {
	AccessToken  string
	UserID       string
	GraphURL     string
	UploadURL    string
	PollInterval time.Duration
	PollAttempts int
}

type InstagramService struct {
	api    *platform.APIClient
	opts   Options
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewInstagramService(api *platform.APIClient, opts Options, logger *zap.Logger) *InstagramService {
	if opts.GraphURL == "" {
		opts.GraphURL = defaultGraphURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = defaultUploadURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.APIConfig.StatusPollInterval
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = constants.APIConfig.StatusPollAttempts
	}
	return &InstagramService{
		api:    api,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (is *InstagramService) Platform() domain.Platform {
	return domain.PlatformInstagram
}

func (is *InstagramService) AccountID() string {
	return is.opts.UserID
}

type idResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// Publish creates a resumable reel container, uploads the file, waits until
// the container is processed and publishes it. The media id is returned.
func (is *InstagramService) Publish(ctx context.Context, artifact platform.Artifact) (string, error) {
	data, err := os.ReadFile(artifact.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read video file: %w", err)
	}

	containerID, err := is.createContainer(ctx, artifact.Description)
	if err != nil {
		return "", err
	}

	if err := is.upload(ctx, containerID, data); err != nil {
		return "", err
	}

	if err := is.waitFinished(ctx, containerID); err != nil {
		return "", err
	}

	mediaID, err := is.publishContainer(ctx, containerID)
	if err != nil {
		return "", err
	}

	is.logger.Info("Reel published to Instagram",
		zap.String("container_id", containerID),
		zap.String("media_id", mediaID),
		zap.Int("bytes", len(data)))

	return mediaID, nil
}

func (is *InstagramService) graphRequest(method, path string, params url.Values) platform.Request {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", is.opts.AccessToken)

	req := platform.Request{Method: method, Header: http.Header{}}
	target := is.opts.GraphURL + path
	if method == http.MethodGet {
		req.URL = target + "?" + params.Encode()
		return req
	}
	req.URL = target
	req.Body = []byte(params.Encode())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (is *InstagramService) createContainer(ctx context.Context, caption string) (string, error) {
	req := is.graphRequest(http.MethodPost, "/"+is.opts.UserID+"/media", url.Values{
		"media_type":    {"REELS"},
		"upload_type":   {"resumable"},
		"caption":       {caption},
		"share_to_feed": {"true"},
	})

	var resp idResponse
	if err := is.api.DoJSON(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to create reel container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram returned no container id")
	}
	return resp.ID, nil
}

func (is *InstagramService) upload(ctx context.Context, containerID string, data []byte) error {
	req := platform.Request{
		Method: http.MethodPost,
		URL:    is.opts.UploadURL + "/" + containerID,
		Header: http.Header{},
		Body:   data,
	}
	req.Header.Set("Authorization", "OAuth "+is.opts.AccessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.Itoa(len(data)))

	var resp idResponse
	if err := is.api.DoJSON(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to upload reel: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("instagram rejected reel upload for container %s", containerID)
	}
	return nil
}

func (is *InstagramService) containerStatus(ctx context.Context, containerID string) (string, error) {
	req := is.graphRequest(http.MethodGet, "/"+containerID, url.Values{"fields": {"status_code"}})

	var resp struct {
		StatusCode string `json:"status_code"`
	}
	if err := is.api.DoJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	return resp.StatusCode, nil
}

func (is *InstagramService) waitFinished(ctx context.Context, containerID string) error {
	for attempt := 1; attempt <= is.opts.PollAttempts; attempt++ {
		status, err := is.containerStatus(ctx, containerID)
		if err != nil {
			return fmt.Errorf("failed to read container status: %w", err)
		}

		switch status {
		case statusFinished:
			return nil
		case statusError, statusExpired:
			return fmt.Errorf("instagram container %s ended with status %s", containerID, status)
		}

		is.logger.Debug("Reel still processing",
			zap.String("container_id", containerID),
			zap.String("status", status),
			zap.Int("attempt", attempt))

		if err := is.sleep(ctx, is.opts.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("instagram container %s not ready after %d checks", containerID, is.opts.PollAttempts)
}

func (is *InstagramService) publishContainer(ctx context.Context, containerID string) (string, error) {
	req := is.graphRequest(http.MethodPost, "/"+is.opts.UserID+"/media_publish", url.Values{
		"creation_id": {containerID},
	})

	var resp idResponse
	if err := is.api.DoJSON(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to publish reel: %w", err)
	}
	return resp.ID, nil
}
