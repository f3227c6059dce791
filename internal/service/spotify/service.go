// Package spotify keeps a Spotify playlist in step with the latest top list.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	defaultAPIURL = "https://api.spotify.com/v1"
	maxTracks     = 100
)

var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.spotify.com/authorize",
	TokenURL:  "https://accounts.spotify.com/api/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

var scopes = []string{
	"user-read-private",
	"playlist-modify-public",
	"playlist-modify-private",
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserID       string
	PlaylistID   string
	APIURL       string
	Endpoint     oauth2.Endpoint
}

type SpotifyService struct {
	config     *oauth2.Config
	opts       Options
	tokens     platform.TokenRepository
	httpClient *http.Client
	logger     *zap.Logger

	mu  sync.Mutex
	api *platform.APIClient
}

// NewSpotifyService builds the service. baseClient carries transport settings
// for both token refresh and API calls; nil uses the default client.
func NewSpotifyService(opts Options, tokens platform.TokenRepository, baseClient *http.Client, logger *zap.Logger) *SpotifyService {
	if opts.APIURL == "" {
		opts.APIURL = defaultAPIURL
	}
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = Endpoint
	}
	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Endpoint:     opts.Endpoint,
			Scopes:       scopes,
		},
		opts:       opts,
		tokens:     tokens,
		httpClient: baseClient,
		logger:     logger,
	}
}

func (ss *SpotifyService) Name() string {
	return "spotify-playlist"
}

func (ss *SpotifyService) oauthContext(ctx context.Context) context.Context {
	if ss.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, ss.httpClient)
}

func (ss *SpotifyService) AuthURL(state string) string {
	return ss.config.AuthCodeURL(state)
}

func (ss *SpotifyService) Exchange(ctx context.Context, code string) error {
	token, err := ss.config.Exchange(ss.oauthContext(ctx), strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("unable to retrieve Spotify token: %w", err)
	}
	if err := platform.SaveToken(ctx, ss.tokens, domain.PlatformSpotify, ss.opts.UserID, token); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}

	ss.mu.Lock()
	ss.api = nil
	ss.mu.Unlock()

	ss.logger.Info("Spotify authorization complete", zap.String("user", ss.opts.UserID))
	return nil
}

func (ss *SpotifyService) client(ctx context.Context) (*platform.APIClient, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.api != nil {
		return ss.api, nil
	}

	token, err := platform.LoadToken(ctx, ss.tokens, domain.PlatformSpotify, ss.opts.UserID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("spotify user %q is not authorized, run the authorize command", ss.opts.UserID)
	}

	// The token source outlives this call, so it must not hold ctx.
	oauthCtx := ss.oauthContext(context.Background())
	source := platform.NewPersistingTokenSource(ss.config.TokenSource(oauthCtx, token), ss.tokens,
		domain.PlatformSpotify, ss.opts.UserID, token, ss.logger)

	ss.api = platform.NewAPIClient("spotify", oauth2.NewClient(oauthCtx, source), ss.logger)
	return ss.api, nil
}

// SearchQuery is the track query derived from a video title: the cleaned
// title up to the first '|'.
func SearchQuery(title string) string {
	cleaned := domain.CleanTitle(title)
	if idx := strings.Index(cleaned, "|"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimSpace(cleaned)
}

// SearchTrack returns the id of the best match, or "" when nothing matches.
func (ss *SpotifyService) SearchTrack(ctx context.Context, query string) (string, error) {
	api, err := ss.client(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{"q": {query}, "type": {"track"}, "limit": {"1"}}
	req := platform.Request{Method: http.MethodGet, URL: ss.opts.APIURL + "/search?" + params.Encode()}

	var resp struct {
		Tracks struct {
			Items []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := api.DoJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Tracks.Items) == 0 {
		return "", nil
	}
	return resp.Tracks.Items[0].ID, nil
}

func (ss *SpotifyService) playlistTrackIDs(ctx context.Context, api *platform.APIClient) ([]string, error) {
	params := url.Values{"fields": {"items(track(id))"}, "limit": {fmt.Sprint(maxTracks)}}
	req := platform.Request{
		Method: http.MethodGet,
		URL:    ss.opts.APIURL + "/playlists/" + ss.opts.PlaylistID + "/tracks?" + params.Encode(),
	}

	var resp struct {
		Items []struct {
			Track *struct {
				ID string `json:"id"`
			} `json:"track"`
		} `json:"items"`
	}
	if err := api.DoJSON(ctx, req, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Track != nil && item.Track.ID != "" {
			ids = append(ids, item.Track.ID)
		}
	}
	return ids, nil
}

func trackURIs(ids []string) []string {
	uris := make([]string, len(ids))
	for i, id := range ids {
		uris[i] = "spotify:track:" + id
	}
	return uris
}

// SyncPlaylist replaces the playlist content with the best Spotify match of
// each video, keeping rank order. Videos without a match are skipped.
func (ss *SpotifyService) SyncPlaylist(ctx context.Context, videos []domain.Video) error {
	if ss.opts.PlaylistID == "" {
		return fmt.Errorf("no Spotify playlist configured")
	}
	api, err := ss.client(ctx)
	if err != nil {
		return err
	}

	trackIDs := make([]string, 0, len(videos))
	for _, video := range videos {
		query := SearchQuery(video.Title)
		if query == "" {
			continue
		}
		id, err := ss.SearchTrack(ctx, query)
		if err != nil {
			return fmt.Errorf("spotify search for %q failed: %w", query, err)
		}
		if id == "" {
			ss.logger.Debug("No Spotify match", zap.String("query", query))
			continue
		}
		trackIDs = append(trackIDs, id)
	}
	if len(trackIDs) > maxTracks {
		trackIDs = trackIDs[:maxTracks]
	}

	existing, err := ss.playlistTrackIDs(ctx, api)
	if err != nil {
		return fmt.Errorf("failed to list playlist tracks: %w", err)
	}

	if len(existing) > 0 {
		tracks := make([]map[string]string, 0, len(existing))
		for _, uri := range trackURIs(existing) {
			tracks = append(tracks, map[string]string{"uri": uri})
		}
		req, err := platform.JSONRequest(http.MethodDelete, ss.opts.APIURL+"/playlists/"+ss.opts.PlaylistID+"/tracks",
			map[string]any{"tracks": tracks})
		if err != nil {
			return err
		}
		if _, err := api.Do(ctx, req); err != nil {
			return fmt.Errorf("failed to clear playlist: %w", err)
		}
	}

	if len(trackIDs) > 0 {
		req, err := platform.JSONRequest(http.MethodPost, ss.opts.APIURL+"/playlists/"+ss.opts.PlaylistID+"/tracks",
			map[string]any{"position": 0, "uris": trackURIs(trackIDs)})
		if err != nil {
			return err
		}
		if _, err := api.Do(ctx, req); err != nil {
			return fmt.Errorf("failed to add playlist tracks: %w", err)
		}
	}

	ss.logger.Info("Spotify playlist synced",
		zap.String("playlist_id", ss.opts.PlaylistID),
		zap.Int("removed", len(existing)),
		zap.Int("added", len(trackIDs)),
		zap.Int("videos", len(videos)))

	return nil
}
