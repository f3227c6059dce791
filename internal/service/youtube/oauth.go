package youtube

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// OAuthService holds the installed-app OAuth configuration of the uploading
// account. Tokens live in the store, keyed by platform and account.
type OAuthService struct {
	config    *oauth2.Config
	tokens    platform.TokenRepository
	accountID string
	logger    *zap.Logger
}

func NewOAuthService(clientSecretFile, redirectURI, accountID string, tokens platform.TokenRepository, logger *zap.Logger) (*OAuthService, error) {
	credBytes, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	return NewOAuthServiceFromJSON(credBytes, redirectURI, accountID, tokens, logger)
}

func NewOAuthServiceFromJSON(credentials []byte, redirectURI, accountID string, tokens platform.TokenRepository, logger *zap.Logger) (*OAuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := google.ConfigFromJSON(credentials, youtube.YoutubeUploadScope, youtube.YoutubeScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	if redirectURI != "" {
		config.RedirectURL = redirectURI
	}

	return &OAuthService{
		config:    config,
		tokens:    tokens,
		accountID: accountID,
		logger:    logger,
	}, nil
}

func (s *OAuthService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for a token and stores it.
func (s *OAuthService) Exchange(ctx context.Context, code string) error {
	token, err := s.config.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("unable to retrieve token: %w", err)
	}
	if err := platform.SaveToken(ctx, s.tokens, domain.PlatformYouTube, s.accountID, token); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}

	s.logger.Info("YouTube OAuth authorization complete",
		zap.String("account", s.accountID),
		zap.Time("expiry", token.Expiry))
	return nil
}

func (s *OAuthService) IsAuthorized(ctx context.Context) bool {
	token, err := platform.LoadToken(ctx, s.tokens, domain.PlatformYouTube, s.accountID)
	return err == nil && token != nil
}

// Client returns an HTTP client whose refreshed tokens are written back to
// the store.
func (s *OAuthService) Client(ctx context.Context) (*http.Client, error) {
	token, err := platform.LoadToken(ctx, s.tokens, domain.PlatformYouTube, s.accountID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("YouTube account %q is not authorized, run the authorize command", s.accountID)
	}

	source := platform.NewPersistingTokenSource(s.config.TokenSource(ctx, token), s.tokens,
		domain.PlatformYouTube, s.accountID, token, s.logger)
	return oauth2.NewClient(ctx, source), nil
}
