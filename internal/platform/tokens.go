package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kapu/top-music-bot-go/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenRepository is the persistence the OAuth helpers need. The SQL store
// satisfies it.
type TokenRepository interface {
	SaveAuthToken(ctx context.Context, platform domain.Platform, accountID string, token []byte) error
	LoadAuthToken(ctx context.Context, platform domain.Platform, accountID string) ([]byte, error)
}

// LoadToken returns nil, nil when the account has not been authorized yet.
func LoadToken(ctx context.Context, repo TokenRepository, p domain.Platform, accountID string) (*oauth2.Token, error) {
	raw, err := repo.LoadAuthToken(ctx, p, accountID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(raw, token); err != nil {
		return nil, fmt.Errorf("failed to decode %s token: %w", p, err)
	}
	return token, nil
}

func SaveToken(ctx context.Context, repo TokenRepository, p domain.Platform, accountID string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode %s token: %w", p, err)
	}
	return repo.SaveAuthToken(ctx, p, accountID, raw)
}

// persistingSource writes every refreshed token back to the repository so the
// next process starts with the newest refresh token.
type persistingSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	repo      TokenRepository
	platform  domain.Platform
	accountID string
	last      string
	logger    *zap.Logger
}

// NewPersistingTokenSource wraps base so refreshed tokens are saved.
func NewPersistingTokenSource(base oauth2.TokenSource, repo TokenRepository, p domain.Platform, accountID string, initial *oauth2.Token, logger *zap.Logger) oauth2.TokenSource {
	src := &persistingSource{
		base:      base,
		repo:      repo,
		platform:  p,
		accountID: accountID,
		logger:    logger,
	}
	if initial != nil {
		src.last = initial.AccessToken
	}
	return oauth2.ReuseTokenSource(initial, src)
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	if err := SaveToken(context.Background(), s.repo, s.platform, s.accountID, token); err != nil {
		s.logger.Warn("Failed to persist refreshed token",
			zap.String("platform", s.platform.String()),
			zap.String("account", s.accountID),
			zap.Error(err))
	} else {
		s.logger.Info("Refreshed token persisted",
			zap.String("platform", s.platform.String()),
			zap.String("account", s.accountID),
			zap.Time("expiry", token.Expiry))
	}
	return token, nil
}
