// Package fixture provides offline platform implementations used outside
// production and in pipeline tests.
package fixture

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/top-music-bot-go/internal/domain"
	"github.com/kapu/top-music-bot-go/internal/platform"
)

var catalog = []struct {
	title   string
	channel string
	desc    string
}{
	{"Aurora Lane - Midnight Drive (Official Video)", "Aurora Lane", "New single #pop #midnightdrive"},
	{"Los Brillantes - Verano Eterno", "Los Brillantes", "#reggaeton #verano"},
	{"Kite Signal - Paper Planes (Music Video)", "Kite Signal", "#indie"},
	{"DJ Norte - Fuego Lento ft. Marea", "DJ Norte", "#latin #dance"},
	{"The Static Hearts - Overdrive", "The Static Hearts", "#rock"},
	{"Nova Reyes - Luz de Abril (Video)", "Nova Reyes", "#pop"},
	{"Coastal Echo - Saltwater", "Coastal Echo", ""},
	{"MC Vértice - Ciudad", "MC Vértice", "#rap #hiphop"},
	{"Lumen & Ash - Glass House (Official Video)", "Lumen & Ash", "#electropop"},
	{"Orquesta Solar - Cumbia del Mar", "Orquesta Solar", "#cumbia"},
	{"Ivy Quarter - Stay Gold", "Ivy Quarter", "#pop #ballad"},
	{"Raíz - Tierra Mía (Full Video)", "Raíz", "#folk"},
}

// PopularitySource returns the same catalog on every call, with view counts
// that grow by a per-video, per-day amount so consecutive fetches produce
// changing ranks.
type PopularitySource struct {
	Now func() time.Time
}

func NewPopularitySource() *PopularitySource {
	return &PopularitySource{Now: time.Now}
}

func (s *PopularitySource) FetchCurrentPopularity(ctx context.Context) ([]platform.PopularVideo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := domain.StartOfDay(s.Now())
	days := int64(day.Unix() / 86400)

	videos := make([]platform.PopularVideo, 0, len(catalog))
	for i, entry := range catalog {
		id := fmt.Sprintf("fx%09d", i+1)
		rate := int64(1000 + seed(id)%50000)
		wobble := int64(seed(fmt.Sprintf("%s:%d", id, days))) % (rate / 2)

		videos = append(videos, platform.PopularVideo{
			VideoID:         id,
			Title:           entry.title,
			Description:     entry.desc,
			Channel:         domain.Channel{ID: "UCfx" + id, Name: entry.channel},
			Views:           days*rate + wobble,
			Likes:           (days*rate + wobble) / 40,
			DurationSeconds: 150 + int64(seed(id)%120),
		})
	}
	return videos, nil
}

func seed(value string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return h.Sum32()
}

// Publisher records every artifact instead of uploading it.
type Publisher struct {
	platform  domain.Platform
	accountID string

	mu        sync.Mutex
	published []platform.Artifact
	err       error
}

func NewPublisher(p domain.Platform, accountID string) *Publisher {
	return &Publisher{platform: p, accountID: accountID}
}

func (p *Publisher) Platform() domain.Platform {
	return p.platform
}

func (p *Publisher) AccountID() string {
	return p.accountID
}

// FailWith makes subsequent Publish calls return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *Publisher) Publish(ctx context.Context, artifact platform.Artifact) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, artifact)
	return uuid.NewString(), nil
}

func (p *Publisher) Published() []platform.Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Artifact(nil), p.published...)
}

// PlaylistSyncer records the video ids of each sync.
type PlaylistSyncer struct {
	name string

	mu    sync.Mutex
	syncs [][]string
}

func NewPlaylistSyncer(name string) *PlaylistSyncer {
	return &PlaylistSyncer{name: name}
}

func (s *PlaylistSyncer) Name() string {
	return s.name
}

func (s *PlaylistSyncer) SyncPlaylist(ctx context.Context, videos []domain.Video) error {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs = append(s.syncs, ids)
	return nil
}

func (s *PlaylistSyncer) Syncs() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.syncs...)
}
