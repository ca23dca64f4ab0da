package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/store"
)

type failingProjectStore struct {
	*store.Memory
	lookupErr error
	insertErr error
	byIDCalls int
}

func (s *failingProjectStore) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.Memory.GetProjectByName(ctx, name)
}

func (s *failingProjectStore) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	s.byIDCalls++
	return s.Memory.GetProjectByID(ctx, id)
}

func (s *failingProjectStore) InsertProject(ctx context.Context, p *models.Project) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Memory.InsertProject(ctx, p)
}

func newProjectResolver(t *testing.T, s store.ProjectStore) *ProjectResolver {
	t.Helper()
	r, err := NewProjectResolver(s, 16, logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestProjectResolver_CreatesBitcoin(t *testing.T) {
	mem := store.NewMemory()
	r := newProjectResolver(t, mem)
	post := &models.Post{ID: "p1", Text: "Bitcoin just broke $65,000! #BTC", CreatedAt: time.Now().UTC()}

	res := r.Resolve(context.Background(), ai.Mention{Name: "bitcoin", Confidence: 0.92, Reason: "ticker"}, post)

	require.True(t, res.Resolved())
	assert.Equal(t, models.ContentProject, res.ContentType)
	assert.Equal(t, "Bitcoin", res.EntityName)
	assert.True(t, res.IsNewCreated)
	assert.Contains(t, res.EntityID, models.ProjectIDPrefix)

	stored, err := mem.GetProjectByName(context.Background(), "Bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "BTC", stored.Symbol)
	assert.Equal(t, res.EntityID, stored.ProjectID)
	assert.Equal(t, float64(models.DefaultSentimentIndex), stored.SentimentIndex)
	assert.Equal(t, 1, stored.Popularity)
}

func TestProjectResolver_ReusesExistingAndCachesID(t *testing.T) {
	s := &failingProjectStore{Memory: store.NewMemory()}
	r := newProjectResolver(t, s)
	ctx := context.Background()

	first := r.Resolve(ctx, ai.Mention{Name: "Ethereum"}, &models.Post{ID: "p1"})
	require.True(t, first.IsNewCreated)

	second := r.Resolve(ctx, ai.Mention{Name: "$ETH"}, &models.Post{ID: "p2"})
	assert.False(t, second.IsNewCreated)
	assert.Equal(t, first.EntityID, second.EntityID)
	assert.Equal(t, 1, s.byIDCalls)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["projects"])
}

func TestProjectResolver_RaisesPopularity(t *testing.T) {
	mem := store.NewMemory()
	r := newProjectResolver(t, mem)
	ctx := context.Background()

	r.Resolve(ctx, ai.Mention{Name: "Solana"}, &models.Post{ID: "p1"})
	hot := &models.Post{ID: "p2", Engagement: models.Engagement{Favorites: 200, Retweets: 80, Replies: 45}}
	r.Resolve(ctx, ai.Mention{Name: "SOL"}, hot)

	p, err := mem.GetProjectByName(ctx, "Solana")
	require.NoError(t, err)
	assert.Equal(t, 6, p.Popularity)
	assert.Len(t, p.PopularityHistory, 2)

	r.Resolve(ctx, ai.Mention{Name: "SOL"}, &models.Post{ID: "p3"})
	p, err = mem.GetProjectByName(ctx, "Solana")
	require.NoError(t, err)
	assert.Equal(t, 6, p.Popularity)
	assert.Len(t, p.PopularityHistory, 2)
}

func TestProjectResolver_FailuresAreUnknown(t *testing.T) {
	ctx := context.Background()

	insertFails := &failingProjectStore{Memory: store.NewMemory(), insertErr: store.ErrNoRowsAffected}
	res := newProjectResolver(t, insertFails).Resolve(ctx, ai.Mention{Name: "Aave"}, &models.Post{ID: "p1"})
	assert.Equal(t, models.ContentUnknown, res.ContentType)
	assert.Empty(t, res.EntityID)

	lookupFails := &failingProjectStore{Memory: store.NewMemory(), lookupErr: errors.New("connection reset")}
	res = newProjectResolver(t, lookupFails).Resolve(ctx, ai.Mention{Name: "Aave"}, &models.Post{ID: "p1"})
	assert.Equal(t, models.ContentUnknown, res.ContentType)
	assert.Contains(t, res.Reason, "connection reset")

	res = newProjectResolver(t, store.NewMemory()).Resolve(ctx, ai.Mention{Name: "  $ "}, &models.Post{ID: "p1"})
	assert.Equal(t, models.ContentUnknown, res.ContentType)
}
