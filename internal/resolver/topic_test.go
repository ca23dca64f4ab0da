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

type scriptedJudge struct {
	verdicts []ai.SimilarityVerdict
	errs     []error
	compared []string
}

func (j *scriptedJudge) CompareTopics(ctx context.Context, a, b ai.TopicDigest) (ai.SimilarityVerdict, error) {
	i := len(j.compared)
	j.compared = append(j.compared, b.Name)
	if i < len(j.errs) && j.errs[i] != nil {
		return ai.SimilarityVerdict{}, j.errs[i]
	}
	if i < len(j.verdicts) {
		return j.verdicts[i], nil
	}
	return ai.SimilarityVerdict{}, nil
}

type recordingTopicStore struct {
	*store.Memory
	replaced int
	updated  int
	inserted int
}

func (s *recordingTopicStore) ReplaceTopic(ctx context.Context, t *models.Topic) error {
	s.replaced++
	return s.Memory.ReplaceTopic(ctx, t)
}

func (s *recordingTopicStore) UpdateTopicPopularity(ctx context.Context, id string, popularity int, at time.Time) error {
	s.updated++
	return s.Memory.UpdateTopicPopularity(ctx, id, popularity, at)
}

func (s *recordingTopicStore) InsertTopic(ctx context.Context, t *models.Topic) error {
	s.inserted++
	return s.Memory.InsertTopic(ctx, t)
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTopicResolver(s store.TopicStore, j SimilarityJudge) *TopicResolver {
	return NewTopicResolver(s, j, 48*time.Hour, logger.NewNop())
}

func TestTopicResolver_CreatesDeFi(t *testing.T) {
	s := &recordingTopicStore{Memory: store.NewMemory()}
	r := newTopicResolver(s, &scriptedJudge{})
	post := &models.Post{
		ID:         "p1",
		Text:       "DeFi yield farming is reshaping finance",
		CreatedAt:  base,
		Engagement: models.Engagement{Favorites: 200, Retweets: 80, Replies: 45},
	}

	res := r.Resolve(context.Background(), ai.Mention{Name: "defi", Brief: "yield farming growth", Confidence: 0.8}, post)

	require.True(t, res.Resolved())
	assert.True(t, res.IsNewCreated)
	assert.Equal(t, models.ContentTopic, res.ContentType)
	assert.Equal(t, "DeFi", res.EntityName)

	topic, err := s.GetTopicByID(context.Background(), res.EntityID)
	require.NoError(t, err)
	assert.Equal(t, 6, topic.Popularity)
	assert.Equal(t, "defi, yield, farming, reshaping, finance", topic.KeyEntities)
	assert.NotEmpty(t, topic.Summary)
	assert.Equal(t, base, topic.CreatedAt)
	require.Len(t, topic.PopularityHistory, 1)
	assert.Equal(t, 6, topic.PopularityHistory[0].Value)

	summary, err := models.ParseSummary(topic.Summary)
	require.NoError(t, err)
	require.Len(t, summary.Viewpoints, 1)
	assert.Equal(t, []string{"p1"}, summary.Viewpoints[0].SupportingPosts)
}

func TestTopicResolver_ExactMatchUsesPopularityPath(t *testing.T) {
	s := &recordingTopicStore{Memory: store.NewMemory()}
	r := newTopicResolver(s, &scriptedJudge{})
	ctx := context.Background()

	first := r.Resolve(ctx, ai.Mention{Name: "DeFi"}, &models.Post{ID: "p1", Text: "DeFi is back", CreatedAt: base})
	require.True(t, first.IsNewCreated)

	hot := &models.Post{
		ID:         "p2",
		Text:       "DeFi summer again, TVL everywhere",
		CreatedAt:  base.Add(6 * time.Hour),
		Engagement: models.Engagement{Favorites: 200, Retweets: 80, Replies: 45},
	}
	second := r.Resolve(ctx, ai.Mention{Name: "DeFi"}, hot)

	assert.False(t, second.IsNewCreated)
	assert.Equal(t, first.EntityID, second.EntityID)
	assert.Equal(t, 1, s.inserted)
	assert.Equal(t, 1, s.updated)
	assert.Zero(t, s.replaced)

	topic, err := s.GetTopicByID(ctx, first.EntityID)
	require.NoError(t, err)
	assert.Equal(t, 6, topic.Popularity)
	assert.Len(t, topic.PopularityHistory, 2)

	r.Resolve(ctx, ai.Mention{Name: "defi"}, &models.Post{ID: "p3", CreatedAt: base.Add(7 * time.Hour)})
	assert.Equal(t, 1, s.updated)
}

func TestTopicResolver_KeywordMatch(t *testing.T) {
	mem := store.NewMemory()
	existing := models.NewTopic("Ethereum ETF", "spot ETF decision", base)
	existing.KeyEntities = "ethereum, etf, approval, sec"
	require.NoError(t, mem.InsertTopic(context.Background(), existing))

	judge := &scriptedJudge{}
	r := newTopicResolver(mem, judge)
	post := &models.Post{ID: "p1", Text: "SEC approval for the Ethereum ETF expected this week", CreatedAt: base.Add(time.Hour)}

	res := r.Resolve(context.Background(), ai.Mention{Name: "ETH ETF Approval"}, post)

	assert.Equal(t, existing.TopicID, res.EntityID)
	assert.False(t, res.IsNewCreated)
	assert.Contains(t, res.Reason, "keyword match")
	assert.Empty(t, judge.compared)
}

func TestBestCandidate(t *testing.T) {
	a := &models.Topic{TopicID: "topic_a", Name: "Bitcoin Halving", KeyEntities: "halving, miners"}
	b := &models.Topic{TopicID: "topic_b", Name: "Bitcoin Halving", KeyEntities: "halving, miners"}
	c := &models.Topic{TopicID: "topic_c", Name: "Solana Outage", KeyEntities: "validators"}

	best, score, ties := BestCandidate("Bitcoin Halving", "miners brace for the halving", []*models.Topic{c, a, b})
	assert.Equal(t, "topic_a", best.TopicID)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, 1, ties)
}

func TestBestCandidateShortName(t *testing.T) {
	short := &models.Topic{TopicID: "topic_ai", Name: "AI", KeyEntities: "agents"}
	other := &models.Topic{TopicID: "topic_chain", Name: "Chain Upgrade", KeyEntities: "validators"}

	best, score, _ := BestCandidate("AI", "new coins launching every day", []*models.Topic{other, short})
	assert.Equal(t, "topic_ai", best.TopicID)
	assert.GreaterOrEqual(t, score, MinMatchScore)
	assert.InDelta(t, 0.6, score, 1e-9)
}

func TestTopicResolver_ShortNameKeywordMatch(t *testing.T) {
	mem := store.NewMemory()
	existing := models.NewTopic("AI Agents", "agent tokens rally", base)
	require.NoError(t, mem.InsertTopic(context.Background(), existing))

	judge := &scriptedJudge{}
	r := newTopicResolver(mem, judge)
	post := &models.Post{ID: "p1", Text: "Everyone is rotating into AI again", CreatedAt: base.Add(time.Hour)}

	res := r.Resolve(context.Background(), ai.Mention{Name: "AI"}, post)

	assert.Equal(t, existing.TopicID, res.EntityID)
	assert.False(t, res.IsNewCreated)
	assert.Contains(t, res.Reason, "keyword match")
	assert.Empty(t, judge.compared)
}

func seedBreakingNews(t *testing.T, r *TopicResolver) models.ClassificationResult {
	t.Helper()
	first := &models.Post{ID: "p1", Text: "Hackers drained millions from a major exchange wallet", CreatedAt: base}
	res := r.Resolve(context.Background(), ai.Mention{Name: "Exchange Hack", Brief: "hot wallet drained"}, first)
	require.True(t, res.IsNewCreated)
	return res
}

func breakingNewsFollowUp() *models.Post {
	return &models.Post{ID: "p2", Text: "Major exchange suffered a security breach overnight", CreatedAt: base.Add(3 * time.Hour)}
}

func TestTopicResolver_DuplicateWithinWindow(t *testing.T) {
	s := &recordingTopicStore{Memory: store.NewMemory()}
	judge := &scriptedJudge{verdicts: []ai.SimilarityVerdict{{IsSimilar: true, Confidence: 0.85, Reason: "same incident"}}}
	r := newTopicResolver(s, judge)

	first := seedBreakingNews(t, r)
	second := r.Resolve(context.Background(), ai.Mention{Name: "Security Breach", Brief: "exchange breach"}, breakingNewsFollowUp())

	assert.Equal(t, first.EntityID, second.EntityID)
	assert.False(t, second.IsNewCreated)
	assert.Equal(t, 1, s.inserted)
	assert.Equal(t, []string{"Exchange Hack"}, judge.compared)
}

func TestTopicResolver_LowConfidenceSimilarityCreates(t *testing.T) {
	s := &recordingTopicStore{Memory: store.NewMemory()}
	judge := &scriptedJudge{verdicts: []ai.SimilarityVerdict{{IsSimilar: true, Confidence: 0.65}}}
	r := newTopicResolver(s, judge)

	first := seedBreakingNews(t, r)
	second := r.Resolve(context.Background(), ai.Mention{Name: "Security Breach"}, breakingNewsFollowUp())

	assert.True(t, second.IsNewCreated)
	assert.NotEqual(t, first.EntityID, second.EntityID)
	assert.Equal(t, 2, s.inserted)
}

func TestTopicResolver_OutsideWindowIsNotCompared(t *testing.T) {
	judge := &scriptedJudge{verdicts: []ai.SimilarityVerdict{{IsSimilar: true, Confidence: 0.99}}}
	r := newTopicResolver(store.NewMemory(), judge)

	first := seedBreakingNews(t, r)
	late := breakingNewsFollowUp()
	late.CreatedAt = base.Add(49 * time.Hour)
	second := r.Resolve(context.Background(), ai.Mention{Name: "Security Breach"}, late)

	assert.True(t, second.IsNewCreated)
	assert.NotEqual(t, first.EntityID, second.EntityID)
	assert.Empty(t, judge.compared)
}

func TestTopicResolver_GreedyFirstAcceptedMatch(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	older := models.NewTopic("Bridge Exploit", "", base)
	newer := models.NewTopic("Wallet Drain", "", base.Add(time.Hour))
	require.NoError(t, mem.InsertTopic(ctx, older))
	require.NoError(t, mem.InsertTopic(ctx, newer))

	judge := &scriptedJudge{
		errs: []error{errors.New("oracle timeout")},
		verdicts: []ai.SimilarityVerdict{
			{},
			{IsSimilar: true, Confidence: 0.9},
			{IsSimilar: true, Confidence: 0.99},
		},
	}
	r := newTopicResolver(mem, judge)

	res := r.Resolve(ctx, ai.Mention{Name: "Funds Stolen"}, &models.Post{ID: "p9", Text: "funds stolen", CreatedAt: base.Add(2 * time.Hour)})

	assert.Equal(t, older.TopicID, res.EntityID)
	assert.Equal(t, []string{"Wallet Drain", "Bridge Exploit"}, judge.compared)
}

func TestTopicResolver_DedupDeterminism(t *testing.T) {
	run := func() (bool, []string) {
		judge := &scriptedJudge{verdicts: []ai.SimilarityVerdict{{IsSimilar: true, Confidence: 0.7}}}
		r := newTopicResolver(store.NewMemory(), judge)
		first := seedBreakingNews(t, r)
		second := r.Resolve(context.Background(), ai.Mention{Name: "Security Breach"}, breakingNewsFollowUp())
		return first.EntityID == second.EntityID, judge.compared
	}

	dup1, calls1 := run()
	dup2, calls2 := run()
	assert.True(t, dup1)
	assert.Equal(t, dup1, dup2)
	assert.Equal(t, calls1, calls2)
}

func TestTopicResolver_KOLOpinionRecorded(t *testing.T) {
	s := &recordingTopicStore{Memory: store.NewMemory()}
	r := newTopicResolver(s, nil)
	ctx := context.Background()

	created := r.Resolve(ctx, ai.Mention{Name: "Airdrops"}, &models.Post{ID: "p1", CreatedAt: base})
	kolPost := &models.Post{ID: "p2", Text: "Best airdrop season ever", AuthorID: "kol_1", AuthorIsKOL: true, CreatedAt: base.Add(time.Hour)}
	res := r.Resolve(ctx, ai.Mention{Name: "airdrop", Sentiment: models.DirectionPositive}, kolPost)

	assert.Equal(t, created.EntityID, res.EntityID)
	assert.Equal(t, 1, s.replaced)

	topic, err := s.GetTopicByID(ctx, created.EntityID)
	require.NoError(t, err)
	require.Len(t, topic.KOLOpinions, 1)
	assert.Equal(t, "kol_1", topic.KOLOpinions[0].KOLID)
	assert.Equal(t, models.DirectionPositive, topic.MobOpinionDirection)
}

func TestTopicResolver_InsertFailureIsUnknown(t *testing.T) {
	mem := store.NewMemory()
	r := newTopicResolver(failingInsertStore{mem}, nil)

	res := r.Resolve(context.Background(), ai.Mention{Name: "NFT"}, &models.Post{ID: "p1"})

	assert.Equal(t, models.ContentUnknown, res.ContentType)
	assert.Empty(t, res.EntityID)
	stats, err := mem.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats["topics"])
}

type failingInsertStore struct{ *store.Memory }

func (failingInsertStore) InsertTopic(context.Context, *models.Topic) error {
	return store.ErrNoRowsAffected
}
