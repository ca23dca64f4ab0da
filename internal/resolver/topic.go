package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/popularity"
	"github.com/ObiAU/hfentityengine/internal/store"
)

const (
	DefaultDedupWindow = 48 * time.Hour

	// MinMatchScore gates keyword-search candidates.
	MinMatchScore = 0.3

	nameWeight   = 0.6
	entityWeight = 0.4
)

type SimilarityJudge interface {
	CompareTopics(ctx context.Context, a, b ai.TopicDigest) (ai.SimilarityVerdict, error)
}

type TopicResolver struct {
	store  store.TopicStore
	judge  SimilarityJudge
	window time.Duration
	log    logger.Logger
}

func NewTopicResolver(s store.TopicStore, judge SimilarityJudge, window time.Duration, log logger.Logger) *TopicResolver {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &TopicResolver{store: s, judge: judge, window: window, log: log.With(logger.String("resolver", "topic"))}
}

// Resolve runs exact name match, then keyword search, then the windowed
// duplicate scan, and only then creates a new topic.
func (r *TopicResolver) Resolve(ctx context.Context, m ai.Mention, post *models.Post) models.ClassificationResult {
	name := NormalizeTopicName(m.Name)
	if name == "" {
		return models.Unknown("topic name is empty after normalisation")
	}
	log := r.log.With(logger.String("post_id", post.ID), logger.String("topic", name))

	existing, err := r.store.GetTopicByName(ctx, name)
	switch {
	case err == nil:
		return r.reuse(ctx, existing, m, post, "exact name match", log)
	case !errors.Is(err, store.ErrNotFound):
		log.Error("topic lookup failed", logger.Error(err))
		return models.Unknown("topic lookup failed: " + err.Error())
	}

	if match := r.keywordMatch(ctx, name, post, log); match != nil {
		return r.reuse(ctx, match, m, post, "keyword match", log)
	}

	if dup := r.findDuplicate(ctx, name, m.Brief, post, log); dup != nil {
		return r.reuse(ctx, dup, m, post, "duplicate of recent topic", log)
	}

	return r.create(ctx, name, m, post, log)
}

func (r *TopicResolver) keywordMatch(ctx context.Context, name string, post *models.Post, log logger.Logger) *models.Topic {
	queries := append([]string{name}, ExtractKeywords(post.Text, maxPostKeywords)...)

	seen := make(map[string]struct{})
	var candidates []*models.Topic
	for _, q := range queries {
		found, err := r.store.SearchTopics(ctx, q, store.DefaultSearchLimit)
		if err != nil {
			log.Warn("topic keyword search failed", logger.String("keyword", q), logger.Error(err))
			continue
		}
		for _, t := range found {
			if _, dup := seen[t.TopicID]; dup {
				continue
			}
			seen[t.TopicID] = struct{}{}
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	best, score, ties := BestCandidate(name, post.Text, candidates)
	if ties > 0 {
		log.Info("keyword match tie broken by search order",
			logger.String("topic_id", best.TopicID), logger.Int("ties", ties), logger.Float64("score", score))
	}
	if score < MinMatchScore {
		log.Debug("best keyword candidate below threshold",
			logger.String("topic_id", best.TopicID), logger.Float64("score", score))
		return nil
	}
	return best
}

// BestCandidate scores each candidate as 0.6 x name-token overlap plus
// 0.4 x the share of its key-entity tokens found in the post. The first
// candidate wins ties; ties reports how many later candidates matched it.
func BestCandidate(name, postText string, candidates []*models.Topic) (*models.Topic, float64, int) {
	nameTokens := nameTokenSet(name)
	postTokens := tokenSet(postText)

	var best *models.Topic
	bestScore := -1.0
	ties := 0
	for _, c := range candidates {
		score := nameWeight*overlapRatio(nameTokens, nameTokenSet(c.Name)) +
			entityWeight*overlapRatio(tokenSet(c.KeyEntities), postTokens)
		switch {
		case score > bestScore:
			best, bestScore, ties = c, score, 0
		case score == bestScore:
			ties++
		}
	}
	return best, bestScore, ties
}

// findDuplicate asks the judge about each topic created within the window,
// in store order, and takes the first accepted verdict. It does not look for
// the best of several matches.
func (r *TopicResolver) findDuplicate(ctx context.Context, name, brief string, post *models.Post, log logger.Logger) *models.Topic {
	if r.judge == nil {
		return nil
	}

	recent, err := r.store.RecentTopics(ctx, post.Timestamp(), r.window)
	if err != nil {
		log.Warn("recent topic scan failed", logger.Error(err))
		return nil
	}

	candidate := ai.TopicDigest{
		Name:        name,
		Brief:       brief,
		KeyEntities: strings.Join(ExtractKeywords(post.Text, maxPostKeywords), ", "),
		Type:        string(models.ContentTopic),
		ObservedAt:  post.Timestamp(),
	}

	for _, t := range recent {
		verdict, err := r.judge.CompareTopics(ctx, candidate, digestOf(t))
		if err != nil {
			log.Warn("similarity check failed", logger.String("topic_id", t.TopicID), logger.Error(err))
			continue
		}
		if verdict.Accepted() {
			log.Info("duplicate topic detected",
				logger.String("topic_id", t.TopicID),
				logger.Float64("confidence", verdict.Confidence),
				logger.String("reason", verdict.Reason))
			return t
		}
	}
	return nil
}

func (r *TopicResolver) reuse(ctx context.Context, t *models.Topic, m ai.Mention, post *models.Post, how string, log logger.Logger) models.ClassificationResult {
	log = log.With(logger.String("topic_id", t.TopicID))
	at := post.Timestamp()

	if score := popularity.Score(post.Engagement); score > t.Popularity {
		if err := r.store.UpdateTopicPopularity(ctx, t.TopicID, score, at); err != nil {
			log.Warn("topic popularity update failed", logger.Error(err))
		} else {
			log.Debug("topic popularity raised", logger.Int("from", t.Popularity), logger.Int("to", score))
			t.RecordPopularity(score, at)
		}
	}

	if post.AuthorIsKOL && post.AuthorID != "" {
		r.recordOpinion(ctx, t, m, post, log)
	}

	return models.ClassificationResult{
		ContentType: models.ContentTopic,
		EntityID:    t.TopicID,
		EntityName:  t.Name,
		Confidence:  m.Confidence,
		Reason:      how + ": " + m.Reason,
	}
}

// recordOpinion appends the KOL's view and rewrites the topic through the
// replace path. Name, brief and summary are carried over unchanged.
func (r *TopicResolver) recordOpinion(ctx context.Context, t *models.Topic, m ai.Mention, post *models.Post, log logger.Logger) {
	direction := m.Sentiment
	if !direction.Valid() {
		direction = models.DirectionNeutral
	}

	updated := *t
	updated.KOLOpinions = append([]models.KOLOpinion{}, t.KOLOpinions...)
	updated.AddOpinion(models.KOLOpinion{
		KOLID:     post.AuthorID,
		Opinion:   truncateOpinion(post.Text),
		Direction: direction,
		Timestamp: post.Timestamp(),
	})

	if err := r.store.ReplaceTopic(ctx, &updated); err != nil {
		log.Warn("kol opinion not recorded", logger.String("kol_id", post.AuthorID), logger.Error(err))
		return
	}
	*t = updated
	log.Debug("kol opinion recorded",
		logger.String("kol_id", post.AuthorID), logger.String("mob_direction", string(t.MobOpinionDirection)))
}

func (r *TopicResolver) create(ctx context.Context, name string, m ai.Mention, post *models.Post, log logger.Logger) models.ClassificationResult {
	at := post.Timestamp()
	t := models.NewTopic(name, m.Brief, at)
	t.KeyEntities = strings.Join(ExtractKeywords(post.Text, maxPostKeywords), ", ")
	t.Summary = models.BasicSummary(m.Brief, post.ID)
	t.RecordPopularity(popularity.Score(post.Engagement), at)

	if err := r.store.InsertTopic(ctx, t); err != nil {
		log.Error("topic insert failed", logger.Error(err))
		return models.Unknown("topic insert failed: " + err.Error())
	}

	log.Info("topic created", logger.String("topic_id", t.TopicID), logger.Int("popularity", t.Popularity))

	return models.ClassificationResult{
		ContentType:  models.ContentTopic,
		EntityID:     t.TopicID,
		EntityName:   t.Name,
		Confidence:   m.Confidence,
		Reason:       m.Reason,
		IsNewCreated: true,
	}
}

func digestOf(t *models.Topic) ai.TopicDigest {
	return ai.TopicDigest{
		Name:        t.Name,
		Brief:       t.Brief,
		KeyEntities: t.KeyEntities,
		Type:        string(models.ContentTopic),
		ObservedAt:  t.CreatedAt,
	}
}

const maxOpinionChars = 500

func truncateOpinion(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxOpinionChars {
		return string(runes)
	}
	return string(runes[:maxOpinionChars])
}
