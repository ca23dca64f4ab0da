package aggregator

import (
	"context"
	"time"

	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/store"
)

type Broadcaster interface {
	AnnounceProject(p *models.Project) int
	AnnounceTopic(t *models.Topic) int
}

// Announcer hears about newly created entities and broadcasts them. A
// project is flagged as announced once at least one chat received it.
type Announcer struct {
	store   store.Store
	bot     Broadcaster
	metrics *Metrics
	now     func() time.Time
	log     logger.Logger
}

func NewAnnouncer(s store.Store, bot Broadcaster, metrics *Metrics, log logger.Logger) *Announcer {
	return &Announcer{
		store:   s,
		bot:     bot,
		metrics: metrics,
		now:     time.Now,
		log:     log.With(logger.String("component", "announcer")),
	}
}

func (a *Announcer) EntityCreated(ctx context.Context, result models.ClassificationResult, post *models.Post) {
	a.metrics.EntitiesCreated.WithLabelValues(string(result.ContentType)).Inc()
	if a.bot == nil {
		return
	}

	switch result.ContentType {
	case models.ContentProject:
		a.announceProject(ctx, result.EntityID)
	case models.ContentTopic:
		a.announceTopic(ctx, result.EntityID)
	}
}

func (a *Announcer) announceProject(ctx context.Context, id string) {
	p, err := a.store.GetProjectByID(ctx, id)
	if err != nil {
		a.log.Warn("project to announce not found", logger.String("project_id", id), logger.Error(err))
		return
	}
	if p.IsAnnounced {
		return
	}

	delivered := a.bot.AnnounceProject(p)
	if delivered == 0 {
		return
	}
	a.metrics.Announcements.WithLabelValues(string(models.KindProject)).Add(float64(delivered))

	at := a.now().UTC()
	p.IsAnnounced = true
	p.AnnouncedAt = &at
	p.UpdatedAt = at
	if err := a.store.ReplaceProject(ctx, p); err != nil {
		a.log.Error("failed to flag project as announced", logger.String("project_id", id), logger.Error(err))
	}
}

func (a *Announcer) announceTopic(ctx context.Context, id string) {
	t, err := a.store.GetTopicByID(ctx, id)
	if err != nil {
		a.log.Warn("topic to announce not found", logger.String("topic_id", id), logger.Error(err))
		return
	}
	if delivered := a.bot.AnnounceTopic(t); delivered > 0 {
		a.metrics.Announcements.WithLabelValues(string(models.KindTopic)).Add(float64(delivered))
	}
}
