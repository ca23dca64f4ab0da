package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/popularity"
	"github.com/ObiAU/hfentityengine/internal/store"
)

const DefaultProjectCacheSize = 1024

type ProjectResolver struct {
	store store.ProjectStore
	ids   *lru.Cache[string, string]
	log   logger.Logger
}

func NewProjectResolver(s store.ProjectStore, cacheSize int, log logger.Logger) (*ProjectResolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultProjectCacheSize
	}
	ids, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("project name cache: %w", err)
	}
	return &ProjectResolver{store: s, ids: ids, log: log.With(logger.String("resolver", "project"))}, nil
}

// Resolve finds or creates the project a mention refers to. Failures come
// back as an unknown result; no partially formed reference is returned.
func (r *ProjectResolver) Resolve(ctx context.Context, m ai.Mention, post *models.Post) models.ClassificationResult {
	name := NormalizeProjectName(m.Name)
	if name == "" {
		return models.Unknown("project name is empty after normalisation")
	}
	log := r.log.With(logger.String("post_id", post.ID), logger.String("project", name))

	existing, err := r.lookup(ctx, name)
	switch {
	case err == nil:
		r.bumpPopularity(ctx, existing, post, log)
		return models.ClassificationResult{
			ContentType: models.ContentProject,
			EntityID:    existing.ProjectID,
			EntityName:  existing.Name,
			Confidence:  m.Confidence,
			Reason:      m.Reason,
		}
	case !errors.Is(err, store.ErrNotFound):
		log.Error("project lookup failed", logger.Error(err))
		return models.Unknown("project lookup failed: " + err.Error())
	}

	at := post.Timestamp()
	project := models.NewProject(name, InferSymbol(name), defaultProjectSummary(name, m.Brief), popularity.Score(post.Engagement), at)
	if err := r.store.InsertProject(ctx, project); err != nil {
		log.Error("project insert failed", logger.Error(err))
		return models.Unknown("project insert failed: " + err.Error())
	}
	r.ids.Add(cacheKey(name), project.ProjectID)

	log.Info("project created",
		logger.String("project_id", project.ProjectID),
		logger.String("symbol", project.Symbol),
		logger.Int("popularity", project.Popularity))

	return models.ClassificationResult{
		ContentType:  models.ContentProject,
		EntityID:     project.ProjectID,
		EntityName:   project.Name,
		Confidence:   m.Confidence,
		Reason:       m.Reason,
		IsNewCreated: true,
	}
}

func (r *ProjectResolver) lookup(ctx context.Context, name string) (*models.Project, error) {
	if id, ok := r.ids.Get(cacheKey(name)); ok {
		p, err := r.store.GetProjectByID(ctx, id)
		if err == nil {
			return p, nil
		}
		r.ids.Remove(cacheKey(name))
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	p, err := r.store.GetProjectByName(ctx, name)
	if err != nil {
		return nil, err
	}
	r.ids.Add(cacheKey(name), p.ProjectID)
	return p, nil
}

func (r *ProjectResolver) bumpPopularity(ctx context.Context, p *models.Project, post *models.Post, log logger.Logger) {
	score := popularity.Score(post.Engagement)
	if score <= p.Popularity {
		return
	}
	if err := r.store.UpdateProjectPopularity(ctx, p.ProjectID, score, post.Timestamp()); err != nil {
		log.Warn("project popularity update failed", logger.String("project_id", p.ProjectID), logger.Error(err))
		return
	}
	log.Debug("project popularity raised",
		logger.String("project_id", p.ProjectID), logger.Int("from", p.Popularity), logger.Int("to", score))
}

func cacheKey(name string) string {
	return strings.ToLower(name)
}

func defaultProjectSummary(name, brief string) string {
	if b := strings.TrimSpace(brief); b != "" {
		return b
	}
	return name + " is a crypto project discussed on social media."
}
