// Package enrichment turns a raw post into a post that references exactly
// one project or topic, or none when resolution fails.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ObiAU/hfentityengine/internal/ai"
	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
	"github.com/ObiAU/hfentityengine/internal/store"
)

type State string

const (
	StateReceived        State = "received"
	StateClassified      State = "classified"
	StateResolved        State = "resolved"
	StatePersisted       State = "persisted"
	StateUnresolved      State = "unresolved"
	StateAlreadyAssigned State = "already_assigned"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (ai.Decision, error)
}

type EntityResolver interface {
	Resolve(ctx context.Context, m ai.Mention, post *models.Post) models.ClassificationResult
}

// Notifier hears about entities created while enriching a post.
type Notifier interface {
	EntityCreated(ctx context.Context, result models.ClassificationResult, post *models.Post)
}

type Outcome struct {
	PostID string                      `json:"post_id"`
	State  State                       `json:"state"`
	Result models.ClassificationResult `json:"result"`
	Ref    *models.EntityRef           `json:"ref,omitempty"`
	Reason string                      `json:"reason,omitempty"`
}

func (o Outcome) Persisted() bool { return o.State == StatePersisted }

type Enricher struct {
	oracle   Classifier
	projects EntityResolver
	topics   EntityResolver
	posts    store.PostStore
	notifier Notifier
	log      logger.Logger
}

type Option func(*Enricher)

func WithNotifier(n Notifier) Option {
	return func(e *Enricher) { e.notifier = n }
}

func New(oracle Classifier, projects, topics EntityResolver, posts store.PostStore, log logger.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		oracle:   oracle,
		projects: projects,
		topics:   topics,
		posts:    posts,
		log:      log.With(logger.String("component", "enrichment")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich runs received -> classified -> resolved -> persisted. It never
// returns an error: oracle and store failures end in StateUnresolved with
// the post left untouched.
func (e *Enricher) Enrich(ctx context.Context, post *models.Post) Outcome {
	if post == nil {
		return Outcome{State: StateUnresolved, Result: models.Unknown("nil post"), Reason: "nil post"}
	}
	log := e.log.With(logger.String("post_id", post.ID))
	out := Outcome{PostID: post.ID, State: StateReceived}

	if ref, ok := post.Ref(); ok {
		return alreadyAssigned(out, ref)
	}
	// The reference cannot be written without an id, so nothing is classified
	// or created for such a post.
	if strings.TrimSpace(post.ID) == "" {
		return unresolved(out, models.Unknown("post id is empty"), "post id is empty")
	}

	existing, err := e.posts.PostRef(ctx, post.ID)
	switch {
	case err == nil:
		if err := post.Attach(existing); err != nil {
			log.Warn("stored reference could not be mirrored onto post", logger.Error(err))
		}
		return alreadyAssigned(out, existing)
	case !errors.Is(err, store.ErrNotFound):
		log.Error("post reference lookup failed", logger.Error(err))
		return unresolved(out, models.Unknown("post reference lookup failed"), err.Error())
	}

	decision, err := e.oracle.Classify(ctx, post.Text)
	if err != nil {
		log.Warn("no classification decision", logger.Error(err))
		return unresolved(out, models.Unknown(err.Error()), "oracle: "+err.Error())
	}
	out.State = StateClassified

	var result models.ClassificationResult
	switch d := decision.(type) {
	case ai.ProjectDecision:
		result = e.projects.Resolve(ctx, d.Mention, post)
	case ai.TopicDecision:
		result = e.topics.Resolve(ctx, d.Mention, post)
	case ai.UnknownDecision:
		result = models.Unknown(d.Reason)
		result.Confidence = d.Confidence
	default:
		result = models.Unknown(fmt.Sprintf("unsupported decision %T", decision))
	}
	out.Result = result

	if !result.Resolved() {
		log.Info("post left unresolved", logger.String("reason", result.Reason))
		return unresolved(out, result, result.Reason)
	}
	out.State = StateResolved

	ref := result.Ref()
	if err := e.posts.AttachEntity(ctx, post.ID, ref); err != nil {
		if errors.Is(err, models.ErrAlreadyAssigned) {
			if stored, lookupErr := e.posts.PostRef(ctx, post.ID); lookupErr == nil {
				_ = post.Attach(stored)
				return alreadyAssigned(out, stored)
			}
		}
		log.Error("post annotation failed",
			logger.String("entity_id", ref.ID), logger.Error(err))
		return unresolved(out, result, "annotate post: "+err.Error())
	}
	if err := post.Attach(ref); err != nil {
		log.Warn("post already carried a reference", logger.Error(err))
	}

	out.State = StatePersisted
	out.Ref = &ref
	log.Info("post enriched",
		logger.String("kind", string(ref.Kind)),
		logger.String("entity_id", ref.ID),
		logger.Bool("new_entity", result.IsNewCreated))

	if result.IsNewCreated && e.notifier != nil {
		e.notifier.EntityCreated(ctx, result, post)
	}
	return out
}

func alreadyAssigned(out Outcome, ref models.EntityRef) Outcome {
	out.State = StateAlreadyAssigned
	out.Ref = &ref
	out.Result = models.ClassificationResult{
		ContentType: models.ContentType(ref.Kind),
		EntityID:    ref.ID,
		Reason:      "post already assigned",
	}
	return out
}

func unresolved(out Outcome, result models.ClassificationResult, reason string) Outcome {
	out.State = StateUnresolved
	out.Result = result
	out.Reason = reason
	return out
}
