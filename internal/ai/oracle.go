// Package ai is the adapter around the external classification and
// similarity service. Replies are validated strictly; anything malformed is
// reported as ErrNoDecision and never partially trusted.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
)

var ErrNoDecision = errors.New("oracle gave no decision")

// SimilarityThreshold is applied on top of the oracle's own boolean.
const SimilarityThreshold = 0.7

const (
	classifyMaxTokens = 300
	compareMaxTokens  = 200
)

type Completer interface {
	Name() string
	Complete(ctx context.Context, system, user string, maxTokens int64) (string, error)
}

// Decision is one of ProjectDecision, TopicDecision or UnknownDecision.
type Decision interface {
	decision()
}

type Mention struct {
	Name       string
	Brief      string
	Confidence float64
	Reason     string
	Sentiment  models.Direction
}

type ProjectDecision struct{ Mention }

type TopicDecision struct{ Mention }

type UnknownDecision struct {
	Reason     string
	Confidence float64
}

func (ProjectDecision) decision() {}
func (TopicDecision) decision()   {}
func (UnknownDecision) decision() {}

type SimilarityVerdict struct {
	IsSimilar  bool
	Confidence float64
	Reason     string
}

func (v SimilarityVerdict) Accepted() bool {
	return v.IsSimilar && v.Confidence >= SimilarityThreshold
}

type Oracle struct {
	completer Completer
	timeout   time.Duration
	log       logger.Logger
}

func NewOracle(completer Completer, timeout time.Duration, log logger.Logger) *Oracle {
	return &Oracle{completer: completer, timeout: timeout, log: log.With(logger.String("oracle", completer.Name()))}
}

// Classify never returns a partially trusted reply: either a Decision, or an
// error wrapping ErrNoDecision.
func (o *Oracle) Classify(ctx context.Context, text string) (Decision, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	reply, err := o.completer.Complete(ctx, classificationSystemPrompt, buildClassificationPrompt(text), classifyMaxTokens)
	if err != nil {
		o.log.Warn("classification request failed", logger.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}

	decision, err := parseClassification(reply)
	if err != nil {
		o.log.Warn("classification reply rejected", logger.Error(err), logger.String("reply", truncate(reply, 200)))
		return nil, err
	}
	return decision, nil
}

func (o *Oracle) CompareTopics(ctx context.Context, a, b TopicDigest) (SimilarityVerdict, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	prompt, err := buildSimilarityPrompt(a, b)
	if err != nil {
		return SimilarityVerdict{}, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}

	reply, err := o.completer.Complete(ctx, similaritySystemPrompt, prompt, compareMaxTokens)
	if err != nil {
		o.log.Warn("similarity request failed", logger.Error(err))
		return SimilarityVerdict{}, fmt.Errorf("%w: %v", ErrNoDecision, err)
	}

	verdict, err := parseSimilarity(reply)
	if err != nil {
		o.log.Warn("similarity reply rejected", logger.Error(err), logger.String("reply", truncate(reply, 200)))
		return SimilarityVerdict{}, err
	}
	return verdict, nil
}

func (o *Oracle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}
