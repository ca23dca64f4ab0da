package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRecord = errors.New("invalid record")

const (
	ProjectIDPrefix = "proj_"
	TopicIDPrefix   = "topic_"

	DefaultSentimentIndex = 50
)

func NewProjectID() string {
	return ProjectIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func NewTopicID() string {
	return TopicIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type SentimentPoint struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type PopularityPoint struct {
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type Project struct {
	ProjectID         string            `json:"project_id"`
	Name              string            `json:"name"`
	Symbol            string            `json:"symbol"`
	TokenAddress      string            `json:"token_address,omitempty"`
	TwitterID         string            `json:"twitter_id,omitempty"`
	Category          string            `json:"category,omitempty"`
	Narratives        []string          `json:"narratives,omitempty"`
	SentimentIndex    float64           `json:"sentiment_index"`
	SentimentHistory  []SentimentPoint  `json:"sentiment_history"`
	Popularity        int               `json:"popularity"`
	PopularityHistory []PopularityPoint `json:"popularity_history"`
	Summary           string            `json:"summary"`
	IsAnnounced       bool              `json:"is_announced"`
	AnnouncedAt       *time.Time        `json:"announced_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"update_time"`
}

func NewProject(name, symbol, summary string, popularity int, at time.Time) *Project {
	return &Project{
		ProjectID:         NewProjectID(),
		Name:              name,
		Symbol:            symbol,
		SentimentIndex:    DefaultSentimentIndex,
		SentimentHistory:  []SentimentPoint{{Value: DefaultSentimentIndex, Timestamp: at}},
		Popularity:        popularity,
		PopularityHistory: []PopularityPoint{{Value: popularity, Timestamp: at}},
		Summary:           summary,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func (p *Project) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil project", ErrInvalidRecord)
	case !strings.HasPrefix(p.ProjectID, ProjectIDPrefix) || len(p.ProjectID) == len(ProjectIDPrefix):
		return fmt.Errorf("%w: project id %q", ErrInvalidRecord, p.ProjectID)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: project name is required", ErrInvalidRecord)
	case p.SentimentIndex < 0 || p.SentimentIndex > 100:
		return fmt.Errorf("%w: sentiment index %.2f outside [0,100]", ErrInvalidRecord, p.SentimentIndex)
	case p.Popularity < 0:
		return fmt.Errorf("%w: negative popularity %d", ErrInvalidRecord, p.Popularity)
	}
	return nil
}

// RecordPopularity appends to the history; history is never truncated.
func (p *Project) RecordPopularity(value int, at time.Time) {
	p.Popularity = value
	p.PopularityHistory = append(p.PopularityHistory, PopularityPoint{Value: value, Timestamp: at})
	p.UpdatedAt = at
}
