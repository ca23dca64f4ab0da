package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
		return true
	}
	return false
}

// ParseDirection accepts the three directions case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	return d, d.Valid()
}

type KOLOpinion struct {
	KOLID          string    `json:"kol_id"`
	Opinion        string    `json:"opinion"`
	Direction      Direction `json:"direction"`
	InfluenceScore *float64  `json:"influence_score,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Topic struct {
	TopicID             string            `json:"topic_id"`
	Name                string            `json:"topic_name"`
	CreatedAt           time.Time         `json:"created_at"`
	Brief               string            `json:"brief"`
	KeyEntities         string            `json:"key_entities"`
	Popularity          int               `json:"popularity"`
	PropagationSpeed5m  float64           `json:"propagation_speed_5m"`
	PropagationSpeed1h  float64           `json:"propagation_speed_1h"`
	PropagationSpeed4h  float64           `json:"propagation_speed_4h"`
	KOLOpinions         []KOLOpinion      `json:"kol_opinions"`
	MobOpinionDirection Direction         `json:"mob_opinion_direction"`
	Summary             string            `json:"summary"`
	PopularityHistory   []PopularityPoint `json:"popularity_history"`
	UpdatedAt           time.Time         `json:"update_time"`
}

// NewTopic always assigns an id; a topic never leaves construction without one.
func NewTopic(name, brief string, at time.Time) *Topic {
	return &Topic{
		TopicID:             NewTopicID(),
		Name:                name,
		Brief:               brief,
		CreatedAt:           at,
		UpdatedAt:           at,
		Popularity:          1,
		KOLOpinions:         []KOLOpinion{},
		MobOpinionDirection: DirectionNeutral,
		PopularityHistory:   []PopularityPoint{},
	}
}

func (t *Topic) Validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: nil topic", ErrInvalidRecord)
	case !strings.HasPrefix(t.TopicID, TopicIDPrefix) || len(t.TopicID) == len(TopicIDPrefix):
		return fmt.Errorf("%w: topic id %q", ErrInvalidRecord, t.TopicID)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: topic name is required", ErrInvalidRecord)
	case t.MobOpinionDirection != "" && !t.MobOpinionDirection.Valid():
		return fmt.Errorf("%w: direction %q", ErrInvalidRecord, t.MobOpinionDirection)
	case t.Popularity < 0:
		return fmt.Errorf("%w: negative popularity %d", ErrInvalidRecord, t.Popularity)
	}
	for _, op := range t.KOLOpinions {
		if !op.Direction.Valid() {
			return fmt.Errorf("%w: opinion direction %q", ErrInvalidRecord, op.Direction)
		}
	}
	return nil
}

func (t *Topic) RecordPopularity(value int, at time.Time) {
	t.Popularity = value
	t.PopularityHistory = append(t.PopularityHistory, PopularityPoint{Value: value, Timestamp: at})
	t.UpdatedAt = at
}

// AddOpinion appends an opinion and recomputes the mob direction by majority.
func (t *Topic) AddOpinion(op KOLOpinion) {
	t.KOLOpinions = append(t.KOLOpinions, op)
	t.MobOpinionDirection = MajorityDirection(t.KOLOpinions)
	t.UpdatedAt = op.Timestamp
}

// MajorityDirection is neutral on ties and on an empty list.
func MajorityDirection(ops []KOLOpinion) Direction {
	var pos, neg, neu int
	for _, op := range ops {
		switch op.Direction {
		case DirectionPositive:
			pos++
		case DirectionNegative:
			neg++
		default:
			neu++
		}
	}
	switch {
	case pos > neg && pos > neu:
		return DirectionPositive
	case neg > pos && neg > neu:
		return DirectionNegative
	default:
		return DirectionNeutral
	}
}

type Viewpoint struct {
	Viewpoint       string    `json:"viewpoint"`
	Direction       Direction `json:"direction"`
	SupportingPosts []string  `json:"supporting_posts"`
}

type TopicSummary struct {
	Viewpoints []Viewpoint `json:"viewpoints"`
}

const placeholderViewpoint = "Topic first observed in post "

// BasicSummary is the single-viewpoint placeholder written at creation, before
// any multi-post synthesis has run.
func BasicSummary(brief, postID string) string {
	view := strings.TrimSpace(brief)
	if view == "" {
		view = placeholderViewpoint + postID
	}
	raw, err := json.Marshal(TopicSummary{Viewpoints: []Viewpoint{{
		Viewpoint:       view,
		Direction:       DirectionNeutral,
		SupportingPosts: []string{postID},
	}}})
	if err != nil {
		return `{"viewpoints":[]}`
	}
	return string(raw)
}

// SummaryText is the searchable prose of a summary: its viewpoint texts
// without the creation placeholder. Non-JSON summaries are returned as is.
func SummaryText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return raw
	}
	var views []string
	for _, v := range gjson.Get(raw, "viewpoints.#.viewpoint").Array() {
		text := strings.TrimSpace(v.String())
		if text == "" || strings.HasPrefix(text, placeholderViewpoint) {
			continue
		}
		views = append(views, text)
	}
	return strings.Join(views, "\n")
}

func ParseSummary(raw string) (TopicSummary, error) {
	var s TopicSummary
	if strings.TrimSpace(raw) == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("parse topic summary: %w", err)
	}
	return s, nil
}
