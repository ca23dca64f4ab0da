package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrAlreadyAssigned = errors.New("post already has an entity reference")

type EntityKind string

const (
	KindProject EntityKind = "project"
	KindTopic   EntityKind = "topic"
)

type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

type Engagement struct {
	Favorites int `json:"favorite_count"`
	Retweets  int `json:"retweet_count"`
	Replies   int `json:"reply_count"`
	Views     int `json:"view_count"`
	Bookmarks int `json:"bookmark_count"`
	Total     int `json:"total_engagement"`
}

// TotalEngagement falls back to the sum of interaction counters when the
// ingestion pipeline did not fill Total. Views are impressions, not
// interactions, and are left out of the sum.
func (e Engagement) TotalEngagement() int {
	if e.Total > 0 {
		return e.Total
	}
	total := 0
	for _, n := range []int{e.Favorites, e.Retweets, e.Replies, e.Bookmarks} {
		if n <= 0 {
			continue
		}
		if total > math.MaxInt-n {
			return math.MaxInt
		}
		total += n
	}
	return total
}

type Post struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	AuthorID    string     `json:"author_id,omitempty"`
	AuthorIsKOL bool       `json:"author_is_kol,omitempty"`
	Engagement  Engagement `json:"engagement"`
	CreatedAt   time.Time  `json:"created_at"`
	ProjectID   string     `json:"project_id,omitempty"`
	TopicID     string     `json:"topic_id,omitempty"`
	EntityID    string     `json:"entity_id,omitempty"`
}

func (p *Post) Assigned() bool {
	return p.ProjectID != "" || p.TopicID != ""
}

func (p *Post) Ref() (EntityRef, bool) {
	switch {
	case p.ProjectID != "":
		return EntityRef{Kind: KindProject, ID: p.ProjectID}, true
	case p.TopicID != "":
		return EntityRef{Kind: KindTopic, ID: p.TopicID}, true
	default:
		return EntityRef{}, false
	}
}

// Attach sets exactly one of ProjectID/TopicID and mirrors it into EntityID.
// An existing reference is never overwritten.
func (p *Post) Attach(ref EntityRef) error {
	if p.Assigned() {
		return ErrAlreadyAssigned
	}
	if ref.ID == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidRecord)
	}

	switch ref.Kind {
	case KindProject:
		p.ProjectID = ref.ID
	case KindTopic:
		p.TopicID = ref.ID
	default:
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidRecord, ref.Kind)
	}
	p.EntityID = ref.ID
	return nil
}

// Timestamp is the post's creation time, or now if the pipeline left it unset.
func (p *Post) Timestamp() time.Time {
	if p.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return p.CreatedAt
}
