// Package store persists projects, topics and post annotations.
//
// Non-popularity updates go through Replace*, which swaps the whole record
// located by name. Backends that support it do this as one atomic upsert.
// Update*Popularity is the narrow path that only touches popularity, its
// history and the update timestamp.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ObiAU/hfentityengine/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrNoRowsAffected = errors.New("no rows affected")
)

type ProjectStore interface {
	GetProjectByName(ctx context.Context, name string) (*models.Project, error)
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	InsertProject(ctx context.Context, p *models.Project) error
	ReplaceProject(ctx context.Context, p *models.Project) error
	UpdateProjectPopularity(ctx context.Context, id string, popularity int, at time.Time) error
}

type TopicStore interface {
	GetTopicByName(ctx context.Context, name string) (*models.Topic, error)
	GetTopicByID(ctx context.Context, id string) (*models.Topic, error)
	InsertTopic(ctx context.Context, t *models.Topic) error
	ReplaceTopic(ctx context.Context, t *models.Topic) error
	UpdateTopicPopularity(ctx context.Context, id string, popularity int, at time.Time) error
	// SearchTopics matches keyword against name, brief, summary viewpoint text
	// and key entities. JSON field names and the creation placeholder are not
	// searched.
	SearchTopics(ctx context.Context, keyword string, limit int) ([]*models.Topic, error)
	// RecentTopics returns topics created within window of around, newest first.
	RecentTopics(ctx context.Context, around time.Time, window time.Duration) ([]*models.Topic, error)
}

type PostStore interface {
	// AttachEntity records the post's reference; models.ErrAlreadyAssigned if one exists.
	AttachEntity(ctx context.Context, postID string, ref models.EntityRef) error
	PostRef(ctx context.Context, postID string) (models.EntityRef, error)
}

type Store interface {
	ProjectStore
	TopicStore
	PostStore
	Stats(ctx context.Context) (map[string]int, error)
	Close() error
}

const DefaultSearchLimit = 20
