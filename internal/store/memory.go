package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ObiAU/hfentityengine/internal/models"
)

// Memory keeps records in insertion order behind a RWMutex. It backs the
// resolve command when no database is configured and the package tests.
type Memory struct {
	mu       sync.RWMutex
	projects []*models.Project
	topics   []*models.Topic
	postRefs map[string]models.EntityRef
}

func NewMemory() *Memory {
	return &Memory{postRefs: make(map[string]models.EntityRef)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.projectIndexByName(name); i >= 0 {
		return cloneProject(m.projects[i]), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.projectIndexByID(id); i >= 0 {
		return cloneProject(m.projects[i]), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) InsertProject(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.projectIndexByID(p.ProjectID) >= 0 {
		return fmt.Errorf("%w: project %s", ErrDuplicateKey, p.ProjectID)
	}
	m.projects = append(m.projects, cloneProject(p))
	return nil
}

func (m *Memory) ReplaceProject(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.projectIndexByName(p.Name)
	if i < 0 {
		return fmt.Errorf("replace project %q: %w", p.Name, ErrNotFound)
	}
	m.projects[i] = cloneProject(p)
	return nil
}

func (m *Memory) UpdateProjectPopularity(ctx context.Context, id string, popularity int, at time.Time) error {
	if popularity < 0 {
		return fmt.Errorf("%w: negative popularity %d", models.ErrInvalidRecord, popularity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.projectIndexByID(id)
	if i < 0 {
		return fmt.Errorf("update project %s: %w", id, ErrNoRowsAffected)
	}
	m.projects[i].RecordPopularity(popularity, at)
	return nil
}

func (m *Memory) GetTopicByName(ctx context.Context, name string) (*models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.topicIndexByName(name); i >= 0 {
		return cloneTopic(m.topics[i]), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) GetTopicByID(ctx context.Context, id string) (*models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.topicIndexByID(id); i >= 0 {
		return cloneTopic(m.topics[i]), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) InsertTopic(ctx context.Context, t *models.Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topicIndexByID(t.TopicID) >= 0 {
		return fmt.Errorf("%w: topic %s", ErrDuplicateKey, t.TopicID)
	}
	m.topics = append(m.topics, cloneTopic(t))
	return nil
}

func (m *Memory) ReplaceTopic(ctx context.Context, t *models.Topic) error {
	if t != nil && t.TopicID == "" {
		if existing, err := m.GetTopicByName(ctx, t.Name); err == nil {
			t.TopicID = existing.TopicID
		}
	}
	if err := t.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.topicIndexByName(t.Name)
	if i < 0 {
		return fmt.Errorf("replace topic %q: %w", t.Name, ErrNotFound)
	}
	m.topics[i] = cloneTopic(t)
	return nil
}

func (m *Memory) UpdateTopicPopularity(ctx context.Context, id string, popularity int, at time.Time) error {
	if popularity < 0 {
		return fmt.Errorf("%w: negative popularity %d", models.ErrInvalidRecord, popularity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.topicIndexByID(id)
	if i < 0 {
		return fmt.Errorf("update topic %s: %w", id, ErrNoRowsAffected)
	}
	m.topics[i].RecordPopularity(popularity, at)
	return nil
}

func (m *Memory) SearchTopics(ctx context.Context, keyword string, limit int) ([]*models.Topic, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Topic
	for i := len(m.topics) - 1; i >= 0 && len(out) < limit; i-- {
		t := m.topics[i]
		haystack := strings.ToLower(strings.Join([]string{t.Name, t.Brief, models.SummaryText(t.Summary), t.KeyEntities}, "\n"))
		if strings.Contains(haystack, keyword) {
			out = append(out, cloneTopic(t))
		}
	}
	return out, nil
}

func (m *Memory) RecentTopics(ctx context.Context, around time.Time, window time.Duration) ([]*models.Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Topic
	for i := len(m.topics) - 1; i >= 0; i-- {
		t := m.topics[i]
		delta := t.CreatedAt.Sub(around)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			out = append(out, cloneTopic(t))
		}
	}
	return out, nil
}

func (m *Memory) AttachEntity(ctx context.Context, postID string, ref models.EntityRef) error {
	if postID == "" || ref.ID == "" {
		return fmt.Errorf("%w: post %q ref %q", models.ErrInvalidRecord, postID, ref.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.postRefs[postID]; exists {
		return models.ErrAlreadyAssigned
	}
	m.postRefs[postID] = ref
	return nil
}

func (m *Memory) PostRef(ctx context.Context, postID string) (models.EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.postRefs[postID]
	if !ok {
		return models.EntityRef{}, ErrNotFound
	}
	return ref, nil
}

func (m *Memory) Stats(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"projects":        len(m.projects),
		"topics":          len(m.topics),
		"annotated_posts": len(m.postRefs),
	}, nil
}

func (m *Memory) projectIndexByName(name string) int {
	name = strings.TrimSpace(name)
	for i, p := range m.projects {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

func (m *Memory) projectIndexByID(id string) int {
	for i, p := range m.projects {
		if p.ProjectID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) topicIndexByName(name string) int {
	name = strings.TrimSpace(name)
	for i := len(m.topics) - 1; i >= 0; i-- {
		if strings.EqualFold(m.topics[i].Name, name) {
			return i
		}
	}
	return -1
}

func (m *Memory) topicIndexByID(id string) int {
	for i, t := range m.topics {
		if t.TopicID == id {
			return i
		}
	}
	return -1
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.Narratives = append([]string(nil), p.Narratives...)
	c.SentimentHistory = append([]models.SentimentPoint(nil), p.SentimentHistory...)
	c.PopularityHistory = append([]models.PopularityPoint(nil), p.PopularityHistory...)
	if p.AnnouncedAt != nil {
		at := *p.AnnouncedAt
		c.AnnouncedAt = &at
	}
	return &c
}

func cloneTopic(t *models.Topic) *models.Topic {
	c := *t
	c.KOLOpinions = append([]models.KOLOpinion{}, t.KOLOpinions...)
	c.PopularityHistory = append([]models.PopularityPoint{}, t.PopularityHistory...)
	return &c
}
