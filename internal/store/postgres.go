package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ObiAU/hfentityengine/internal/logger"
	"github.com/ObiAU/hfentityengine/internal/models"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second

	uniqueViolation = "23505"
)

type Postgres struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgres(ctx context.Context, dsn string, log logger.Logger) (*Postgres, error) {
	db, err := sqlx.Open("postgres", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgresFromDB(db, log)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgresFromDB(db *sqlx.DB, log logger.Logger) *Postgres {
	return &Postgres{db: db, log: log}
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

const projectColumns = `project_id, name, symbol, token_address, twitter_id, category, narratives,
	sentiment_index, sentiment_history, popularity, popularity_history, summary,
	is_announced, announced_at, created_at, update_time`

const projectValues = `:project_id, :name, :symbol, :token_address, :twitter_id, :category, :narratives,
	:sentiment_index, CAST(:sentiment_history AS JSONB), :popularity, CAST(:popularity_history AS JSONB), :summary,
	:is_announced, :announced_at, :created_at, :update_time`

const projectUpsertSet = `name = EXCLUDED.name, symbol = EXCLUDED.symbol, token_address = EXCLUDED.token_address,
	twitter_id = EXCLUDED.twitter_id, category = EXCLUDED.category, narratives = EXCLUDED.narratives,
	sentiment_index = EXCLUDED.sentiment_index, sentiment_history = EXCLUDED.sentiment_history,
	popularity = EXCLUDED.popularity, popularity_history = EXCLUDED.popularity_history,
	summary = EXCLUDED.summary, is_announced = EXCLUDED.is_announced, announced_at = EXCLUDED.announced_at,
	update_time = EXCLUDED.update_time`

type projectRow struct {
	ProjectID         string         `db:"project_id"`
	Name              string         `db:"name"`
	Symbol            string         `db:"symbol"`
	TokenAddress      string         `db:"token_address"`
	TwitterID         string         `db:"twitter_id"`
	Category          string         `db:"category"`
	Narratives        pq.StringArray `db:"narratives"`
	SentimentIndex    float64        `db:"sentiment_index"`
	SentimentHistory  string         `db:"sentiment_history"`
	Popularity        int            `db:"popularity"`
	PopularityHistory string         `db:"popularity_history"`
	Summary           string         `db:"summary"`
	IsAnnounced       bool           `db:"is_announced"`
	AnnouncedAt       sql.NullTime   `db:"announced_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdateTime        time.Time      `db:"update_time"`
}

func projectToRow(p *models.Project) (projectRow, error) {
	sentiment, err := marshalList(p.SentimentHistory)
	if err != nil {
		return projectRow{}, err
	}
	popularity, err := marshalList(p.PopularityHistory)
	if err != nil {
		return projectRow{}, err
	}

	row := projectRow{
		ProjectID:         p.ProjectID,
		Name:              p.Name,
		Symbol:            p.Symbol,
		TokenAddress:      p.TokenAddress,
		TwitterID:         p.TwitterID,
		Category:          p.Category,
		Narratives:        pq.StringArray(append([]string{}, p.Narratives...)),
		SentimentIndex:    p.SentimentIndex,
		SentimentHistory:  sentiment,
		Popularity:        p.Popularity,
		PopularityHistory: popularity,
		Summary:           p.Summary,
		IsAnnounced:       p.IsAnnounced,
		CreatedAt:         p.CreatedAt,
		UpdateTime:        p.UpdatedAt,
	}
	if p.AnnouncedAt != nil {
		row.AnnouncedAt = sql.NullTime{Time: *p.AnnouncedAt, Valid: true}
	}
	return row, nil
}

func (r projectRow) toModel() (*models.Project, error) {
	p := &models.Project{
		ProjectID:      r.ProjectID,
		Name:           r.Name,
		Symbol:         r.Symbol,
		TokenAddress:   r.TokenAddress,
		TwitterID:      r.TwitterID,
		Category:       r.Category,
		Narratives:     []string(r.Narratives),
		SentimentIndex: r.SentimentIndex,
		Popularity:     r.Popularity,
		Summary:        r.Summary,
		IsAnnounced:    r.IsAnnounced,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdateTime,
	}
	if r.AnnouncedAt.Valid {
		at := r.AnnouncedAt.Time
		p.AnnouncedAt = &at
	}
	if err := unmarshalList(r.SentimentHistory, &p.SentimentHistory); err != nil {
		return nil, fmt.Errorf("project %s sentiment_history: %w", r.ProjectID, err)
	}
	if err := unmarshalList(r.PopularityHistory, &p.PopularityHistory); err != nil {
		return nil, fmt.Errorf("project %s popularity_history: %w", r.ProjectID, err)
	}
	return p, nil
}

func (s *Postgres) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	return s.getProject(ctx, `SELECT `+projectColumns+` FROM projects
		WHERE LOWER(name) = LOWER($1) ORDER BY created_at ASC LIMIT 1`, strings.TrimSpace(name))
}

func (s *Postgres) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	return s.getProject(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, id)
}

func (s *Postgres) getProject(ctx context.Context, query string, arg string) (*models.Project, error) {
	var row projectRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return row.toModel()
}

func (s *Postgres) InsertProject(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	row, err := projectToRow(p)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (`+projectValues+`)`, row)
	if err != nil {
		return classifyWriteError("insert project", err)
	}
	return requireAffected(res, "insert project "+p.ProjectID)
}

// ReplaceProject swaps the record found by name in one transaction. A
// replacement with a different id removes the old row first.
func (s *Postgres) ReplaceProject(ctx context.Context, p *models.Project) error {
	if p != nil && p.ProjectID == "" {
		if existing, err := s.GetProjectByName(ctx, p.Name); err == nil {
			p.ProjectID = existing.ProjectID
		}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	row, err := projectToRow(p)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existingID string
		err := tx.GetContext(ctx, &existingID, `SELECT project_id FROM projects
			WHERE LOWER(name) = LOWER($1) ORDER BY created_at ASC LIMIT 1 FOR UPDATE`, p.Name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("replace project %q: %w", p.Name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("locate project: %w", err)
		}

		if existingID != p.ProjectID {
			if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE project_id = $1`, existingID); err != nil {
				return fmt.Errorf("delete project %s: %w", existingID, err)
			}
		}

		res, err := tx.NamedExecContext(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (`+projectValues+`)
			ON CONFLICT (project_id) DO UPDATE SET `+projectUpsertSet, row)
		if err != nil {
			return classifyWriteError("upsert project", err)
		}
		return requireAffected(res, "upsert project "+p.ProjectID)
	})
}

func (s *Postgres) UpdateProjectPopularity(ctx context.Context, id string, popularity int, at time.Time) error {
	return s.updatePopularity(ctx, "projects", "project_id", id, popularity, at)
}

const topicColumns = `topic_id, topic_name, created_at, brief, key_entities, popularity,
	propagation_speed_5m, propagation_speed_1h, propagation_speed_4h, kol_opinions,
	mob_opinion_direction, summary, popularity_history, update_time`

const topicValues = `:topic_id, :topic_name, :created_at, :brief, :key_entities, :popularity,
	:propagation_speed_5m, :propagation_speed_1h, :propagation_speed_4h, CAST(:kol_opinions AS JSONB),
	:mob_opinion_direction, :summary, CAST(:popularity_history AS JSONB), :update_time`

// summary_text is written for search only and never read back.
const (
	topicWriteColumns = topicColumns + `, summary_text`
	topicWriteValues  = topicValues + `, :summary_text`
)

const topicUpsertSet = `topic_name = EXCLUDED.topic_name, brief = EXCLUDED.brief, key_entities = EXCLUDED.key_entities,
	popularity = EXCLUDED.popularity, propagation_speed_5m = EXCLUDED.propagation_speed_5m,
	propagation_speed_1h = EXCLUDED.propagation_speed_1h, propagation_speed_4h = EXCLUDED.propagation_speed_4h,
	kol_opinions = EXCLUDED.kol_opinions, mob_opinion_direction = EXCLUDED.mob_opinion_direction,
	summary = EXCLUDED.summary, summary_text = EXCLUDED.summary_text,
	popularity_history = EXCLUDED.popularity_history, update_time = EXCLUDED.update_time`

type topicRow struct {
	TopicID             string    `db:"topic_id"`
	TopicName           string    `db:"topic_name"`
	CreatedAt           time.Time `db:"created_at"`
	Brief               string    `db:"brief"`
	KeyEntities         string    `db:"key_entities"`
	Popularity          int       `db:"popularity"`
	PropagationSpeed5m  float64   `db:"propagation_speed_5m"`
	PropagationSpeed1h  float64   `db:"propagation_speed_1h"`
	PropagationSpeed4h  float64   `db:"propagation_speed_4h"`
	KOLOpinions         string    `db:"kol_opinions"`
	MobOpinionDirection string    `db:"mob_opinion_direction"`
	Summary             string    `db:"summary"`
	SummaryText         string    `db:"summary_text"`
	PopularityHistory   string    `db:"popularity_history"`
	UpdateTime          time.Time `db:"update_time"`
}

func topicToRow(t *models.Topic) (topicRow, error) {
	opinions, err := marshalList(t.KOLOpinions)
	if err != nil {
		return topicRow{}, err
	}
	history, err := marshalList(t.PopularityHistory)
	if err != nil {
		return topicRow{}, err
	}
	direction := t.MobOpinionDirection
	if direction == "" {
		direction = models.DirectionNeutral
	}

	return topicRow{
		TopicID:             t.TopicID,
		TopicName:           t.Name,
		CreatedAt:           t.CreatedAt,
		Brief:               t.Brief,
		KeyEntities:         t.KeyEntities,
		Popularity:          t.Popularity,
		PropagationSpeed5m:  t.PropagationSpeed5m,
		PropagationSpeed1h:  t.PropagationSpeed1h,
		PropagationSpeed4h:  t.PropagationSpeed4h,
		KOLOpinions:         opinions,
		MobOpinionDirection: string(direction),
		Summary:             t.Summary,
		SummaryText:         models.SummaryText(t.Summary),
		PopularityHistory:   history,
		UpdateTime:          t.UpdatedAt,
	}, nil
}

func (r topicRow) toModel() (*models.Topic, error) {
	t := &models.Topic{
		TopicID:             r.TopicID,
		Name:                r.TopicName,
		CreatedAt:           r.CreatedAt,
		Brief:               r.Brief,
		KeyEntities:         r.KeyEntities,
		Popularity:          r.Popularity,
		PropagationSpeed5m:  r.PropagationSpeed5m,
		PropagationSpeed1h:  r.PropagationSpeed1h,
		PropagationSpeed4h:  r.PropagationSpeed4h,
		MobOpinionDirection: models.Direction(r.MobOpinionDirection),
		Summary:             r.Summary,
		UpdatedAt:           r.UpdateTime,
	}
	if err := unmarshalList(r.KOLOpinions, &t.KOLOpinions); err != nil {
		return nil, fmt.Errorf("topic %s kol_opinions: %w", r.TopicID, err)
	}
	if err := unmarshalList(r.PopularityHistory, &t.PopularityHistory); err != nil {
		return nil, fmt.Errorf("topic %s popularity_history: %w", r.TopicID, err)
	}
	if t.KOLOpinions == nil {
		t.KOLOpinions = []models.KOLOpinion{}
	}
	return t, nil
}

func (s *Postgres) GetTopicByName(ctx context.Context, name string) (*models.Topic, error) {
	return s.getTopic(ctx, `SELECT `+topicColumns+` FROM topics
		WHERE LOWER(topic_name) = LOWER($1) ORDER BY created_at DESC LIMIT 1`, strings.TrimSpace(name))
}

func (s *Postgres) GetTopicByID(ctx context.Context, id string) (*models.Topic, error) {
	return s.getTopic(ctx, `SELECT `+topicColumns+` FROM topics WHERE topic_id = $1`, id)
}

func (s *Postgres) getTopic(ctx context.Context, query string, arg string) (*models.Topic, error) {
	var row topicRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get topic: %w", err)
	}
	return row.toModel()
}

func (s *Postgres) InsertTopic(ctx context.Context, t *models.Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	row, err := topicToRow(t)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, `INSERT INTO topics (`+topicWriteColumns+`) VALUES (`+topicWriteValues+`)`, row)
	if err != nil {
		return classifyWriteError("insert topic", err)
	}
	return requireAffected(res, "insert topic "+t.TopicID)
}

func (s *Postgres) ReplaceTopic(ctx context.Context, t *models.Topic) error {
	if t != nil && t.TopicID == "" {
		if existing, err := s.GetTopicByName(ctx, t.Name); err == nil {
			t.TopicID = existing.TopicID
		}
	}
	if err := t.Validate(); err != nil {
		return err
	}
	row, err := topicToRow(t)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existingID string
		err := tx.GetContext(ctx, &existingID, `SELECT topic_id FROM topics
			WHERE LOWER(topic_name) = LOWER($1) ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, t.Name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("replace topic %q: %w", t.Name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("locate topic: %w", err)
		}

		if existingID != t.TopicID {
			if _, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE topic_id = $1`, existingID); err != nil {
				return fmt.Errorf("delete topic %s: %w", existingID, err)
			}
			s.log.Info("topic replaced under a new id",
				logger.String("old_topic_id", existingID), logger.String("topic_id", t.TopicID))
		}

		res, err := tx.NamedExecContext(ctx, `INSERT INTO topics (`+topicWriteColumns+`) VALUES (`+topicWriteValues+`)
			ON CONFLICT (topic_id) DO UPDATE SET `+topicUpsertSet, row)
		if err != nil {
			return classifyWriteError("upsert topic", err)
		}
		return requireAffected(res, "upsert topic "+t.TopicID)
	})
}

func (s *Postgres) UpdateTopicPopularity(ctx context.Context, id string, popularity int, at time.Time) error {
	return s.updatePopularity(ctx, "topics", "topic_id", id, popularity, at)
}

func (s *Postgres) SearchTopics(ctx context.Context, keyword string, limit int) ([]*models.Topic, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	pattern := "%" + likeEscaper.Replace(keyword) + "%"
	var rows []topicRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+topicColumns+` FROM topics
		WHERE topic_name ILIKE $1 OR brief ILIKE $1 OR summary_text ILIKE $1 OR key_entities ILIKE $1
		ORDER BY created_at DESC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search topics: %w", err)
	}
	return topicsFromRows(rows)
}

func (s *Postgres) RecentTopics(ctx context.Context, around time.Time, window time.Duration) ([]*models.Topic, error) {
	var rows []topicRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+topicColumns+` FROM topics
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at DESC`, around.Add(-window), around.Add(window))
	if err != nil {
		return nil, fmt.Errorf("recent topics: %w", err)
	}
	return topicsFromRows(rows)
}

func (s *Postgres) AttachEntity(ctx context.Context, postID string, ref models.EntityRef) error {
	if postID == "" || ref.ID == "" {
		return fmt.Errorf("%w: post %q ref %q", models.ErrInvalidRecord, postID, ref.ID)
	}

	var projectID, topicID sql.NullString
	switch ref.Kind {
	case models.KindProject:
		projectID = sql.NullString{String: ref.ID, Valid: true}
	case models.KindTopic:
		topicID = sql.NullString{String: ref.ID, Valid: true}
	default:
		return fmt.Errorf("%w: entity kind %q", models.ErrInvalidRecord, ref.Kind)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO post_entity_refs (post_id, project_id, topic_id, entity_id)
		VALUES ($1, $2, $3, $4) ON CONFLICT (post_id) DO NOTHING`, postID, projectID, topicID, ref.ID)
	if err != nil {
		return fmt.Errorf("attach entity to post %s: %w", postID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrAlreadyAssigned
	}
	return nil
}

func (s *Postgres) PostRef(ctx context.Context, postID string) (models.EntityRef, error) {
	var row struct {
		ProjectID sql.NullString `db:"project_id"`
		TopicID   sql.NullString `db:"topic_id"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT project_id, topic_id FROM post_entity_refs WHERE post_id = $1`, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EntityRef{}, ErrNotFound
	}
	if err != nil {
		return models.EntityRef{}, fmt.Errorf("post ref %s: %w", postID, err)
	}
	if row.ProjectID.Valid {
		return models.EntityRef{Kind: models.KindProject, ID: row.ProjectID.String}, nil
	}
	return models.EntityRef{Kind: models.KindTopic, ID: row.TopicID.String}, nil
}

func (s *Postgres) Stats(ctx context.Context) (map[string]int, error) {
	var projects, topics, posts int
	err := s.db.QueryRowxContext(ctx, `SELECT
		(SELECT COUNT(*) FROM projects),
		(SELECT COUNT(*) FROM topics),
		(SELECT COUNT(*) FROM post_entity_refs)`).Scan(&projects, &topics, &posts)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return map[string]int{"projects": projects, "topics": topics, "annotated_posts": posts}, nil
}

// updatePopularity never deletes or reinserts; table and column are internal constants.
func (s *Postgres) updatePopularity(ctx context.Context, table, idColumn, id string, popularity int, at time.Time) error {
	if popularity < 0 {
		return fmt.Errorf("%w: negative popularity %d", models.ErrInvalidRecord, popularity)
	}
	point, err := marshalList([]models.PopularityPoint{{Value: popularity, Timestamp: at}})
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET popularity = $2,
		popularity_history = popularity_history || CAST($3 AS JSONB), update_time = $4
		WHERE %s = $1`, table, idColumn)
	res, err := s.db.ExecContext(ctx, query, id, popularity, point, at)
	if err != nil {
		return fmt.Errorf("update %s popularity: %w", table, err)
	}
	return requireAffected(res, "update "+table+" popularity "+id)
}

func (s *Postgres) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func topicsFromRows(rows []topicRow) ([]*models.Topic, error) {
	out := make([]*models.Topic, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNoRowsAffected)
	}
	return nil
}

func classifyWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func marshalList(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	if string(raw) == "null" {
		return "[]", nil
	}
	return string(raw), nil
}

func unmarshalList(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
