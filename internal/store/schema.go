package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
  project_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  symbol TEXT NOT NULL DEFAULT '',
  token_address TEXT NOT NULL DEFAULT '',
  twitter_id TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  narratives TEXT[] NOT NULL DEFAULT '{}',
  sentiment_index DOUBLE PRECISION NOT NULL DEFAULT 50 CHECK (sentiment_index >= 0 AND sentiment_index <= 100),
  sentiment_history JSONB NOT NULL DEFAULT '[]',
  popularity INTEGER NOT NULL DEFAULT 0 CHECK (popularity >= 0),
  popularity_history JSONB NOT NULL DEFAULT '[]',
  summary TEXT NOT NULL DEFAULT '',
  is_announced BOOLEAN NOT NULL DEFAULT FALSE,
  announced_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  update_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_projects_lower_name ON projects (LOWER(name));

CREATE TABLE IF NOT EXISTS topics (
  topic_id TEXT PRIMARY KEY,
  topic_name TEXT NOT NULL CHECK (topic_name <> ''),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  brief TEXT NOT NULL DEFAULT '',
  key_entities TEXT NOT NULL DEFAULT '',
  popularity INTEGER NOT NULL DEFAULT 1 CHECK (popularity >= 0),
  propagation_speed_5m DOUBLE PRECISION NOT NULL DEFAULT 0,
  propagation_speed_1h DOUBLE PRECISION NOT NULL DEFAULT 0,
  propagation_speed_4h DOUBLE PRECISION NOT NULL DEFAULT 0,
  kol_opinions JSONB NOT NULL DEFAULT '[]',
  mob_opinion_direction TEXT NOT NULL DEFAULT 'neutral'
    CHECK (mob_opinion_direction IN ('positive', 'negative', 'neutral')),
  summary TEXT NOT NULL DEFAULT '',
  summary_text TEXT NOT NULL DEFAULT '',
  popularity_history JSONB NOT NULL DEFAULT '[]',
  update_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE topics ADD COLUMN IF NOT EXISTS summary_text TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_topics_lower_name ON topics (LOWER(topic_name));
CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics (created_at DESC);

CREATE TABLE IF NOT EXISTS post_entity_refs (
  post_id TEXT PRIMARY KEY,
  project_id TEXT,
  topic_id TEXT,
  entity_id TEXT NOT NULL,
  attached_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CHECK ((project_id IS NULL) <> (topic_id IS NULL))
);
`
