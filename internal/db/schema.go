package db

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	author       TEXT,
	description  TEXT,
	artwork_path TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS episodes (
	id                    TEXT PRIMARY KEY,
	collection_id         TEXT NOT NULL REFERENCES collections(id),
	source_id             TEXT,
	source_kind           TEXT NOT NULL DEFAULT 'external',
	title                 TEXT NOT NULL,
	description           TEXT,
	published_at          TIMESTAMPTZ,
	original_title        TEXT,
	original_description  TEXT,
	original_published_at TIMESTAMPTZ,
	thumbnail_url         TEXT,
	thumbnail_path        TEXT,
	audio_path            TEXT,
	audio_size_bytes      BIGINT,
	duration_seconds      INTEGER,
	status                TEXT NOT NULL DEFAULT 'pending',
	status_changed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	error_message         TEXT,
	original_filename     TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_episodes_collection ON episodes(collection_id);
CREATE INDEX IF NOT EXISTS idx_episodes_status ON episodes(status);

CREATE TABLE IF NOT EXISTS collection_sources (
	id                       TEXT PRIMARY KEY,
	collection_id            TEXT NOT NULL REFERENCES collections(id),
	source_url               TEXT NOT NULL,
	source_id                TEXT NOT NULL,
	title                    TEXT,
	last_refreshed_at        TIMESTAMPTZ,
	refresh_interval_seconds INTEGER,
	enabled                  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (collection_id, source_id)
);
`
