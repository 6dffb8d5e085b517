package store

import "fmt"

// schemaSQL returns the DDL for all durable tables. dim controls the vec0
// virtual table dimension (D = 1024, per the data model).
func schemaSQL(dim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS fragments (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_fragments USING vec0(
    fragment_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

CREATE TABLE IF NOT EXISTS assets (
    id INTEGER PRIMARY KEY,
    sha256 TEXT NOT NULL,
    filepath TEXT NOT NULL,
    page INTEGER,
    type TEXT NOT NULL,
    image_url TEXT,
    caption_text TEXT,
    meta JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_captions USING vec0(
    asset_id INTEGER PRIMARY KEY,
    embedding float[%[1]d]
);

CREATE TABLE IF NOT EXISTS table_bodies (
    asset_id INTEGER PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
    n_rows INTEGER,
    n_cols INTEGER,
    tsv TEXT,
    md TEXT,
    html TEXT
);

CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    trace_id TEXT,
    question TEXT NOT NULL,
    answer TEXT,
    max_sim REAL,
    sources JSON,
    rag_mode TEXT,
    model_used TEXT,
    total_tokens INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`, dim)
}
