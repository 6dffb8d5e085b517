// Package store implements Component C5: durable persistence for
// fragments, assets, and table bodies, plus the process-resident
// normalized-vector index that answers top-K cosine search.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"gonum.org/v1/gonum/floats"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Fragment is the unit of retrieval (§3): a text, the metadata bag it was
// tagged with, and the L2-normalized vector it was embedded into.
type Fragment struct {
	ID        int64
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// Asset is a non-prose source object: one image or one table (§3).
type Asset struct {
	ID          int64
	SHA256      string
	Filepath    string
	Page        int
	Type        string // "image" | "table"
	ImageURL    string
	CaptionText string
	CaptionEmb  []float32
	Meta        map[string]string
}

// TableBody is the one-per-table-asset normalized table payload (§3).
type TableBody struct {
	AssetID int64
	NRows   int
	NCols   int
	TSV     string
	MD      string
	HTML    string
}

// indexEntry is one process-resident Index[] row (§4.5).
type indexEntry struct {
	ID        int64
	Metadata  map[string]string
	Embedding []float32
}

// Store wraps the durable SQLite database plus the in-memory Index.
// Index and the loaded flag form a process-singleton lifecycle:
// uninitialized -> loaded (on first read) -> append-only.
type Store struct {
	db  *sql.DB
	dim int

	mu     sync.RWMutex
	loaded bool
	index  []indexEntry
}

// New opens (or creates) a SQLite database at dbPath and creates the
// durable schema. dim is the required embedding dimension D.
func New(dbPath string, dim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(dim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, dim: dim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for advanced queries (query_log,
// health reporting).
func (s *Store) DB() *sql.DB { return s.db }

// Dim returns the configured embedding dimension D.
func (s *Store) Dim() int { return s.dim }

// normalize implements §4.5's normalization rule: reject empty vectors,
// divide by the L2 norm (treating near-zero norms as 1), and return a
// float32 result. It never mutates the caller's slice.
func normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("store: cannot normalize an empty vector")
	}
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	const eps = 1e-9
	out := make([]float32, len(v))
	if n <= eps {
		copy(out, v)
		return out, nil
	}
	if math.Abs(n-1) < 1e-7 {
		copy(out, v)
		return out, nil
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim && (i+1)*4 <= len(b); i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func marshalMeta(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMeta(s string) map[string]string {
	m := map[string]string{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

// Load scans the durable fragments table, parses each embedding into a
// fixed-dimension float32 array, and rebuilds Index from scratch. Load is
// idempotent; a failed load leaves loaded=false.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.metadata, v.embedding
		FROM fragments f
		JOIN vec_fragments v ON v.fragment_id = f.id
		ORDER BY f.id
	`)
	if err != nil {
		return fmt.Errorf("store: loading index: %w", err)
	}
	defer rows.Close()

	var entries []indexEntry
	for rows.Next() {
		var id int64
		var metaStr string
		var embBytes []byte
		if err := rows.Scan(&id, &metaStr, &embBytes); err != nil {
			return fmt.Errorf("store: scanning index row: %w", err)
		}
		entries = append(entries, indexEntry{
			ID:        id,
			Metadata:  unmarshalMeta(metaStr),
			Embedding: deserializeFloat32(embBytes, s.dim),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterating index rows: %w", err)
	}

	s.mu.Lock()
	s.index = entries
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Load(ctx)
}

// InsertFragment persists content+metadata+a normalized embedding in a
// single transaction, then appends to Index only after the commit
// succeeds (invariant I3). rawVec must have length dim (invariant I2).
func (s *Store) InsertFragment(ctx context.Context, content string, metadata map[string]string, rawVec []float32) (int64, error) {
	if len(rawVec) != s.dim {
		return 0, fmt.Errorf("store: embedding has dimension %d, want %d", len(rawVec), s.dim)
	}
	v, err := normalize(rawVec)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO fragments (content, metadata) VALUES (?, ?)",
			content, marshalMeta(metadata))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vec_fragments (fragment_id, embedding) VALUES (?, ?)",
			id, serializeFloat32(v))
		return err
	})
	if err != nil {
		return 0, &insertError{"fragment", err}
	}

	s.mu.Lock()
	if s.loaded {
		s.index = append(s.index, indexEntry{ID: id, Metadata: cloneMeta(metadata), Embedding: v})
	}
	s.mu.Unlock()
	return id, nil
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// insertError satisfies the InsertError shape without importing the root
// package (which imports store), per Go's no-import-cycle rule; the root
// package wraps this into docrag.InsertError at the call boundary.
type insertError struct {
	Stage string
	Err   error
}

func (e *insertError) Error() string { return fmt.Sprintf("store: insert failed (%s): %v", e.Stage, e.Err) }
func (e *insertError) Unwrap() error { return e.Err }

// InsertError is the exported form callers use with errors.As.
type InsertError = insertError

// InsertAsset persists an Asset row, normalizing CaptionEmb when present.
// Returns the asset's assigned ID.
func (s *Store) InsertAsset(ctx context.Context, a Asset) (int64, error) {
	var capBytes []byte
	var normCap []float32
	if len(a.CaptionEmb) > 0 {
		if len(a.CaptionEmb) != s.dim {
			return 0, fmt.Errorf("store: caption embedding has dimension %d, want %d", len(a.CaptionEmb), s.dim)
		}
		var err error
		normCap, err = normalize(a.CaptionEmb)
		if err != nil {
			return 0, err
		}
		capBytes = serializeFloat32(normCap)
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assets (sha256, filepath, page, type, image_url, caption_text, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.SHA256, a.Filepath, a.Page, a.Type, a.ImageURL, a.CaptionText, marshalMeta(a.Meta))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if capBytes != nil {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_captions (asset_id, embedding) VALUES (?, ?)", id, capBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, &insertError{"asset", err}
	}
	return id, nil
}

// InsertTableBody persists the one table body row for an asset.
func (s *Store) InsertTableBody(ctx context.Context, tb TableBody) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO table_bodies (asset_id, n_rows, n_cols, tsv, md, html)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tb.AssetID, tb.NRows, tb.NCols, tb.TSV, tb.MD, tb.HTML)
	if err != nil {
		return &insertError{"table_body", err}
	}
	return nil
}

// DefaultThreshold is used when SearchOptions.Threshold is nil.
const DefaultThreshold = 0.7

// Threshold returns a pointer to v, for SearchOptions.Threshold — a plain
// float64 field could not distinguish an explicit Threshold: 0 (no
// filtering) from "not provided" (apply DefaultThreshold).
func Threshold(v float64) *float64 { return &v }

// SearchOptions controls TopK (§4.5). Threshold is a pointer so an
// explicit zero threshold (no similarity filtering) is distinguishable
// from an unset one, which falls back to DefaultThreshold.
type SearchOptions struct {
	K         int
	Threshold *float64
	Types     map[string]bool
	SHA256    string
}

// SearchResult is one TopK hit, with content attached after the
// similarity ranking and batch content fetch.
type SearchResult struct {
	ID         int64
	Metadata   map[string]string
	Similarity float64
	Content    string
}

// TopK performs a cosine top-K search over Index (§4.5). It loads the
// index on first use, normalizes the query vector, filters by type/SHA256,
// keeps only candidates at or above threshold, sorts by similarity
// descending with a stable tie-break, and batch-fetches content for the
// winners.
func (s *Store) TopK(ctx context.Context, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.K <= 0 {
		opts.K = 8
	}
	threshold := DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	q, err := normalize(queryVec)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshot := s.index[:len(s.index)] // stable view as of search entry
	s.mu.RUnlock()

	type scored struct {
		entry indexEntry
		sim   float64
		order int
	}
	var candidates []scored
	for i, e := range snapshot {
		if opts.Types != nil && !opts.Types[e.Metadata["type"]] {
			continue
		}
		if opts.SHA256 != "" && e.Metadata["sha256"] != opts.SHA256 {
			continue
		}
		sim := dot(q, e.Embedding)
		if sim < threshold {
			continue
		}
		candidates = append(candidates, scored{entry: e, sim: sim, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) > opts.K {
		candidates = candidates[:opts.K]
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.entry.ID
	}
	contents, err := s.fragmentContents(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{
			ID:         c.entry.ID,
			Metadata:   c.entry.Metadata,
			Similarity: c.sim,
			Content:    contents[c.entry.ID],
		}
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	af := make([]float64, len(a))
	bf := make([]float64, len(b))
	for i := range a {
		af[i] = float64(a[i])
	}
	for i := range b {
		bf[i] = float64(b[i])
	}
	n := len(af)
	if len(bf) < n {
		n = len(bf)
	}
	return floats.Dot(af[:n], bf[:n])
}

// fragmentContents fetches content for a batch of fragment IDs in one
// query.
func (s *Store) fragmentContents(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT id, content FROM fragments WHERE id IN (%s)", join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		out[id] = content
	}
	return out, rows.Err()
}

func join(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}

// LogQuery records one query/answer pair to the ambient audit table
// (supplemented feature, not a spec requirement). traceID correlates this
// row with the structured log lines emitted for the same request.
func (s *Store) LogQuery(ctx context.Context, traceID, question, answer string, maxSim float64, sources interface{}, ragMode, modelUsed string, totalTokens int) error {
	sourcesJSON, _ := json.Marshal(sources)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (trace_id, question, answer, max_sim, sources, rag_mode, model_used, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		traceID, question, answer, maxSim, string(sourcesJSON), ragMode, modelUsed, totalTokens)
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
