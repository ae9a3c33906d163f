// Package sqlite provides a SQLite-backed storage driver using
// github.com/mattn/go-sqlite3. Full-text search runs over an FTS5 index that
// is only populated when a chunk's metadata write completes, which is what
// makes enrichment the gate for text-search visibility.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	state TEXT NOT NULL DEFAULT 'draft',
	regeneration_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chunk_metadata (
	chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id),
	season INTEGER NOT NULL DEFAULT 0,
	episode INTEGER NOT NULL DEFAULT 0,
	scene INTEGER NOT NULL DEFAULT 0,
	world_layer TEXT NOT NULL DEFAULT '',
	causal_links TEXT NOT NULL DEFAULT '[]',
	thematic_tags TEXT NOT NULL DEFAULT '[]',
	emotional_tone TEXT NOT NULL DEFAULT '',
	continuity_markers TEXT NOT NULL DEFAULT '[]',
	slug TEXT NOT NULL DEFAULT ''
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(text);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS aliases (
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	name TEXT NOT NULL COLLATE NOCASE,
	UNIQUE(name)
);

CREATE TABLE IF NOT EXISTS relationships (
	from_entity_id INTEGER NOT NULL REFERENCES entities(id),
	to_entity_id INTEGER NOT NULL REFERENCES entities(id),
	type TEXT NOT NULL,
	valence REAL NOT NULL DEFAULT 0,
	dynamic TEXT NOT NULL DEFAULT '',
	history TEXT NOT NULL DEFAULT '',
	UNIQUE(from_entity_id, to_entity_id, type)
);

CREATE TABLE IF NOT EXISTS chunk_entities (
	chunk_id INTEGER NOT NULL REFERENCES chunks(id),
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	kind TEXT NOT NULL,
	UNIQUE(chunk_id, entity_id, kind)
);

CREATE TABLE IF NOT EXISTS turn_traces (
	turn_id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	payload TEXT NOT NULL
);
`

// Driver implements storage.Driver on SQLite.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDriver opens (or creates) the database at dbPath and applies the
// schema. Use ":memory:" for an ephemeral database.
func NewDriver(dbPath string, logger *zap.Logger) (*Driver, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite storage driver initialized", zap.String("db_path", dbPath))

	return &Driver{db: db, logger: logger}, nil
}

func (d *Driver) CreateChunk(ctx context.Context, text string) (*narrative.Chunk, error) {
	now := time.Now().UTC()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO chunks (text, created_at, state) VALUES (?, ?, ?)`,
		text, now, narrative.StateDraft,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting chunk: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading chunk id: %w", err)
	}

	return &narrative.Chunk{
		ID:        narrative.ChunkID(id),
		Text:      text,
		CreatedAt: now,
		State:     narrative.StateDraft,
	}, nil
}

func (d *Driver) GetChunk(ctx context.Context, id narrative.ChunkID) (*narrative.Chunk, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, text, created_at, state, regeneration_count FROM chunks WHERE id = ?`, int64(id))
	return scanChunk(row, id)
}

func (d *Driver) GetChunks(ctx context.Context, ids []narrative.ChunkID) ([]*narrative.Chunk, error) {
	result := make([]*narrative.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, err := d.GetChunk(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, chunk)
	}
	return result, nil
}

func (d *Driver) UpdateChunkText(ctx context.Context, id narrative.ChunkID, text string) error {
	chunk, err := d.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	if !chunk.State.Mutable() {
		return fmt.Errorf("%s: %w", id, narrative.ErrChunkImmutable)
	}

	_, err = d.db.ExecContext(ctx, `UPDATE chunks SET text = ? WHERE id = ?`, text, int64(id))
	if err != nil {
		return fmt.Errorf("updating chunk text: %w", err)
	}
	return nil
}

func (d *Driver) SetChunkState(ctx context.Context, id narrative.ChunkID, state narrative.ChunkState, regenerationCount int) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE chunks SET state = ?, regeneration_count = ? WHERE id = ?`,
		state, regenerationCount, int64(id),
	)
	if err != nil {
		return fmt.Errorf("updating chunk state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return storage.NotFoundError{Kind: "chunk", ID: id.String()}
	}
	return nil
}

func (d *Driver) Tail(ctx context.Context) (narrative.ChunkID, error) {
	var id sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM chunks WHERE state IN (?, ?)`,
		narrative.StateFinalized, narrative.StateEmbedded,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("querying tail: %w", err)
	}
	if !id.Valid {
		return 0, storage.ErrEmptyNarrative
	}
	return narrative.ChunkID(id.Int64), nil
}

func (d *Driver) TailChunks(ctx context.Context, limit int) ([]*narrative.Chunk, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, text, created_at, state, regeneration_count FROM chunks
		 WHERE state IN (?, ?) ORDER BY id DESC LIMIT ?`,
		narrative.StateFinalized, narrative.StateEmbedded, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tail chunks: %w", err)
	}
	defer rows.Close()

	var result []*narrative.Chunk
	for rows.Next() {
		chunk := &narrative.Chunk{}
		if err := rows.Scan(&chunk.ID, &chunk.Text, &chunk.CreatedAt, &chunk.State, &chunk.RegenerationCount); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		result = append(result, chunk)
	}
	return result, rows.Err()
}

// PutMetadata writes the metadata row and, in the same transaction, inserts
// the chunk text into the FTS index. A chunk becomes text-searchable exactly
// when this write commits.
func (d *Driver) PutMetadata(ctx context.Context, meta *narrative.Metadata) error {
	if meta == nil {
		return errors.New("cannot store nil metadata")
	}

	chunk, err := d.GetChunk(ctx, meta.ChunkID)
	if err != nil {
		return err
	}

	links, _ := json.Marshal(meta.CausalLinks)
	tags, _ := json.Marshal(meta.ThematicTags)
	markers, _ := json.Marshal(meta.ContinuityMarkers)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_metadata
		 (chunk_id, season, episode, scene, world_layer, causal_links, thematic_tags, emotional_tone, continuity_markers, slug)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(meta.ChunkID), meta.Season, meta.Episode, meta.Scene, meta.WorldLayer,
		string(links), string(tags), meta.EmotionalTone, string(markers), meta.Slug,
	)
	if err != nil {
		return fmt.Errorf("inserting metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_fts WHERE rowid = ?`, int64(meta.ChunkID)); err != nil {
		return fmt.Errorf("clearing fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_fts (rowid, text) VALUES (?, ?)`, int64(meta.ChunkID), chunk.Text); err != nil {
		return fmt.Errorf("indexing chunk text: %w", err)
	}

	return tx.Commit()
}

func (d *Driver) GetMetadata(ctx context.Context, id narrative.ChunkID) (*narrative.Metadata, error) {
	meta := &narrative.Metadata{}
	var links, tags, markers string

	err := d.db.QueryRowContext(ctx,
		`SELECT chunk_id, season, episode, scene, world_layer, causal_links, thematic_tags, emotional_tone, continuity_markers, slug
		 FROM chunk_metadata WHERE chunk_id = ?`, int64(id),
	).Scan(&meta.ChunkID, &meta.Season, &meta.Episode, &meta.Scene, &meta.WorldLayer,
		&links, &tags, &meta.EmotionalTone, &markers, &meta.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "metadata", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}

	if err := json.Unmarshal([]byte(links), &meta.CausalLinks); err != nil {
		return nil, fmt.Errorf("decoding causal links: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &meta.ThematicTags); err != nil {
		return nil, fmt.Errorf("decoding thematic tags: %w", err)
	}
	if err := json.Unmarshal([]byte(markers), &meta.ContinuityMarkers); err != nil {
		return nil, fmt.Errorf("decoding continuity markers: %w", err)
	}
	return meta, nil
}

// SearchText runs an FTS5 MATCH query. BM25 ranks are min-max normalized to
// [0,1] within the result set, best hit first.
func (d *Driver) SearchText(ctx context.Context, query string, limit int) ([]storage.TextHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT rowid, bm25(chunk_fts) FROM chunk_fts WHERE chunk_fts MATCH ? ORDER BY rank LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	type ranked struct {
		id   narrative.ChunkID
		rank float64
	}
	var scored []ranked
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.id, &r.rank); err != nil {
			return nil, fmt.Errorf("scanning fts hit: %w", err)
		}
		scored = append(scored, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, nil
	}

	// bm25() is more negative for better matches; flip and normalize.
	best, worst := math.Inf(1), math.Inf(-1)
	for _, r := range scored {
		best = math.Min(best, r.rank)
		worst = math.Max(worst, r.rank)
	}

	hits := make([]storage.TextHit, 0, len(scored))
	for _, r := range scored {
		score := 1.0
		if worst > best {
			score = (worst - r.rank) / (worst - best)
		}
		hits = append(hits, storage.TextHit{ChunkID: r.id, Score: score})
	}
	return hits, nil
}

// ftsQuery quotes each term so user punctuation cannot break MATCH syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, ``)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (d *Driver) CreateEntity(ctx context.Context, entity *narrative.Entity) (int64, error) {
	if entity == nil {
		return 0, errors.New("cannot store nil entity")
	}

	attrs, _ := json.Marshal(entity.Attributes)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO entities (kind, name, summary, attributes) VALUES (?, ?, ?, ?)`,
		entity.Kind, entity.Name, entity.Summary, string(attrs),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading entity id: %w", err)
	}

	// The canonical name always resolves as an alias of itself.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO aliases (entity_id, name) VALUES (?, ?)`, id, entity.Name); err != nil {
		return 0, fmt.Errorf("inserting canonical alias: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *Driver) GetEntity(ctx context.Context, id int64) (*narrative.Entity, error) {
	return d.scanEntity(d.db.QueryRowContext(ctx,
		`SELECT id, kind, name, summary, attributes FROM entities WHERE id = ?`, id), fmt.Sprintf("%d", id))
}

func (d *Driver) UpdateEntity(ctx context.Context, entity *narrative.Entity) error {
	if entity == nil {
		return errors.New("cannot store nil entity")
	}
	attrs, _ := json.Marshal(entity.Attributes)

	res, err := d.db.ExecContext(ctx,
		`UPDATE entities SET kind = ?, name = ?, summary = ?, attributes = ? WHERE id = ?`,
		entity.Kind, entity.Name, entity.Summary, string(attrs), entity.ID,
	)
	if err != nil {
		return fmt.Errorf("updating entity: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.NotFoundError{Kind: "entity", ID: fmt.Sprintf("%d", entity.ID)}
	}
	return nil
}

func (d *Driver) ListEntities(ctx context.Context, kind narrative.EntityKind) ([]*narrative.Entity, error) {
	query := `SELECT id, kind, name, summary, attributes FROM entities`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var result []*narrative.Entity
	for rows.Next() {
		entity := &narrative.Entity{}
		var attrs string
		if err := rows.Scan(&entity.ID, &entity.Kind, &entity.Name, &entity.Summary, &attrs); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &entity.Attributes); err != nil {
			return nil, fmt.Errorf("decoding entity attributes: %w", err)
		}
		result = append(result, entity)
	}
	return result, rows.Err()
}

func (d *Driver) AddAlias(ctx context.Context, entityID int64, name string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO aliases (entity_id, name) VALUES (?, ?)`, entityID, name)
	if err != nil {
		return fmt.Errorf("inserting alias: %w", err)
	}
	return nil
}

func (d *Driver) FindEntityByName(ctx context.Context, name string) (*narrative.Entity, error) {
	return d.scanEntity(d.db.QueryRowContext(ctx,
		`SELECT e.id, e.kind, e.name, e.summary, e.attributes
		 FROM entities e JOIN aliases a ON a.entity_id = e.id
		 WHERE a.name = ? COLLATE NOCASE LIMIT 1`, name), name)
}

func (d *Driver) WriteRelationshipPair(ctx context.Context, forward, reverse narrative.RelationshipEdge) error {
	if forward.Type != reverse.Type || forward.Valence != reverse.Valence {
		return narrative.ErrRelationshipMismatch
	}
	if forward.FromEntityID != reverse.ToEntityID || forward.ToEntityID != reverse.FromEntityID {
		return fmt.Errorf("relationship pair entity ids do not mirror: %w", narrative.ErrRelationshipMismatch)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, edge := range []narrative.RelationshipEdge{forward, reverse} {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO relationships (from_entity_id, to_entity_id, type, valence, dynamic, history)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			edge.FromEntityID, edge.ToEntityID, edge.Type, edge.Valence, edge.Dynamic, edge.History,
		)
		if err != nil {
			return fmt.Errorf("inserting relationship edge: %w", err)
		}
	}
	return tx.Commit()
}

func (d *Driver) Relationships(ctx context.Context, entityID int64) ([]narrative.RelationshipEdge, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT from_entity_id, to_entity_id, type, valence, dynamic, history
		 FROM relationships WHERE from_entity_id = ? ORDER BY to_entity_id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var result []narrative.RelationshipEdge
	for rows.Next() {
		var edge narrative.RelationshipEdge
		if err := rows.Scan(&edge.FromEntityID, &edge.ToEntityID, &edge.Type, &edge.Valence, &edge.Dynamic, &edge.History); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		result = append(result, edge)
	}
	return result, rows.Err()
}

func (d *Driver) LinkEntity(ctx context.Context, ref narrative.ChunkEntityRef) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chunk_entities (chunk_id, entity_id, kind) VALUES (?, ?, ?)`,
		int64(ref.ChunkID), ref.EntityID, ref.Kind)
	if err != nil {
		return fmt.Errorf("linking entity: %w", err)
	}
	return nil
}

func (d *Driver) ChunksForEntity(ctx context.Context, entityID int64, kind narrative.RefKind) ([]narrative.ChunkID, error) {
	query := `SELECT chunk_id FROM chunk_entities WHERE entity_id = ?`
	args := []any{entityID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY chunk_id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunk refs: %w", err)
	}
	defer rows.Close()

	var ids []narrative.ChunkID
	for rows.Next() {
		var id narrative.ChunkID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReadOnlyQuery executes a planner-proposed statement. Defense in depth: the
// planner validates first, and this refuses anything that is not a single
// SELECT.
func (d *Driver) ReadOnlyQuery(ctx context.Context, query string) (*storage.QueryRows, error) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") || strings.Contains(trimmed, ";") {
		return nil, storage.ErrReadOnly
	}

	rows, err := d.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("planner query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &storage.QueryRows{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning planner row: %w", err)
		}

		rendered := make([]string, len(cols))
		for i, v := range raw {
			rendered[i] = renderValue(v)
		}
		result.Rows = append(result.Rows, rendered)
	}
	return result, rows.Err()
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (d *Driver) SaveTurnTrace(ctx context.Context, trace *storage.TurnTrace) error {
	if trace == nil {
		return errors.New("cannot store nil trace")
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO turn_traces (turn_id, created_at, payload) VALUES (?, ?, ?)`,
		trace.TurnID, trace.CreatedAt.UTC(), string(trace.Payload))
	if err != nil {
		return fmt.Errorf("saving turn trace: %w", err)
	}
	return nil
}

func (d *Driver) GetTurnTrace(ctx context.Context, turnID string) (*storage.TurnTrace, error) {
	trace := &storage.TurnTrace{}
	var payload string
	err := d.db.QueryRowContext(ctx,
		`SELECT turn_id, created_at, payload FROM turn_traces WHERE turn_id = ?`, turnID,
	).Scan(&trace.TurnID, &trace.CreatedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "trace", ID: turnID}
	}
	if err != nil {
		return nil, fmt.Errorf("querying turn trace: %w", err)
	}
	trace.Payload = json.RawMessage(payload)
	return trace, nil
}

func (d *Driver) ListTurnTraces(ctx context.Context, limit int) ([]*storage.TurnTrace, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT turn_id, created_at, payload FROM turn_traces ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turn traces: %w", err)
	}
	defer rows.Close()

	var result []*storage.TurnTrace
	for rows.Next() {
		trace := &storage.TurnTrace{}
		var payload string
		if err := rows.Scan(&trace.TurnID, &trace.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning turn trace: %w", err)
		}
		trace.Payload = json.RawMessage(payload)
		result = append(result, trace)
	}
	return result, rows.Err()
}

func (d *Driver) Close() error {
	return d.db.Close()
}

func scanChunk(row *sql.Row, id narrative.ChunkID) (*narrative.Chunk, error) {
	chunk := &narrative.Chunk{}
	err := row.Scan(&chunk.ID, &chunk.Text, &chunk.CreatedAt, &chunk.State, &chunk.RegenerationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "chunk", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	return chunk, nil
}

func (d *Driver) scanEntity(row *sql.Row, id string) (*narrative.Entity, error) {
	entity := &narrative.Entity{}
	var attrs string
	err := row.Scan(&entity.ID, &entity.Kind, &entity.Name, &entity.Summary, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "entity", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &entity.Attributes); err != nil {
		return nil, fmt.Errorf("decoding entity attributes: %w", err)
	}
	return entity, nil
}
