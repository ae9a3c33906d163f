// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
// Chunk ids are used directly as vec0 rowids, so no id mapping table is
// needed; each embedding space gets its own database file (or table set).
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

// Driver implements vector.Driver for one embedding space using sqlite-vec.
type Driver struct {
	db         *sql.DB
	modelID    string
	dimensions uint
	logger     *zap.Logger
}

// Config holds configuration for one sqlite-vec space.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// ModelID names the embedding space this driver stores.
	ModelID string

	// Dimensions is the vector dimensionality of the space. Required.
	Dimensions uint
}

// NewDriver creates a sqlite-vec backed vector driver for one space.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.ModelID == "" {
		return nil, fmt.Errorf("model id is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec space initialized",
		zap.String("db_path", c.DBPath),
		zap.String("model_id", c.ModelID),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:         db,
		modelID:    c.ModelID,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Add stores documents, replacing any existing embedding for the same chunk.
// vec0 does not support UPDATE, so replacement is DELETE + INSERT.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("chunk %s has %d dims, space %s wants %d: %w",
				doc.ChunkID, len(doc.Embedding), d.modelID, d.dimensions, vector.ErrDimensionMismatch)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_embeddings WHERE rowid = ?`, int64(doc.ChunkID),
		); err != nil {
			return fmt.Errorf("clearing embedding for %s: %w", doc.ChunkID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_embeddings(rowid, embedding) VALUES (?, ?)`,
			int64(doc.ChunkID), serializeFloat32(doc.Embedding),
		); err != nil {
			return fmt.Errorf("inserting embedding for %s: %w", doc.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added embeddings",
		zap.String("model_id", d.modelID),
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query runs a KNN search via vec0 MATCH. Distances are converted to
// similarity scores where higher means more similar.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if uint(len(embedding)) != d.dimensions {
		return nil, fmt.Errorf("query has %d dims, space %s wants %d: %w",
			len(embedding), d.modelID, d.dimensions, vector.ErrDimensionMismatch)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM chunk_embeddings
		WHERE embedding MATCH ?
			AND k = ?
		ORDER BY distance
	`, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var rowID int64
		var distance float64
		if err := rows.Scan(&rowID, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ChunkID: narrative.ChunkID(rowID),
				ModelID: d.modelID,
			},
			// Lower distance = higher similarity.
			Score: 1.0 / (1.0 + distance),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Has reports whether a chunk is embedded in this space.
func (d *Driver) Has(ctx context.Context, id narrative.ChunkID) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunk_embeddings WHERE rowid = ?`, int64(id),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking embedding: %w", err)
	}
	return true, nil
}

// Delete removes embeddings by chunk id.
func (d *Driver) Delete(ctx context.Context, ids []narrative.ChunkID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = int64(id)
	}

	query := fmt.Sprintf(
		`DELETE FROM chunk_embeddings WHERE rowid IN (%s)`,
		strings.Join(placeholders, ","),
	)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}
