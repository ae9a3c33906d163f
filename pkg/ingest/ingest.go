// Package ingest seeds a narrative from an existing manuscript. Prose is
// split into passages, finalized through the chunk lifecycle in story order,
// and embedded across the configured spaces with bounded concurrency. This
// gives an imported story the same retrieval surface as one played turn by
// turn.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/utils"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

const (
	// DefaultMaxChunkChars bounds a single imported passage.
	DefaultMaxChunkChars = 2000

	// defaultWorkers bounds concurrent embedding calls to stay under
	// provider rate limits.
	defaultWorkers = 2
)

// Options configures import behavior.
type Options struct {
	MaxChunkChars int
	Workers       int
	DryRun        bool
}

// Importer writes manuscript passages into the narrative store.
type Importer struct {
	store  storage.Driver
	chunks *lifecycle.Manager
	spaces []retrieval.Space
	opts   Options
	logger *zap.Logger

	done  atomic.Int64
	total atomic.Int64
}

// NewImporter creates an Importer over the given store and spaces.
func NewImporter(store storage.Driver, chunks *lifecycle.Manager, spaces []retrieval.Space, opts Options, logger *zap.Logger) *Importer {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Importer{
		store:  store,
		chunks: chunks,
		spaces: spaces,
		opts:   opts,
		logger: logger,
	}
}

// Progress returns the number of chunks enriched and the total to enrich.
func (im *Importer) Progress() (done, total int) {
	return int(im.done.Load()), int(im.total.Load())
}

// Run splits the manuscript and commits every passage as a finalized chunk.
// Chunk creation is sequential so story order matches manuscript order;
// embedding runs behind it with bounded concurrency. An embedding failure
// leaves the chunk finalized but unembedded and is counted, not fatal.
func (im *Importer) Run(ctx context.Context, manuscript string) (*Result, error) {
	passages := SplitManuscript(manuscript, im.opts.MaxChunkChars)

	result := &Result{Passages: len(passages)}
	if len(passages) == 0 {
		return result, nil
	}

	if im.opts.DryRun {
		return result, nil
	}

	chunks := make([]*narrative.Chunk, 0, len(passages))
	for i, passage := range passages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := im.commitPassage(ctx, i+1, passage)
		if err != nil {
			return nil, fmt.Errorf("importing passage %d: %w", i+1, err)
		}
		chunks = append(chunks, chunk)
	}
	result.Chunks = len(chunks)

	im.total.Store(int64(len(chunks)))
	im.done.Store(0)

	var embedded, failed atomic.Int64

	sem := make(chan struct{}, im.opts.Workers)
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(c *narrative.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			defer im.done.Add(1)

			if err := im.embedChunk(ctx, c); err != nil {
				im.logger.Warn("import enrichment failed",
					zap.Int64("chunk_id", int64(c.ID)),
					zap.Error(err),
				)
				failed.Add(1)
				return
			}
			embedded.Add(1)
		}(chunk)
	}

	wg.Wait()

	result.Embedded = int(embedded.Load())
	result.Failed = int(failed.Load())

	return result, nil
}

// commitPassage walks one passage through the full lifecycle and records
// its scene position in metadata.
func (im *Importer) commitPassage(ctx context.Context, scene int, passage string) (*narrative.Chunk, error) {
	chunk, err := im.chunks.Draft(ctx, passage)
	if err != nil {
		return nil, err
	}
	if err := im.chunks.SubmitForReview(ctx, chunk.ID); err != nil {
		return nil, err
	}
	if err := im.chunks.Finalize(ctx, chunk.ID); err != nil {
		return nil, err
	}

	meta := &narrative.Metadata{
		ChunkID: chunk.ID,
		Scene:   scene,
		Slug:    utils.Truncate(strings.Join(strings.Fields(passage), " "), 48),
	}
	if err := im.store.PutMetadata(ctx, meta); err != nil {
		return nil, err
	}

	return chunk, nil
}

func (im *Importer) embedChunk(ctx context.Context, chunk *narrative.Chunk) error {
	for _, space := range im.spaces {
		embedding, err := space.Embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embedding in space %s: %w", space.ModelID, err)
		}
		doc := vector.Document{ChunkID: chunk.ID, ModelID: space.ModelID, Embedding: embedding}
		if err := space.Store.Add(ctx, []vector.Document{doc}); err != nil {
			return fmt.Errorf("writing vector in space %s: %w", space.ModelID, err)
		}
	}

	return im.chunks.MarkEmbedded(ctx, chunk.ID)
}
