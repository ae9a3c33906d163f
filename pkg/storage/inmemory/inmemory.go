// Package inmemory provides an in-memory storage.Driver used by tests and
// by the single-session demo mode. Full-text search is a naive token-overlap
// score rather than a real FTS index; planner queries are not supported.
package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// Driver implements storage.Driver with maps guarded by one RWMutex.
type Driver struct {
	mu sync.RWMutex

	nextChunkID  narrative.ChunkID
	nextEntityID int64

	chunks   map[narrative.ChunkID]*narrative.Chunk
	metadata map[narrative.ChunkID]*narrative.Metadata
	entities map[int64]*narrative.Entity
	aliases  map[string]int64 // lowercased alias -> entity id
	edges    []narrative.RelationshipEdge
	refs     []narrative.ChunkEntityRef
	traces   map[string]*storage.TurnTrace
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{
		nextChunkID:  1,
		nextEntityID: 1,
		chunks:       make(map[narrative.ChunkID]*narrative.Chunk),
		metadata:     make(map[narrative.ChunkID]*narrative.Metadata),
		entities:     make(map[int64]*narrative.Entity),
		aliases:      make(map[string]int64),
		traces:       make(map[string]*storage.TurnTrace),
	}
}

func (d *Driver) CreateChunk(_ context.Context, text string) (*narrative.Chunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk := &narrative.Chunk{
		ID:        d.nextChunkID,
		Text:      text,
		CreatedAt: time.Now(),
		State:     narrative.StateDraft,
	}
	d.chunks[chunk.ID] = chunk
	d.nextChunkID++

	return cloneChunk(chunk), nil
}

func (d *Driver) GetChunk(_ context.Context, id narrative.ChunkID) (*narrative.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	chunk, ok := d.chunks[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "chunk", ID: id.String()}
	}
	return cloneChunk(chunk), nil
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

func (d *Driver) UpdateChunkText(_ context.Context, id narrative.ChunkID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk, ok := d.chunks[id]
	if !ok {
		return storage.NotFoundError{Kind: "chunk", ID: id.String()}
	}
	if !chunk.State.Mutable() {
		return fmt.Errorf("%s: %w", id, narrative.ErrChunkImmutable)
	}

	chunk.Text = text
	return nil
}

func (d *Driver) SetChunkState(_ context.Context, id narrative.ChunkID, state narrative.ChunkState, regenerationCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chunk, ok := d.chunks[id]
	if !ok {
		return storage.NotFoundError{Kind: "chunk", ID: id.String()}
	}

	chunk.State = state
	chunk.RegenerationCount = regenerationCount
	return nil
}

func (d *Driver) Tail(_ context.Context) (narrative.ChunkID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var tail narrative.ChunkID
	for id, chunk := range d.chunks {
		if finalized(chunk) && id > tail {
			tail = id
		}
	}
	if tail == 0 {
		return 0, storage.ErrEmptyNarrative
	}
	return tail, nil
}

func (d *Driver) TailChunks(_ context.Context, limit int) ([]*narrative.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*narrative.Chunk
	for _, chunk := range d.chunks {
		if finalized(chunk) {
			result = append(result, cloneChunk(chunk))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (d *Driver) PutMetadata(_ context.Context, meta *narrative.Metadata) error {
	if meta == nil {
		return errors.New("cannot store nil metadata")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.chunks[meta.ChunkID]; !ok {
		return storage.NotFoundError{Kind: "chunk", ID: meta.ChunkID.String()}
	}

	copied := *meta
	d.metadata[meta.ChunkID] = &copied
	return nil
}

func (d *Driver) GetMetadata(_ context.Context, id narrative.ChunkID) (*narrative.Metadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	meta, ok := d.metadata[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "metadata", ID: id.String()}
	}
	copied := *meta
	return &copied, nil
}

// SearchText scores enriched chunks by query-token overlap. Good enough for
// tests; the sqlite and postgres drivers use real FTS.
func (d *Driver) SearchText(_ context.Context, query string, limit int) ([]storage.TextHit, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []storage.TextHit
	for id, chunk := range d.chunks {
		// Only chunks whose metadata write has completed are searchable.
		if _, enriched := d.metadata[id]; !enriched {
			continue
		}

		text := strings.ToLower(chunk.Text)
		matched := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, storage.TextHit{
			ChunkID: id,
			Score:   float64(matched) / float64(len(terms)),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (d *Driver) CreateEntity(_ context.Context, entity *narrative.Entity) (int64, error) {
	if entity == nil {
		return 0, errors.New("cannot store nil entity")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	copied := *entity
	copied.ID = d.nextEntityID
	d.entities[copied.ID] = &copied
	d.aliases[strings.ToLower(copied.Name)] = copied.ID
	d.nextEntityID++

	return copied.ID, nil
}

func (d *Driver) GetEntity(_ context.Context, id int64) (*narrative.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entity, ok := d.entities[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "entity", ID: fmt.Sprintf("%d", id)}
	}
	copied := *entity
	return &copied, nil
}

func (d *Driver) UpdateEntity(_ context.Context, entity *narrative.Entity) error {
	if entity == nil {
		return errors.New("cannot store nil entity")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entities[entity.ID]; !ok {
		return storage.NotFoundError{Kind: "entity", ID: fmt.Sprintf("%d", entity.ID)}
	}
	copied := *entity
	d.entities[entity.ID] = &copied
	return nil
}

func (d *Driver) ListEntities(_ context.Context, kind narrative.EntityKind) ([]*narrative.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*narrative.Entity
	for _, entity := range d.entities {
		if kind != "" && entity.Kind != kind {
			continue
		}
		copied := *entity
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (d *Driver) AddAlias(_ context.Context, entityID int64, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entities[entityID]; !ok {
		return storage.NotFoundError{Kind: "entity", ID: fmt.Sprintf("%d", entityID)}
	}
	d.aliases[strings.ToLower(name)] = entityID
	return nil
}

func (d *Driver) FindEntityByName(_ context.Context, name string) (*narrative.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.aliases[strings.ToLower(name)]
	if !ok {
		return nil, storage.NotFoundError{Kind: "entity", ID: name}
	}
	copied := *d.entities[id]
	return &copied, nil
}

func (d *Driver) WriteRelationshipPair(_ context.Context, forward, reverse narrative.RelationshipEdge) error {
	if forward.Type != reverse.Type || forward.Valence != reverse.Valence {
		return narrative.ErrRelationshipMismatch
	}
	if forward.FromEntityID != reverse.ToEntityID || forward.ToEntityID != reverse.FromEntityID {
		return fmt.Errorf("relationship pair entity ids do not mirror: %w", narrative.ErrRelationshipMismatch)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.edges = append(d.edges, forward, reverse)
	return nil
}

func (d *Driver) Relationships(_ context.Context, entityID int64) ([]narrative.RelationshipEdge, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []narrative.RelationshipEdge
	for _, edge := range d.edges {
		if edge.FromEntityID == entityID {
			result = append(result, edge)
		}
	}
	return result, nil
}

func (d *Driver) LinkEntity(_ context.Context, ref narrative.ChunkEntityRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.chunks[ref.ChunkID]; !ok {
		return storage.NotFoundError{Kind: "chunk", ID: ref.ChunkID.String()}
	}
	if _, ok := d.entities[ref.EntityID]; !ok {
		return storage.NotFoundError{Kind: "entity", ID: fmt.Sprintf("%d", ref.EntityID)}
	}

	d.refs = append(d.refs, ref)
	return nil
}

func (d *Driver) ChunksForEntity(_ context.Context, entityID int64, kind narrative.RefKind) ([]narrative.ChunkID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []narrative.ChunkID
	for _, ref := range d.refs {
		if ref.EntityID != entityID {
			continue
		}
		if kind != "" && ref.Kind != kind {
			continue
		}
		ids = append(ids, ref.ChunkID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ReadOnlyQuery is not supported by the in-memory driver; the planner needs
// a SQL backend. Tests exercise the planner against a scripted executor.
func (d *Driver) ReadOnlyQuery(_ context.Context, _ string) (*storage.QueryRows, error) {
	return nil, errors.New("in-memory driver does not support planner queries")
}

func (d *Driver) SaveTurnTrace(_ context.Context, trace *storage.TurnTrace) error {
	if trace == nil {
		return errors.New("cannot store nil trace")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	copied := *trace
	copied.Payload = append(json.RawMessage(nil), trace.Payload...)
	d.traces[trace.TurnID] = &copied
	return nil
}

func (d *Driver) GetTurnTrace(_ context.Context, turnID string) (*storage.TurnTrace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	trace, ok := d.traces[turnID]
	if !ok {
		return nil, storage.NotFoundError{Kind: "trace", ID: turnID}
	}
	copied := *trace
	return &copied, nil
}

func (d *Driver) ListTurnTraces(_ context.Context, limit int) ([]*storage.TurnTrace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.TurnTrace, 0, len(d.traces))
	for _, trace := range d.traces {
		copied := *trace
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (d *Driver) Close() error {
	return nil
}

func finalized(chunk *narrative.Chunk) bool {
	return chunk.State == narrative.StateFinalized || chunk.State == narrative.StateEmbedded
}

func cloneChunk(chunk *narrative.Chunk) *narrative.Chunk {
	copied := *chunk
	return &copied
}
