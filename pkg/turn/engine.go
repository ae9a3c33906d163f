package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/budget"
	"github.com/papercomputeco/chronicle/pkg/distill"
	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/llm"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/planner"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/utils"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

var (
	// ErrTurnInProgress is returned when input arrives while another turn
	// holds the pipeline.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrNoPendingTurn is returned when Accept or Reject is called with no
	// chunk waiting at the quality checkpoint.
	ErrNoPendingTurn = errors.New("no turn is awaiting review")

	// ErrEmptyInput is returned for blank player input.
	ErrEmptyInput = errors.New("player input is empty")

	// ErrGenerationAbandoned is returned when the generation provider stays
	// unreachable past the offline retry budget. Nothing is committed.
	ErrGenerationAbandoned = errors.New("generation abandoned after offline retries")
)

const (
	defaultWarmLimit         = 12
	defaultOfflineMaxRetries = 6
	defaultOfflineBackoff    = 500 * time.Millisecond
	maxOfflineBackoff        = 30 * time.Second

	generationInstructions = "Continue the story from the player's action. " +
		"Write the next passage of prose only, staying consistent with the " +
		"world state and earlier passages above."
)

// RejectMode selects what a checkpoint rejection does next.
type RejectMode string

const (
	// RejectRegenerate replays the generation call on the identical payload.
	RejectRegenerate RejectMode = "regenerate"

	// RejectEditPrevious rewrites the player's input and restarts the
	// pipeline from warm analysis.
	RejectEditPrevious RejectMode = "edit_previous"
)

// QueryPlanner runs the bounded agentic query loop.
type QueryPlanner interface {
	Plan(ctx context.Context, objective string) (*planner.Evidence, error)
}

// Distiller narrows recalled chunks to the passages worth paying tokens for.
type Distiller interface {
	Distill(ctx context.Context, objective string, subQueries []retrieval.Query) ([]distill.Passage, error)
}

// EntityResolver maps raw name mentions to canonical entities.
type EntityResolver interface {
	ResolveAll(ctx context.Context, mentions []string) ([]*narrative.Entity, error)
}

// Config tunes the engine.
type Config struct {
	// SystemPrompt is the fixed instruction block reserved off the top of
	// every payload.
	SystemPrompt string

	// WarmLimit caps how many recent chunks are fetched as warm slice
	// candidates.
	WarmLimit int

	// OfflineMaxRetries bounds how many times a recoverable generation
	// failure is retried before the turn is abandoned.
	OfflineMaxRetries uint

	// OfflineBackoff is the initial wait before the first retry; it doubles
	// per attempt up to a fixed cap.
	OfflineBackoff time.Duration
}

// Turn is one in-flight (or just-committed) pipeline run.
type Turn struct {
	ID        string       `json:"id"`
	Input     string       `json:"input"`
	StartedAt time.Time    `json:"started_at"`
	State     State        `json:"state"`
	Steps     []StepRecord `json:"steps"`

	Payload *ContextPayload  `json:"payload,omitempty"`
	Draft   *narrative.Chunk `json:"draft,omitempty"`

	Regenerations int  `json:"regenerations"`
	WentOffline   bool `json:"went_offline"`

	entities []*narrative.Entity
	warm     []*narrative.Chunk
	report   string
	evidence *planner.Evidence
	passages []distill.Passage
}

// Engine drives turns through the pipeline. At most one turn is non-idle at
// any moment; concurrent input attempts fail with ErrTurnInProgress rather
// than queueing.
type Engine struct {
	store     storage.Driver
	chunks    *lifecycle.Manager
	resolver  EntityResolver
	planner   QueryPlanner
	distiller Distiller
	allocator *budget.Allocator
	generator llm.Generator
	spaces    []retrieval.Space
	publisher eventstream.Publisher
	logger    *zap.Logger
	cfg       Config

	mu      sync.Mutex
	current *Turn

	enrichWG sync.WaitGroup
}

// NewEngine wires the pipeline. publisher may be nil when no event stream is
// configured.
func NewEngine(
	cfg Config,
	store storage.Driver,
	chunks *lifecycle.Manager,
	resolver EntityResolver,
	queryPlanner QueryPlanner,
	distiller Distiller,
	allocator *budget.Allocator,
	generator llm.Generator,
	spaces []retrieval.Space,
	publisher eventstream.Publisher,
	logger *zap.Logger,
) *Engine {
	if cfg.WarmLimit <= 0 {
		cfg.WarmLimit = defaultWarmLimit
	}
	if cfg.OfflineMaxRetries == 0 {
		cfg.OfflineMaxRetries = defaultOfflineMaxRetries
	}
	if cfg.OfflineBackoff <= 0 {
		cfg.OfflineBackoff = defaultOfflineBackoff
	}

	return &Engine{
		store:     store,
		chunks:    chunks,
		resolver:  resolver,
		planner:   queryPlanner,
		distiller: distiller,
		allocator: allocator,
		generator: generator,
		spaces:    spaces,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
	}
}

// Current returns the in-flight turn, or nil when the engine is idle.
func (e *Engine) Current() *Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// StartTurn runs the pipeline for one player input, stopping at the quality
// checkpoint with a pending draft. The caller then calls Accept or Reject.
// Any failure before the checkpoint abandons the turn and frees the
// pipeline; nothing is finalized.
func (e *Engine) StartTurn(ctx context.Context, input string) (*Turn, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	turn := &Turn{
		ID:        uuid.NewString(),
		Input:     input,
		StartedAt: time.Now().UTC(),
		State:     StateIdle,
	}

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	e.current = turn
	e.mu.Unlock()

	if err := e.runToCheckpoint(ctx, turn, StateUserInput); err != nil {
		e.release(turn)
		return nil, err
	}

	return turn, nil
}

// Accept finalizes the pending draft and integrates it into the narrative.
// Metadata enrichment and embedding run asynchronously; the chunk is part of
// the warm slice as soon as this returns.
func (e *Engine) Accept(ctx context.Context) (*narrative.Chunk, error) {
	turn, err := e.pending()
	if err != nil {
		return nil, err
	}

	// Finalize before stepping: if the commit fails the turn stays at the
	// checkpoint and remains acceptable or rejectable.
	if err := e.chunks.Finalize(ctx, turn.Draft.ID); err != nil {
		return nil, fmt.Errorf("finalizing chunk %s: %w", turn.Draft.ID, err)
	}
	if err := e.step(turn, StateNarrativeIntegration, "player accepted draft"); err != nil {
		return nil, err
	}
	turn.Draft.State = narrative.StateFinalized
	committedAt := time.Now().UTC()

	e.enrichWG.Add(1)
	go e.enrich(turn.Draft.ID, turn.Draft.Text, turn.entities)

	if err := e.saveTrace(ctx, turn, committedAt); err != nil {
		e.logger.Warn("turn trace not persisted", zap.String("turn_id", turn.ID), zap.Error(err))
	}
	e.publish(ctx, turn, committedAt)

	if err := e.step(turn, StateIdle, "turn committed"); err != nil {
		return nil, err
	}
	e.release(turn)

	e.logger.Info("turn committed",
		zap.String("turn_id", turn.ID),
		zap.Int64("chunk_id", int64(turn.Draft.ID)),
		zap.Int("regenerations", turn.Regenerations),
		zap.Bool("went_offline", turn.WentOffline),
	)
	return turn.Draft, nil
}

// Reject sends the pending draft back. RejectRegenerate replays generation
// on the identical payload; RejectEditPrevious replaces the player input and
// reruns the pipeline from warm analysis. Either way the draft chunk is
// revised in place and its regeneration count grows by one.
func (e *Engine) Reject(ctx context.Context, mode RejectMode, editedInput string) (*Turn, error) {
	turn, err := e.pending()
	if err != nil {
		return nil, err
	}

	// Validate the request before touching the chunk lifecycle: a bad mode
	// or blank edit must leave the draft reviewable.
	switch mode {
	case RejectRegenerate:
	case RejectEditPrevious:
		if strings.TrimSpace(editedInput) == "" {
			return nil, ErrEmptyInput
		}
	default:
		return nil, fmt.Errorf("unknown reject mode %q", mode)
	}

	if err := e.chunks.Reject(ctx, turn.Draft.ID); err != nil {
		return nil, fmt.Errorf("rejecting chunk %s: %w", turn.Draft.ID, err)
	}
	turn.Draft.State = narrative.StateDraft
	turn.Draft.RegenerationCount++
	turn.Regenerations++

	switch mode {
	case RejectRegenerate:
		if err := e.regenerate(ctx, turn); err != nil {
			e.release(turn)
			return nil, err
		}

	case RejectEditPrevious:
		turn.Input = editedInput
		entities, err := e.resolver.ResolveAll(ctx, extractMentions(editedInput))
		if err != nil {
			e.release(turn)
			return nil, fmt.Errorf("resolving mentions: %w", err)
		}
		turn.entities = entities
		if err := e.runToCheckpoint(ctx, turn, StateWarmAnalysis); err != nil {
			e.release(turn)
			return nil, err
		}
	}

	return turn, nil
}

// Abort abandons the in-flight turn before integration. A pending draft is
// left in the draft state; it is superseded when the next turn starts. The
// abort is stepped through the state machine and the trace persisted, so
// abandoned turns stay auditable.
func (e *Engine) Abort(ctx context.Context) error {
	e.mu.Lock()
	turn := e.current
	e.mu.Unlock()
	if turn == nil {
		return ErrNoPendingTurn
	}

	if turn.Draft != nil && turn.State == StateQualityCheckpoint {
		if err := e.chunks.Reject(ctx, turn.Draft.ID); err != nil {
			return fmt.Errorf("discarding pending draft: %w", err)
		}
		turn.Draft.State = narrative.StateDraft
	}

	if err := e.step(turn, StateIdle, "turn aborted"); err != nil {
		return err
	}
	if turn.Draft != nil {
		if err := e.saveTrace(ctx, turn, time.Now().UTC()); err != nil {
			e.logger.Warn("turn trace not persisted", zap.String("turn_id", turn.ID), zap.Error(err))
		}
	}
	e.logger.Info("turn aborted", zap.String("turn_id", turn.ID))
	e.release(turn)
	return nil
}

// WaitEnrichment blocks until all in-flight enrichment work has finished.
func (e *Engine) WaitEnrichment() {
	e.enrichWG.Wait()
}

// runToCheckpoint executes the pipeline from the given entry state through
// generation, leaving the turn paused at the quality checkpoint.
func (e *Engine) runToCheckpoint(ctx context.Context, turn *Turn, from State) error {
	type stage struct {
		state State
		run   func(context.Context, *Turn) (string, error)
	}

	stages := []stage{
		{StateUserInput, e.stageUserInput},
		{StateWarmAnalysis, e.stageWarmAnalysis},
		{StateWorldStateReport, e.stageWorldState},
		{StateDeepQueries, e.stageDeepQueries},
		{StateColdDistillation, e.stageDistillation},
		{StatePayloadAssembly, e.stageAssembly},
	}

	started := false
	for _, s := range stages {
		if s.state == from {
			started = true
		}
		if !started {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("turn cancelled at %s: %w", turn.State, err)
		}
		if err := e.step(turn, s.state, ""); err != nil {
			return err
		}
		note, err := s.run(ctx, turn)
		if err != nil {
			return fmt.Errorf("%s: %w", s.state, err)
		}
		turn.Steps[len(turn.Steps)-1].Note = note
	}

	text, err := e.generateWithRetry(ctx, turn)
	if err != nil {
		return err
	}

	if turn.Draft == nil {
		chunk, err := e.chunks.Draft(ctx, text)
		if err != nil {
			return err
		}
		turn.Draft = chunk
	} else {
		if err := e.chunks.ReviseDraft(ctx, turn.Draft.ID, text); err != nil {
			return err
		}
		turn.Draft.Text = text
	}

	if err := e.chunks.SubmitForReview(ctx, turn.Draft.ID); err != nil {
		return err
	}
	turn.Draft.State = narrative.StatePendingReview

	return e.step(turn, StateQualityCheckpoint, fmt.Sprintf("draft %s awaiting review", turn.Draft.ID))
}

// regenerate replays the generation call on the turn's existing payload.
func (e *Engine) regenerate(ctx context.Context, turn *Turn) error {
	text, err := e.generateWithRetry(ctx, turn)
	if err != nil {
		return err
	}
	if err := e.chunks.ReviseDraft(ctx, turn.Draft.ID, text); err != nil {
		return err
	}
	turn.Draft.Text = text
	if err := e.chunks.SubmitForReview(ctx, turn.Draft.ID); err != nil {
		return err
	}
	turn.Draft.State = narrative.StatePendingReview

	return e.step(turn, StateQualityCheckpoint, fmt.Sprintf("draft %s regenerated", turn.Draft.ID))
}

func (e *Engine) stageUserInput(ctx context.Context, turn *Turn) (string, error) {
	mentions := extractMentions(turn.Input)
	entities, err := e.resolver.ResolveAll(ctx, mentions)
	if err != nil {
		return "", fmt.Errorf("resolving mentions: %w", err)
	}
	turn.entities = entities
	return fmt.Sprintf("%d mentions, %d resolved", len(mentions), len(entities)), nil
}

func (e *Engine) stageWarmAnalysis(ctx context.Context, turn *Turn) (string, error) {
	warm, err := e.store.TailChunks(ctx, e.cfg.WarmLimit)
	if err != nil && !errors.Is(err, storage.ErrEmptyNarrative) {
		return "", fmt.Errorf("loading warm slice: %w", err)
	}
	turn.warm = warm
	return fmt.Sprintf("%d recent chunks", len(warm)), nil
}

func (e *Engine) stageWorldState(ctx context.Context, turn *Turn) (string, error) {
	report, err := buildWorldState(ctx, e.store, turn.entities)
	if err != nil {
		return "", err
	}
	turn.report = report
	return fmt.Sprintf("%d entities profiled", len(turn.entities)), nil
}

// stageDeepQueries runs the agentic planner. The planner already absorbs
// what is recoverable (loop guard, step cap, single re-prompt); anything it
// still reports abandons the turn rather than generating on silently
// incomplete evidence.
func (e *Engine) stageDeepQueries(ctx context.Context, turn *Turn) (string, error) {
	evidence, err := e.planner.Plan(ctx, turn.Input)
	if err != nil {
		return "", fmt.Errorf("query planning: %w", err)
	}
	turn.evidence = evidence
	return fmt.Sprintf("%d queries, %s", len(evidence.Steps), evidence.Terminal), nil
}

func (e *Engine) stageDistillation(ctx context.Context, turn *Turn) (string, error) {
	passages, err := e.distiller.Distill(ctx, e.distillObjective(turn), e.subQueries(turn))
	if err != nil {
		return "", fmt.Errorf("distillation: %w", err)
	}
	turn.passages = passages
	return fmt.Sprintf("%d passages kept", len(passages)), nil
}

// subQueries fans the player's input into retrieval queries: the raw input
// plus one focused query per resolved entity.
func (e *Engine) subQueries(turn *Turn) []retrieval.Query {
	ids := make([]int64, 0, len(turn.entities))
	for _, entity := range turn.entities {
		ids = append(ids, entity.ID)
	}

	queries := []retrieval.Query{{Text: turn.Input, Entities: ids}}
	for _, entity := range turn.entities {
		queries = append(queries, retrieval.Query{
			Text:     fmt.Sprintf("%s %s", entity.Name, turn.Input),
			Entities: []int64{entity.ID},
		})
	}
	return queries
}

// distillObjective folds the planner's findings into the relevance objective
// so phase two judges candidates against what the structured evidence
// surfaced, not just the raw input.
func (e *Engine) distillObjective(turn *Turn) string {
	if turn.evidence == nil || len(turn.evidence.Steps) == 0 {
		return turn.Input
	}

	var sb strings.Builder
	sb.WriteString(turn.Input)
	sb.WriteString("\n\nStructured findings:\n")
	for _, step := range turn.evidence.Steps {
		sb.WriteString("- ")
		sb.WriteString(step.Summary)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stageAssembly spends the token budget and lays out the payload blocks.
func (e *Engine) stageAssembly(_ context.Context, turn *Turn) (string, error) {
	alloc, err := e.allocator.Allocate(
		budget.Reserved{System: e.cfg.SystemPrompt, UserInput: turn.Input},
		budget.Signals{
			DistilledCount:  len(turn.passages),
			EntityCount:     len(turn.entities),
			SceneContinuity: len(turn.warm) > 0,
		},
	)
	if err != nil {
		return "", fmt.Errorf("allocating budget: %w", err)
	}

	warm := e.allocator.WarmSlice(turn.warm, alloc.WarmTokens)

	inWarm := make(map[narrative.ChunkID]bool, len(warm))
	for _, chunk := range warm {
		inWarm[chunk.ID] = true
	}

	scored := make([]budget.ScoredChunk, 0, len(turn.passages))
	for _, passage := range turn.passages {
		if inWarm[passage.Chunk.ID] {
			continue
		}
		scored = append(scored, budget.ScoredChunk{Chunk: passage.Chunk, Relevance: passage.Relevance})
	}
	passages := e.allocator.SelectPassages(scored, alloc.PassagesTokens)

	report := utils.Truncate(turn.report, budget.TokensToChars(alloc.StructuredTokens))

	blocks := []Block{{Kind: BlockSystem, Text: e.cfg.SystemPrompt}}
	if report != "" {
		blocks = append(blocks, Block{Kind: BlockWorldState, Text: report})
	}
	for _, chunk := range passages {
		blocks = append(blocks, Block{Kind: BlockPassage, Text: chunk.Text, ChunkID: chunk.ID})
	}
	for _, chunk := range warm {
		blocks = append(blocks, Block{Kind: BlockWarm, Text: chunk.Text, ChunkID: chunk.ID})
	}
	blocks = append(blocks, Block{Kind: BlockUserInput, Text: turn.Input})

	turn.Payload = &ContextPayload{Blocks: blocks, Allocation: alloc}

	return fmt.Sprintf("%d passages, %d warm chunks, %d payload tokens",
		len(passages), len(warm), alloc.PayloadTokens), nil
}

// generateWithRetry calls the generator, riding out recoverable transport
// failures in offline mode with doubling backoff. Unrecoverable errors and
// an exhausted retry budget abandon the turn; nothing is ever committed
// while offline.
func (e *Engine) generateWithRetry(ctx context.Context, turn *Turn) (string, error) {
	if err := e.step(turn, StateGenerationCall, "calling generation model"); err != nil {
		return "", err
	}

	req := &llm.GenerationRequest{
		System:       e.cfg.SystemPrompt,
		Payload:      turn.Payload.Render(),
		Instructions: generationInstructions,
	}

	backoff := e.cfg.OfflineBackoff
	for attempt := uint(0); ; attempt++ {
		resp, err := e.generator.Generate(ctx, req)
		if err == nil {
			return resp.Text, nil
		}
		if !llm.Recoverable(err) {
			return "", fmt.Errorf("generation failed: %w", err)
		}

		if attempt >= e.cfg.OfflineMaxRetries {
			return "", fmt.Errorf("%w: %v", ErrGenerationAbandoned, err)
		}

		turn.WentOffline = true
		if err := e.step(turn, StateOfflineMode, fmt.Sprintf("provider unreachable, retry %d in %s", attempt+1, backoff)); err != nil {
			return "", err
		}
		e.logger.Warn("generation provider offline",
			zap.String("turn_id", turn.ID),
			zap.Uint("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)

		if err := sleep(ctx, backoff); err != nil {
			return "", fmt.Errorf("turn cancelled while offline: %w", err)
		}
		backoff *= 2
		if backoff > maxOfflineBackoff {
			backoff = maxOfflineBackoff
		}

		if err := e.step(turn, StateGenerationCall, "retrying generation"); err != nil {
			return "", err
		}
	}
}

// enrich writes a chunk's metadata and embeds it in every configured space,
// then marks the chunk embedded. Runs after integration so the player never
// waits on it; failures leave the chunk finalized-but-unembedded, which
// degrades retrieval without losing prose.
func (e *Engine) enrich(id narrative.ChunkID, text string, entities []*narrative.Entity) {
	defer e.enrichWG.Done()

	ctx := context.Background()

	meta := &narrative.Metadata{
		ChunkID: id,
		Slug:    utils.Truncate(strings.Join(strings.Fields(text), " "), 48),
	}
	if err := e.store.PutMetadata(ctx, meta); err != nil {
		e.logger.Warn("metadata enrichment failed", zap.Int64("chunk_id", int64(id)), zap.Error(err))
		return
	}

	for _, entity := range entities {
		ref := narrative.ChunkEntityRef{ChunkID: id, EntityID: entity.ID, Kind: narrative.RefPresent}
		if err := e.store.LinkEntity(ctx, ref); err != nil {
			e.logger.Warn("entity link failed",
				zap.Int64("chunk_id", int64(id)),
				zap.Int64("entity_id", entity.ID),
				zap.Error(err),
			)
		}
	}

	for _, space := range e.spaces {
		embedding, err := space.Embedder.Embed(ctx, text)
		if err != nil {
			e.logger.Warn("embedding failed",
				zap.Int64("chunk_id", int64(id)),
				zap.String("model_id", space.ModelID),
				zap.Error(err),
			)
			return
		}
		doc := vector.Document{ChunkID: id, ModelID: space.ModelID, Embedding: embedding}
		if err := space.Store.Add(ctx, []vector.Document{doc}); err != nil {
			e.logger.Warn("vector write failed",
				zap.Int64("chunk_id", int64(id)),
				zap.String("model_id", space.ModelID),
				zap.Error(err),
			)
			return
		}
	}

	if err := e.chunks.MarkEmbedded(ctx, id); err != nil {
		e.logger.Warn("embedded transition failed", zap.Int64("chunk_id", int64(id)), zap.Error(err))
	}
}

// turnTrace is the persisted audit record shape.
type turnTrace struct {
	TurnID        string            `json:"turn_id"`
	Input         string            `json:"input"`
	StartedAt     time.Time         `json:"started_at"`
	CommittedAt   time.Time         `json:"committed_at"`
	ChunkID       narrative.ChunkID `json:"chunk_id"`
	Regenerations int               `json:"regenerations"`
	WentOffline   bool              `json:"went_offline"`
	Steps         []StepRecord      `json:"steps"`
	Payload       *ContextPayload   `json:"payload"`
}

func (e *Engine) saveTrace(ctx context.Context, turn *Turn, committedAt time.Time) error {
	payload, err := json.Marshal(turnTrace{
		TurnID:        turn.ID,
		Input:         turn.Input,
		StartedAt:     turn.StartedAt,
		CommittedAt:   committedAt,
		ChunkID:       turn.Draft.ID,
		Regenerations: turn.Regenerations,
		WentOffline:   turn.WentOffline,
		Steps:         turn.Steps,
		Payload:       turn.Payload,
	})
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}

	return e.store.SaveTurnTrace(ctx, &storage.TurnTrace{
		TurnID:    turn.ID,
		CreatedAt: committedAt,
		Payload:   payload,
	})
}

func (e *Engine) publish(ctx context.Context, turn *Turn, committedAt time.Time) {
	if e.publisher == nil {
		return
	}

	alloc := turn.Payload.Allocation
	event := &eventstream.TurnCommittedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnCommitted,
		EventID:       uuid.NewString(),
		EmittedAt:     committedAt,
		Turn: eventstream.TurnMeta{
			TurnID:        turn.ID,
			StartedAt:     turn.StartedAt,
			CommittedAt:   committedAt,
			DurationMs:    committedAt.Sub(turn.StartedAt).Milliseconds(),
			Regenerations: turn.Regenerations,
			WentOffline:   turn.WentOffline,
		},
		Chunk: eventstream.ChunkMeta{
			ChunkID: turn.Draft.ID,
			State:   turn.Draft.State,
		},
		Budget: eventstream.BudgetMeta{
			PayloadTokens:    alloc.PayloadTokens,
			StructuredTokens: alloc.StructuredTokens,
			PassagesTokens:   alloc.PassagesTokens,
			WarmTokens:       alloc.WarmTokens,
			Justification:    alloc.Justification,
		},
	}

	if err := e.publisher.PublishTurn(ctx, event); err != nil {
		e.logger.Warn("turn event not published", zap.String("turn_id", turn.ID), zap.Error(err))
	}
}

// pending returns the turn waiting at the quality checkpoint.
func (e *Engine) pending() (*Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.State != StateQualityCheckpoint {
		return nil, ErrNoPendingTurn
	}
	return e.current, nil
}

// step validates and records a state transition on the turn.
func (e *Engine) step(turn *Turn, to State, note string) error {
	if !CanTransition(turn.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTurnTransition, turn.State, to)
	}
	turn.State = to
	turn.Steps = append(turn.Steps, StepRecord{State: to, Note: note, At: time.Now().UTC()})
	e.logger.Debug("turn state", zap.String("turn_id", turn.ID), zap.String("state", string(to)))
	return nil
}

// release frees the pipeline for the next turn.
func (e *Engine) release(turn *Turn) {
	e.mu.Lock()
	if e.current == turn {
		e.current = nil
	}
	e.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
