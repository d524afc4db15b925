// Package store keeps per-identity conversation threads: an in-memory map of
// identity to threads plus the active thread marker, persisted to a local
// sqlite key-value table on every mutation.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foundry-kitchen/concierge/pkg/core"
	"github.com/foundry-kitchen/concierge/pkg/core/types"
)

const (
	conversationsKeyPrefix = "conversations_"
	activeThreadKeyPrefix  = "activeThread_"
)

// identityState is the in-memory working set for one identity.
type identityState struct {
	threads map[string]*types.Thread
	active  string
}

// Store is safe for concurrent use. A nil database keeps everything in
// memory, which is what tests and ephemeral deployments use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time
	newID  func() string

	mu         sync.Mutex
	identities map[string]*identityState
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithIDSource overrides thread id generation.
func WithIDSource(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a store over db, which may be nil for memory-only operation.
func New(db *sql.DB, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:         db,
		logger:     logger,
		nowFn:      time.Now,
		newID:      newThreadID,
		identities: make(map[string]*identityState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if db != nil {
		if err := initSchema(db); err != nil {
			return nil, fmt.Errorf("init store schema: %w", err)
		}
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// newThreadID issues time-sortable ids so recency ordering survives a
// round trip through persistence even when timestamps collide.
func newThreadID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ResolveIdentity loads the identity's persisted threads into memory if not
// already loaded, then starts a fresh active thread. Every login gets a new
// thread; earlier threads stay listed and switchable.
func (s *Store) ResolveIdentity(identity string) (*types.Thread, error) {
	if identity == "" {
		return nil, core.NewInvalidRequestError("identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.identities[identity]
	if !ok {
		loaded, err := s.load(identity)
		if err != nil {
			return nil, err
		}
		state = loaded
		s.identities[identity] = state
	}

	now := s.nowFn().UTC()
	thread := &types.Thread{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	state.threads[thread.ID] = thread
	state.active = thread.ID

	s.persist(identity, state)
	return thread.Clone(), nil
}

// CreateThread starts a new thread for the identity and makes it active.
func (s *Store) CreateThread(identity string) (*types.Thread, error) {
	if identity == "" {
		return nil, core.NewInvalidRequestError("identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	now := s.nowFn().UTC()
	thread := &types.Thread{
		ID:        s.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	state.threads[thread.ID] = thread
	state.active = thread.ID

	s.persist(identity, state)
	return thread.Clone(), nil
}

// AppendTurns adds turns to the end of a thread. Existing turns are never
// rewritten; history only grows.
func (s *Store) AppendTurns(identity, threadID string, turns []types.Turn) (*types.Thread, error) {
	if len(turns) == 0 {
		return s.Thread(identity, threadID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	thread, ok := state.threads[threadID]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("thread %s not found", threadID))
	}

	combined := append(types.CloneTurns(thread.Turns), turns...)
	if err := types.ValidateTurns(combined); err != nil {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("invalid turn sequence: %v", err))
	}
	thread.Turns = combined
	thread.UpdatedAt = s.nowFn().UTC()

	s.persist(identity, state)
	return thread.Clone(), nil
}

// SwitchActive makes an existing thread the identity's active thread.
func (s *Store) SwitchActive(identity, threadID string) (*types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	thread, ok := state.threads[threadID]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("thread %s not found", threadID))
	}
	state.active = threadID

	s.persist(identity, state)
	return thread.Clone(), nil
}

// ActiveThread returns the identity's active thread.
func (s *Store) ActiveThread(identity string) (*types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	if state.active == "" {
		return nil, core.NewNotFoundError("no active thread")
	}
	thread, ok := state.threads[state.active]
	if !ok {
		return nil, core.NewNotFoundError("no active thread")
	}
	return thread.Clone(), nil
}

// Thread returns one thread by id.
func (s *Store) Thread(identity, threadID string) (*types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	thread, ok := state.threads[threadID]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("thread %s not found", threadID))
	}
	return thread.Clone(), nil
}

// ListThreads returns the identity's threads, most recently updated first.
func (s *Store) ListThreads(identity string) ([]*types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(identity)
	out := make([]*types.Thread, 0, len(state.threads))
	for _, thread := range state.threads {
		out = append(out, thread.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Release drops the identity's in-memory state. Persisted threads reload on
// the next ResolveIdentity.
func (s *Store) Release(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, identity)
}

// stateLocked returns the identity's working set, loading it from the
// database on first touch. Load failures fall back to an empty state so a
// corrupt row degrades to a fresh history instead of a dead identity.
func (s *Store) stateLocked(identity string) *identityState {
	if state, ok := s.identities[identity]; ok {
		return state
	}
	state, err := s.load(identity)
	if err != nil {
		s.logger.Warn("conversation load failed, starting empty",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
		state = &identityState{threads: make(map[string]*types.Thread)}
	}
	s.identities[identity] = state
	return state
}

func (s *Store) load(identity string) (*identityState, error) {
	state := &identityState{threads: make(map[string]*types.Thread)}
	if s.db == nil {
		return state, nil
	}

	raw, err := s.getValue(conversationsKeyPrefix + identity)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.threads); err != nil {
			return nil, fmt.Errorf("decode conversations for %s: %w", identity, err)
		}
		for id, thread := range state.threads {
			if thread == nil {
				delete(state.threads, id)
				continue
			}
			thread.ID = id
		}
	}

	active, err := s.getValue(activeThreadKeyPrefix + identity)
	if err != nil {
		return nil, err
	}
	if _, ok := state.threads[active]; ok {
		state.active = active
	}
	return state, nil
}

func (s *Store) getValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// persist writes the identity's full state. Failures are logged and
// swallowed: the in-memory conversation keeps working and the next mutation
// retries the write.
func (s *Store) persist(identity string, state *identityState) {
	if s.db == nil {
		return
	}

	encoded, err := json.Marshal(state.threads)
	if err != nil {
		s.logger.Error("conversation encode failed",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("conversation persist failed",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
		return
	}
	defer tx.Rollback()

	upsert := `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, conversationsKeyPrefix+identity, string(encoded)); err != nil {
		s.logger.Error("conversation persist failed",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
		return
	}
	if _, err := tx.Exec(upsert, activeThreadKeyPrefix+identity, state.active); err != nil {
		s.logger.Error("conversation persist failed",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("conversation persist failed",
			"identity", identity, "code", core.CodePersistenceFailed, "error", err)
	}
}
