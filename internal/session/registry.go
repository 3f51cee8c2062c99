//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package session keeps the per-topic state of completed analyses: the
// report, its retrieval index, the conversation memory and the transcript.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pgEdge/venture-scout/internal/rag"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// closeTimeout bounds releasing an evicted or replaced index.
const closeTimeout = 30 * time.Second

var (
	// ErrTopicNotFound is returned for topics with no stored analysis.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrRAGUnavailable is returned when a topic has no retrieval index.
	ErrRAGUnavailable = errors.New("question answering is not available for this topic")

	// ErrEmptyQuestion is returned when recording a turn without a question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrSessionReplaced is returned for writes through a session whose
	// topic was re-analyzed, evicted or deleted after it was obtained.
	ErrSessionReplaced = errors.New("topic was re-analyzed while the request was in progress")

	// ErrMemoryMismatch is returned when recorded memory does not extend
	// the session's memory by exactly the recorded turn.
	ErrMemoryMismatch = errors.New("memory does not extend the session memory")
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Info describes a stored analysis.
type Info struct {
	Topic        string    `json:"topic"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	RAGAvailable bool      `json:"rag_available"`
	Turns        int       `json:"turns"`
}

// Config configures a Registry.
type Config struct {
	// MaxTopics bounds the number of stored topics; the least recently
	// used topic is evicted when it is exceeded. 0 means unbounded.
	MaxTopics int
	Logger    *slog.Logger
}

type entry struct {
	mu         sync.RWMutex
	topic      string
	artifact   string
	model      rag.Model
	index      *rag.Index
	memory     []rag.Turn
	transcript []Message
	createdAt  time.Time
	updatedAt  time.Time

	// retired is set, under the registry lock, when the entry leaves the
	// map. A retired entry accepts no writes.
	retired bool

	// qa serializes question answering on the topic. The index of a
	// retired entry is released only while qa is held.
	qa sync.Mutex

	// lastUsed is the registry clock value of the latest access.
	lastUsed atomic.Uint64
}

func (e *entry) info() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Info{
		Topic:        e.topic,
		CreatedAt:    e.createdAt,
		UpdatedAt:    e.updatedAt,
		RAGAvailable: e.index != nil,
		Turns:        len(e.memory),
	}
}

// Registry maps exact topic strings to their sessions. The registry lock
// only guards the map; each session has its own lock.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*entry
	maxTopics int
	logger    *slog.Logger

	clock atomic.Uint64

	// releasing tracks indexes waiting for an in-flight question before
	// they are closed.
	releasing sync.WaitGroup

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (r *Registry) touch(e *entry) {
	e.lastUsed.Store(r.clock.Add(1))
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		entries:   make(map[string]*entry),
		maxTopics: cfg.MaxTopics,
		logger:    cfg.Logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

func (r *Registry) newID(t time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}

func (r *Registry) get(topic string) (*entry, error) {
	r.mu.Lock()
	e, ok := r.entries[topic]
	r.mu.Unlock()
	if !ok {
		return nil, ErrTopicNotFound
	}
	r.touch(e)
	return e, nil
}

// Put stores the report for topic, replacing any previous session for it,
// and returns the new session. A replaced or evicted session is retired:
// writes through its handles fail with ErrSessionReplaced, and its index
// is closed once no question on it is in flight.
func (r *Registry) Put(topic, artifact string) *Session {
	now := time.Now()
	e := &entry{
		topic:     topic,
		artifact:  artifact,
		createdAt: now,
		updatedAt: now,
	}
	r.touch(e)

	var retired []*entry

	r.mu.Lock()
	if old, ok := r.entries[topic]; ok {
		old.retire()
		retired = append(retired, old)
	}
	r.entries[topic] = e
	if r.maxTopics > 0 {
		for len(r.entries) > r.maxTopics {
			victim := r.leastRecentlyUsed(topic)
			if victim == nil {
				break
			}
			delete(r.entries, victim.topic)
			victim.retire()
			retired = append(retired, victim)
			r.logger.Info("evicted topic session", "topic", victim.topic)
		}
	}
	r.mu.Unlock()

	for _, old := range retired {
		r.releaseWhenIdle(old)
	}
	return &Session{r: r, e: e}
}

// leastRecentlyUsed returns the stalest entry other than keep. The caller
// holds r.mu.
func (r *Registry) leastRecentlyUsed(keep string) *entry {
	var victim *entry
	for topic, e := range r.entries {
		if topic == keep {
			continue
		}
		if victim == nil || e.lastUsed.Load() < victim.lastUsed.Load() ||
			(e.lastUsed.Load() == victim.lastUsed.Load() && topic < victim.topic) {
			victim = e
		}
	}
	return victim
}

func (e *entry) retire() {
	e.mu.Lock()
	e.retired = true
	e.mu.Unlock()
}

func (e *entry) detachIndex() *rag.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.index
	e.index = nil
	return idx
}

// releaseWhenIdle closes the index of a retired entry now if no question
// holds it, otherwise after the running question finishes.
func (r *Registry) releaseWhenIdle(e *entry) {
	if e.qa.TryLock() {
		idx := e.detachIndex()
		e.qa.Unlock()
		r.release(idx)
		return
	}

	r.releasing.Add(1)
	go func() {
		defer r.releasing.Done()
		e.qa.Lock()
		idx := e.detachIndex()
		e.qa.Unlock()
		r.release(idx)
	}()
}

func (r *Registry) release(indexes ...*rag.Index) {
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := idx.Close(ctx); err != nil {
			r.logger.Warn("failed to release index", "error", err)
		}
		cancel()
	}
}

// Session returns a handle to the current session of topic.
func (r *Registry) Session(topic string) (*Session, error) {
	e, err := r.get(topic)
	if err != nil {
		return nil, err
	}
	return &Session{r: r, e: e}, nil
}

// Artifact returns the stored report for topic.
func (r *Registry) Artifact(topic string) (string, bool) {
	s, err := r.Session(topic)
	if err != nil {
		return "", false
	}
	return s.Artifact(), true
}

// AttachRAG sets the retrieval index and initial memory for topic.
func (r *Registry) AttachRAG(topic string, idx *rag.Index, memory []rag.Turn) error {
	s, err := r.Session(topic)
	if err != nil {
		return err
	}
	return s.AttachRAG(idx, memory)
}

// RecordTurn appends a question and its answer to the topic's memory and
// transcript as one step. Nothing is appended on error.
func (r *Registry) RecordTurn(topic, question, answer string) error {
	if question == "" {
		return ErrEmptyQuestion
	}
	s, err := r.Session(topic)
	if err != nil {
		return err
	}
	return s.appendTurn(rag.Turn{Question: question, Answer: answer}, nil)
}

// History returns a copy of the topic's transcript, oldest first.
func (r *Registry) History(topic string) []Message {
	s, err := r.Session(topic)
	if err != nil {
		return nil
	}
	return s.History()
}

// Memory returns a copy of the topic's conversation memory.
func (r *Registry) Memory(topic string) ([]rag.Turn, error) {
	s, err := r.Session(topic)
	if err != nil {
		return nil, err
	}
	return s.Memory(), nil
}

// Index returns the topic's retrieval index.
func (r *Registry) Index(topic string) (*rag.Index, error) {
	s, err := r.Session(topic)
	if err != nil {
		return nil, err
	}
	return s.Index()
}

// Info returns the description of one topic.
func (r *Registry) Info(topic string) (Info, error) {
	e, err := r.get(topic)
	if err != nil {
		return Info{}, err
	}
	return e.info(), nil
}

// Topics lists stored analyses, most recently updated first.
func (r *Registry) Topics() []Info {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	infos := make([]Info, len(entries))
	for i, e := range entries {
		infos[i] = e.info()
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].Topic < infos[j].Topic
	})
	return infos
}

// Delete removes topic and releases its index.
func (r *Registry) Delete(topic string) error {
	r.mu.Lock()
	e, ok := r.entries[topic]
	if ok {
		delete(r.entries, topic)
		e.retire()
	}
	r.mu.Unlock()
	if !ok {
		return ErrTopicNotFound
	}
	r.releaseWhenIdle(e)
	return nil
}

// WithTopic runs fn with the topic's current session while holding its
// question lock, so calls for one topic run one at a time while different
// topics proceed in parallel. The registry lock is not held while fn runs.
// If the topic is replaced while fn runs, writes through the session fail
// with ErrSessionReplaced and its index stays open until fn returns.
func (r *Registry) WithTopic(topic string, fn func(*Session) error) error {
	for {
		e, err := r.get(topic)
		if err != nil {
			return err
		}
		if ran, err := r.runLocked(e, fn); ran {
			return err
		}
		// Replaced while waiting for the lock; use the new session.
	}
}

// runLocked runs fn on e under its question lock unless e was retired
// while the lock was awaited.
func (r *Registry) runLocked(e *entry, fn func(*Session) error) (bool, error) {
	e.qa.Lock()
	defer e.qa.Unlock()
	if e.isRetired() {
		return false, nil
	}
	return true, fn(&Session{r: r, e: e})
}

func (e *entry) isRetired() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retired
}

// Len returns the number of stored topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close releases every stored index and empties the registry. It waits
// for questions in flight on retired sessions to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	for _, e := range entries {
		e.retire()
	}
	r.mu.Unlock()

	for _, e := range entries {
		r.releaseWhenIdle(e)
	}
	r.releasing.Wait()
}

// Session is a handle to one stored analysis of a topic. It stays bound to
// that analysis: after the topic is re-analyzed, evicted or deleted, reads
// return the retired state and writes fail with ErrSessionReplaced.
type Session struct {
	r *Registry
	e *entry
}

// Topic returns the session's topic.
func (s *Session) Topic() string { return s.e.topic }

// Info describes the session.
func (s *Session) Info() Info { return s.e.info() }

// Artifact returns the session's report.
func (s *Session) Artifact() string {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	return s.e.artifact
}

// Model returns the model questions on the session are answered with.
func (s *Session) Model() rag.Model {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	return s.e.model
}

// SetModel sets the model questions on the session are answered with.
func (s *Session) SetModel(m rag.Model) error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.e.retired {
		return ErrSessionReplaced
	}
	s.e.model = m
	return nil
}

// AttachRAG sets the retrieval index and initial memory of the session.
// On error the caller still owns idx.
func (s *Session) AttachRAG(idx *rag.Index, memory []rag.Turn) error {
	e := s.e
	e.mu.Lock()
	if e.retired {
		e.mu.Unlock()
		return ErrSessionReplaced
	}
	old := e.index
	e.index = idx
	e.memory = append([]rag.Turn(nil), memory...)
	e.updatedAt = time.Now()
	e.mu.Unlock()

	if old != idx {
		s.r.release(old)
	}
	return nil
}

// Index returns the session's retrieval index.
func (s *Session) Index() (*rag.Index, error) {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	if s.e.retired {
		return nil, ErrSessionReplaced
	}
	if s.e.index == nil {
		return nil, ErrRAGUnavailable
	}
	return s.e.index, nil
}

// Memory returns a copy of the session's conversation memory.
func (s *Session) Memory() []rag.Turn {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	return append([]rag.Turn(nil), s.e.memory...)
}

// History returns a copy of the session's transcript, oldest first.
func (s *Session) History() []Message {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	return append([]Message(nil), s.e.transcript...)
}

// RecordTurn stores memory, which must be the session's memory followed by
// exactly one new turn, and appends that turn to the transcript.
func (s *Session) RecordTurn(memory []rag.Turn) error {
	if len(memory) == 0 {
		return ErrMemoryMismatch
	}
	turn := memory[len(memory)-1]
	if turn.Question == "" {
		return ErrEmptyQuestion
	}
	return s.appendTurn(turn, memory)
}

// appendTurn records turn. When memory is not nil it replaces the stored
// memory after checking that it extends it by turn.
func (s *Session) appendTurn(turn rag.Turn, memory []rag.Turn) error {
	now := time.Now()
	user := Message{ID: s.r.newID(now), Role: RoleUser, Content: turn.Question, CreatedAt: now}
	assistant := Message{ID: s.r.newID(now), Role: RoleAssistant, Content: turn.Answer, CreatedAt: now}

	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return ErrSessionReplaced
	}
	if e.index == nil {
		return ErrRAGUnavailable
	}
	if memory == nil {
		e.memory = append(e.memory, turn)
	} else {
		if !extends(memory, e.memory) {
			return ErrMemoryMismatch
		}
		e.memory = append([]rag.Turn(nil), memory...)
	}
	e.transcript = append(e.transcript, user, assistant)
	e.updatedAt = now
	return nil
}

// extends reports whether next is prev followed by one turn.
func extends(next, prev []rag.Turn) bool {
	if len(next) != len(prev)+1 {
		return false
	}
	for i := range prev {
		if next[i] != prev[i] {
			return false
		}
	}
	return true
}
