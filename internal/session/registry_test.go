//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pgEdge/venture-scout/internal/index"
	"github.com/pgEdge/venture-scout/internal/rag"
)

// closeCounter is a vector index that records Close calls.
type closeCounter struct {
	closed atomic.Int32
}

func (c *closeCounter) Search(context.Context, index.Query, int) ([]index.Match, error) {
	return nil, nil
}

func (c *closeCounter) Chunks() []string { return nil }

func (c *closeCounter) Close(context.Context) error {
	c.closed.Add(1)
	return nil
}

func newIndex() (*rag.Index, *closeCounter) {
	c := &closeCounter{}
	return &rag.Index{Vector: c}, c
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(Config{})

	if _, ok := r.Artifact("AI in healthcare"); ok {
		t.Fatal("expected no artifact before Put")
	}
	if err := r.RecordTurn("AI in healthcare", "q", "a"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}

	r.Put("AI in healthcare", "# MARKET ANALYSIS\n...")
	got, ok := r.Artifact("AI in healthcare")
	if !ok || got != "# MARKET ANALYSIS\n..." {
		t.Errorf("unexpected artifact %q, %v", got, ok)
	}

	// Keys are exact strings.
	if _, ok := r.Artifact("ai in healthcare"); ok {
		t.Error("topic lookup must be case sensitive")
	}

	if _, err := r.Index("AI in healthcare"); !errors.Is(err, ErrRAGUnavailable) {
		t.Errorf("expected ErrRAGUnavailable before AttachRAG, got %v", err)
	}
	if err := r.RecordTurn("AI in healthcare", "q", "a"); !errors.Is(err, ErrRAGUnavailable) {
		t.Errorf("expected ErrRAGUnavailable, got %v", err)
	}
	if len(r.History("AI in healthcare")) != 0 {
		t.Error("failed turns must not be recorded")
	}

	idx, _ := newIndex()
	if err := r.AttachRAG("AI in healthcare", idx, nil); err != nil {
		t.Fatalf("AttachRAG failed: %v", err)
	}
	if err := r.RecordTurn("AI in healthcare", "", "a"); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
	if err := r.RecordTurn("AI in healthcare", "What is the initial investment?", "$2M"); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	history := r.History("AI in healthcare")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("unexpected roles %s, %s", history[0].Role, history[1].Role)
	}
	if history[0].ID == "" || history[0].ID >= history[1].ID {
		t.Errorf("message IDs must be increasing: %q, %q", history[0].ID, history[1].ID)
	}

	mem, err := r.Memory("AI in healthcare")
	if err != nil || len(mem) != 1 || mem[0].Answer != "$2M" {
		t.Errorf("unexpected memory %+v, %v", mem, err)
	}

	info, err := r.Info("AI in healthcare")
	if err != nil || !info.RAGAvailable || info.Turns != 1 {
		t.Errorf("unexpected info %+v, %v", info, err)
	}
}

func TestRegistry_CopiesAreIndependent(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("topic", "report")
	idx, _ := newIndex()
	initial := []rag.Turn{{Question: "q0", Answer: "a0"}}
	if err := r.AttachRAG("topic", idx, initial); err != nil {
		t.Fatal(err)
	}
	initial[0].Answer = "changed"

	mem, _ := r.Memory("topic")
	if mem[0].Answer != "a0" {
		t.Error("AttachRAG must copy the initial memory")
	}
	mem[0].Answer = "changed again"
	if again, _ := r.Memory("topic"); again[0].Answer != "a0" {
		t.Error("Memory must return a copy")
	}

	_ = r.RecordTurn("topic", "q1", "a1")
	h := r.History("topic")
	h[0].Content = "tampered"
	if r.History("topic")[0].Content != "q1" {
		t.Error("History must return a copy")
	}
}

func TestRegistry_PutReplacesSession(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("topic", "first")
	idx, counter := newIndex()
	_ = r.AttachRAG("topic", idx, nil)
	_ = r.RecordTurn("topic", "q", "a")

	r.Put("topic", "second")

	if counter.closed.Load() != 1 {
		t.Errorf("replaced index should be closed once, got %d", counter.closed.Load())
	}
	if got, _ := r.Artifact("topic"); got != "second" {
		t.Errorf("expected new artifact, got %q", got)
	}
	if len(r.History("topic")) != 0 {
		t.Error("re-running a topic should start a fresh transcript")
	}
}

func TestRegistry_Isolation(t *testing.T) {
	r := NewRegistry(Config{})
	for _, topic := range []string{"A", "B"} {
		r.Put(topic, "report "+topic)
		idx, _ := newIndex()
		_ = r.AttachRAG(topic, idx, nil)
	}

	for i := 0; i < 3; i++ {
		if err := r.RecordTurn("A", fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(r.History("B")); got != 0 {
		t.Errorf("questions on A must not affect B, got %d messages", got)
	}
	if mem, _ := r.Memory("B"); len(mem) != 0 {
		t.Errorf("B memory should be empty, got %d turns", len(mem))
	}
	if got := len(r.History("A")); got != 6 {
		t.Errorf("expected 6 messages for A, got %d", got)
	}
}

func TestRegistry_ConcurrentReadersSeeWholeTurns(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("topic", "report")
	idx, _ := newIndex()
	_ = r.AttachRAG("topic", idx, nil)

	const turns = 200
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	done := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-done:
					return
				default:
				}
				n := len(r.History("topic"))
				if n%2 != 0 {
					errs <- fmt.Errorf("observed odd history length %d", n)
					return
				}
				if n < last {
					errs <- fmt.Errorf("history shrank from %d to %d", last, n)
					return
				}
				last = n
			}
		}()
	}

	for i := 0; i < turns; i++ {
		if err := r.RecordTurn("topic", fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatal(err)
		}
	}
	close(done)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := len(r.History("topic")); got != 2*turns {
		t.Errorf("expected %d messages, got %d", 2*turns, got)
	}
}

func TestRegistry_WithTopicSerializes(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("A", "report")
	r.Put("B", "report")

	if err := r.WithTopic("missing", func(*Session) error { return nil }); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.WithTopic("A", func(*Session) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				// A different topic is not blocked.
				if err := r.WithTopic("B", func(*Session) error { return nil }); err != nil {
					t.Error(err)
				}
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("expected one caller at a time, saw %d", maxInside.Load())
	}

	sentinel := errors.New("boom")
	if err := r.WithTopic("A", func(*Session) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}

func TestRegistry_Eviction(t *testing.T) {
	r := NewRegistry(Config{MaxTopics: 2})

	r.Put("first", "1")
	idx, counter := newIndex()
	_ = r.AttachRAG("first", idx, nil)
	r.Put("second", "2")

	// Touch "first" so "second" becomes the least recently used.
	if _, ok := r.Artifact("first"); !ok {
		t.Fatal("first should be stored")
	}
	r.Put("third", "3")

	if r.Len() != 2 {
		t.Fatalf("expected 2 topics, got %d", r.Len())
	}
	if _, ok := r.Artifact("second"); ok {
		t.Error("second should have been evicted")
	}
	if _, ok := r.Artifact("first"); !ok {
		t.Error("first should survive")
	}

	r.Put("fourth", "4")
	if _, ok := r.Artifact("third"); ok {
		t.Error("third should have been evicted")
	}
	if counter.closed.Load() != 0 {
		t.Error("index of a live topic must not be closed")
	}

	r.Put("fifth", "5")
	if counter.closed.Load() != 1 {
		t.Errorf("evicted index should be closed once, got %d", counter.closed.Load())
	}
}

func TestRegistry_TopicsAndDelete(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("older", "1")
	r.Put("newer", "2")
	idx, counter := newIndex()
	_ = r.AttachRAG("newer", idx, nil)

	infos := r.Topics()
	if len(infos) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(infos))
	}
	if infos[0].Topic != "newer" || !infos[0].RAGAvailable {
		t.Errorf("expected most recently updated topic first, got %+v", infos[0])
	}

	if err := r.Delete("newer"); err != nil {
		t.Fatal(err)
	}
	if counter.closed.Load() != 1 {
		t.Error("Delete should close the index")
	}
	if err := r.Delete("newer"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}

	r.Close()
	if r.Len() != 0 {
		t.Error("Close should empty the registry")
	}
}

func TestRegistry_ReplaceWaitsForRunningQuestion(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("topic", "OLD REPORT")
	idx, counter := newIndex()
	_ = r.AttachRAG("topic", idx, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.WithTopic("topic", func(s *Session) error {
			if _, err := s.Index(); err != nil {
				return err
			}
			close(entered)
			<-release
			memory := append(s.Memory(), rag.Turn{Question: "q", Answer: "answer grounded in: " + s.Artifact()})
			return s.RecordTurn(memory)
		})
	}()
	<-entered

	fresh := r.Put("topic", "NEW REPORT")
	if counter.closed.Load() != 0 {
		t.Fatal("the index must stay open while a question is answered from it")
	}

	close(release)
	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionReplaced) {
			t.Errorf("expected ErrSessionReplaced, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("question did not finish")
	}
	r.releasing.Wait()

	if counter.closed.Load() != 1 {
		t.Errorf("replaced index should be closed once, got %d", counter.closed.Load())
	}
	if h := fresh.History(); len(h) != 0 {
		t.Errorf("the new session must not receive the old answer: %+v", h)
	}
	if h := r.History("topic"); len(h) != 0 {
		t.Errorf("expected an empty transcript, got %+v", h)
	}
}

func TestRegistry_StaleSessionRejectsWrites(t *testing.T) {
	r := NewRegistry(Config{})
	first := r.Put("topic", "first")
	r.Put("topic", "second")

	idx, counter := newIndex()
	if err := first.AttachRAG(idx, nil); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("expected ErrSessionReplaced, got %v", err)
	}
	if counter.closed.Load() != 0 {
		t.Error("a rejected index stays with the caller")
	}
	if info, _ := r.Info("topic"); info.RAGAvailable {
		t.Error("an index built for the old report must not reach the new session")
	}
	if _, err := first.Index(); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("expected ErrSessionReplaced, got %v", err)
	}
	if err := first.SetModel(rag.Model{Name: "m"}); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("expected ErrSessionReplaced, got %v", err)
	}
	if first.Artifact() != "first" {
		t.Error("a stale handle still reads its own report")
	}

	deleted := r.Put("gone", "report")
	_ = r.Delete("gone")
	if err := deleted.RecordTurn([]rag.Turn{{Question: "q", Answer: "a"}}); !errors.Is(err, ErrSessionReplaced) {
		t.Errorf("expected ErrSessionReplaced after Delete, got %v", err)
	}
}

func TestRegistry_WithTopicFollowsReplacement(t *testing.T) {
	r := NewRegistry(Config{})
	r.Put("topic", "first")

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.WithTopic("topic", func(*Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	seen := make(chan string, 1)
	go func() {
		_ = r.WithTopic("topic", func(s *Session) error {
			seen <- s.Artifact()
			return nil
		})
	}()

	// Give the second caller time to queue on the old session's lock.
	time.Sleep(20 * time.Millisecond)
	r.Put("topic", "second")
	close(release)

	select {
	case got := <-seen:
		if got != "second" {
			t.Errorf("a waiting caller should run on the new session, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting caller never ran")
	}
}

func TestSession_RecordTurnStoresMemory(t *testing.T) {
	r := NewRegistry(Config{})
	s := r.Put("topic", "report")
	idx, _ := newIndex()
	_ = s.AttachRAG(idx, []rag.Turn{{Question: "q0", Answer: "a0"}})

	tests := []struct {
		name    string
		memory  []rag.Turn
		wantErr error
	}{
		{name: "empty", memory: nil, wantErr: ErrMemoryMismatch},
		{name: "no new turn", memory: []rag.Turn{{Question: "q0", Answer: "a0"}}, wantErr: ErrMemoryMismatch},
		{name: "rewritten history", memory: []rag.Turn{{Question: "x", Answer: "y"}, {Question: "q1", Answer: "a1"}}, wantErr: ErrMemoryMismatch},
		{name: "empty question", memory: []rag.Turn{{Question: "q0", Answer: "a0"}, {Answer: "a1"}}, wantErr: ErrEmptyQuestion},
		{name: "one new turn", memory: []rag.Turn{{Question: "q0", Answer: "a0"}, {Question: "q1", Answer: "a1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RecordTurn(tt.memory)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecordTurn() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	mem := s.Memory()
	if len(mem) != 2 || mem[1].Answer != "a1" {
		t.Errorf("unexpected memory %+v", mem)
	}
	if h := s.History(); len(h) != 2 || h[0].Content != "q1" || h[1].Content != "a1" {
		t.Errorf("unexpected transcript %+v", h)
	}
}
