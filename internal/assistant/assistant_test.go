package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/studyrag-go/internal/conversation"
	"github.com/54b3r/studyrag-go/internal/rag"
	"github.com/54b3r/studyrag-go/internal/vectorstore"
)

// fakeEmbedder maps known texts to vectors and fails on demand.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

// fakeCompleter answers "A: <question>" unless a scripted error is queued.
type fakeCompleter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	lastMsgs []*schema.Message
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []*schema.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMsgs = msgs
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	last := msgs[len(msgs)-1].Content
	q := last[strings.LastIndex(last, "Question:\n")+len("Question:\n"):]
	return "A: " + q, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	assistant *Assistant
	embedder  *fakeEmbedder
	completer *fakeCompleter
	store     *vectorstore.MemoryStore
	convs     *conversation.Manager
	convID    string
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	store := vectorstore.NewMemoryStore(0)
	_, err := store.Put(ctx, "alice", "biology.pdf", []rag.ChunkInput{
		{Text: "Mitochondria are the powerhouse of the cell.", Vector: []float32{1, 0, 0}},
		{Text: "Photosynthesis happens in chloroplasts.", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	_, err = store.Put(ctx, "alice", "chemistry.pdf", []rag.ChunkInput{
		{Text: "Water is H2O.", Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	convs := conversation.NewManager(conversation.NewMemoryStore())
	c, err := convs.Create(ctx, "alice", "")
	require.NoError(t, err)

	emb := &fakeEmbedder{vectors: map[string][]float32{"What is photosynthesis?": {0, 1, 0}}}
	comp := &fakeCompleter{}
	cfg := Config{
		Embedder:      emb,
		Store:         store,
		Conversations: convs,
		Completer:     comp,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	a.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return &fixture{assistant: a, embedder: emb, completer: comp, store: store, convs: convs, convID: c.ID}
}

func TestAnswer_GroundsPromptAndRecordsTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	ans, err := f.assistant.Answer(ctx, "alice", f.convID, "  What is photosynthesis?  ")
	require.NoError(t, err)

	assert.Equal(t, "A: What is photosynthesis?", ans.Text)
	assert.Equal(t, f.convID, ans.ConversationID)
	assert.Equal(t, []string{"biology.pdf", "chemistry.pdf", "biology.pdf"}, ans.Sources)
	assert.Equal(t, 3, ans.Candidates)

	msgs := f.completer.lastMsgs
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "You are a helpful teaching assistant chatbot.", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t,
		"Answer based only on the context below. If unsure, say you don't know.\n\nContext:\n"+
			"Photosynthesis happens in chloroplasts.\n\nWater is H2O.\n\nMitochondria are the powerhouse of the cell."+
			"\n\nQuestion:\nWhat is photosynthesis?",
		msgs[1].Content)

	hist, err := f.convs.History(ctx, f.convID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, rag.Message{Role: rag.RoleUser, Content: "What is photosynthesis?"}, rag.Message{Role: hist[0].Role, Content: hist[0].Content})
	assert.Equal(t, rag.RoleAssistant, hist[1].Role)
	assert.Equal(t, ans.Text, hist[1].Content)
}

func TestAnswer_SendsHistoryOnLaterTurns(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.assistant.Answer(ctx, "alice", f.convID, "first")
	require.NoError(t, err)
	_, err = f.assistant.Answer(ctx, "alice", f.convID, "second")
	require.NoError(t, err)

	msgs := f.completer.lastMsgs
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "A: first", msgs[2].Content)
	assert.True(t, strings.HasSuffix(msgs[3].Content, "Question:\nsecond"))
}

func TestAnswer_TrimsHistoryWhenBudgeted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *Config) { c.MaxHistoryTokens = 90 })
	ctx := context.Background()

	for _, q := range []string{strings.Repeat("long question ", 10), "short"} {
		_, err := f.assistant.Answer(ctx, "alice", f.convID, q)
		require.NoError(t, err)
	}

	// The grounded turn alone uses most of the budget, so the 4 prior
	// messages cannot all fit.
	msgs := f.completer.lastMsgs
	assert.Less(t, len(msgs), 6)
	assert.Equal(t, schema.System, msgs[0].Role)
	if len(msgs) > 2 {
		assert.Equal(t, schema.User, msgs[1].Role)
	}
}

func TestAnswer_MissingInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tests := []struct {
		name, owner, conv, question string
	}{
		{"blank question", "alice", f.convID, "   "},
		{"blank owner", "", f.convID, "q"},
		{"blank conversation", "alice", "\t", "q"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.assistant.Answer(context.Background(), tc.owner, tc.conv, tc.question)
			assert.ErrorIs(t, err, rag.ErrMissingInput)
		})
	}
	assert.Zero(t, f.embedder.calls.Load())
	assert.Zero(t, f.completer.callCount())
}

func TestAnswer_NoCorpusNeverCallsCompleter(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	bobConv, err := f.convs.Create(ctx, "bob", "")
	require.NoError(t, err)

	_, err = f.assistant.Answer(ctx, "bob", bobConv.ID, "anything?")
	assert.ErrorIs(t, err, rag.ErrNoCorpusIngested)
	assert.Equal(t, rag.CodeNoCorpusIngested, rag.Code(err))
	assert.Zero(t, f.completer.callCount())

	hist, err := f.convs.History(ctx, bobConv.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestAnswer_UnknownOrForeignConversation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.assistant.Answer(ctx, "alice", "does-not-exist", "q")
	assert.ErrorIs(t, err, rag.ErrConversationNotFound)

	_, err = f.store.Put(ctx, "mallory", "m.pdf", []rag.ChunkInput{{Text: "x", Vector: []float32{1, 0, 0}}})
	require.NoError(t, err)
	_, err = f.assistant.Answer(ctx, "mallory", f.convID, "read alice's chat")
	assert.ErrorIs(t, err, rag.ErrConversationNotFound)
	assert.Zero(t, f.completer.callCount())
}

func TestAnswer_EmbeddingFailuresPropagate(t *testing.T) {
	t.Parallel()

	for _, want := range []error{rag.ErrEmbeddingUnavailable, rag.ErrTimeout} {
		t.Run(rag.Code(want), func(t *testing.T) {
			f := newFixture(t, nil)
			f.embedder.err = fmt.Errorf("embedder: embed: %w", want)

			_, err := f.assistant.Answer(context.Background(), "alice", f.convID, "q")
			assert.ErrorIs(t, err, want)
			assert.Equal(t, rag.Code(want), rag.Code(err))
			assert.Zero(t, f.completer.callCount())
		})
	}
}

func TestAnswer_FailedCompletionLeavesHistoryUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.assistant.Answer(ctx, "alice", f.convID, "first")
	require.NoError(t, err)
	before, err := f.convs.History(ctx, f.convID)
	require.NoError(t, err)

	f.completer.errs = []error{fmt.Errorf("provider: complete: %w", rag.ErrCompletionUnavailable)}
	_, err = f.assistant.Answer(ctx, "alice", f.convID, "second")
	assert.ErrorIs(t, err, rag.ErrCompletionUnavailable)

	after, err := f.convs.History(ctx, f.convID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAnswer_Retries(t *testing.T) {
	t.Parallel()

	t.Run("transient completion failures are retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.RetryAttempts = 2 })
		unavailable := fmt.Errorf("provider: complete: %w", rag.ErrCompletionUnavailable)
		f.completer.errs = []error{unavailable, unavailable}

		ans, err := f.assistant.Answer(context.Background(), "alice", f.convID, "q")
		require.NoError(t, err)
		assert.Equal(t, "A: q", ans.Text)
		assert.Equal(t, 3, f.completer.callCount())

		hist, err := f.convs.History(context.Background(), f.convID)
		require.NoError(t, err)
		assert.Len(t, hist, 2)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.RetryAttempts = 1 })
		unavailable := fmt.Errorf("provider: complete: %w", rag.ErrCompletionUnavailable)
		f.completer.errs = []error{unavailable, unavailable, unavailable}

		_, err := f.assistant.Answer(context.Background(), "alice", f.convID, "q")
		assert.ErrorIs(t, err, rag.ErrCompletionUnavailable)
		assert.Equal(t, 2, f.completer.callCount())
	})

	t.Run("timeouts are not retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(c *Config) { c.RetryAttempts = 3 })
		f.completer.errs = []error{fmt.Errorf("provider: complete: %w: %w", rag.ErrTimeout, context.DeadlineExceeded)}

		_, err := f.assistant.Answer(context.Background(), "alice", f.convID, "q")
		assert.ErrorIs(t, err, rag.ErrTimeout)
		assert.Equal(t, 1, f.completer.callCount())
	})

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.completer.errs = []error{fmt.Errorf("provider: complete: %w", rag.ErrCompletionUnavailable)}

		_, err := f.assistant.Answer(context.Background(), "alice", f.convID, "q")
		assert.ErrorIs(t, err, rag.ErrCompletionUnavailable)
		assert.Equal(t, 1, f.completer.callCount())
	})
}

func TestAnswer_ConcurrentAnswersAppendAdjacentPairs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.assistant.Answer(ctx, "alice", f.convID, fmt.Sprintf("question %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := f.convs.History(ctx, f.convID)
	require.NoError(t, err)
	require.Len(t, hist, 2*n)

	seen := make(map[string]bool)
	for i := 0; i < len(hist); i += 2 {
		require.Equal(t, rag.RoleUser, hist[i].Role)
		require.Equal(t, rag.RoleAssistant, hist[i+1].Role)
		assert.Equal(t, "A: "+hist[i].Content, hist[i+1].Content)
		seen[hist[i].Content] = true
	}
	assert.Len(t, seen, n)
}

func TestAnswer_CallerDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	f.embedder.err = fmt.Errorf("embedder: embed: %w: %w", rag.ErrTimeout, ctx.Err())
	_, err := f.assistant.Answer(ctx, "alice", f.convID, "q")
	assert.ErrorIs(t, err, rag.ErrTimeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = New(Config{Embedder: &fakeEmbedder{}, Store: vectorstore.NewMemoryStore(0)})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}
