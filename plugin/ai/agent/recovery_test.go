package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/autotask/plugin/ai"
)

// scriptedCompletion answers with the next scripted completion per call.
type scriptedCompletion struct {
	mu        sync.Mutex
	responses []*ai.Completion
	errs      []error
	requests  []ai.CompletionRequest
}

func (s *scriptedCompletion) Complete(_ context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return &ai.Completion{}, nil
}

func (s *scriptedCompletion) calls() []ai.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.CompletionRequest(nil), s.requests...)
}

func emptyCompletion() *ai.Completion {
	return &ai.Completion{
		ConversationID: "conv-1",
		Usage:          ai.Usage{PromptTokens: 120, CompletionTokens: 42, TotalTokens: 162},
	}
}

func TestNeedsRecovery(t *testing.T) {
	tests := []struct {
		name string
		c    *ai.Completion
		want bool
	}{
		{"nil", nil, false},
		{"has text", &ai.Completion{Text: "ok", ConversationID: "c", Usage: ai.Usage{CompletionTokens: 3}}, false},
		{"whitespace text", &ai.Completion{Text: " \n", ConversationID: "c", Usage: ai.Usage{CompletionTokens: 3}}, true},
		{"no tokens", &ai.Completion{ConversationID: "c"}, false},
		{"no conversation", &ai.Completion{Usage: ai.Usage{CompletionTokens: 3}}, false},
		{"empty with tokens and conversation", emptyCompletion(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsRecovery(tt.c))
		})
	}
}

func TestRecoverSingleFollowUp(t *testing.T) {
	svc := &scriptedCompletion{responses: []*ai.Completion{{Text: `{"task_title":"Recovered"}`, ConversationID: "conv-1"}}}
	r := NewRecovery(svc, WithDelay(0))

	res := r.Recover(context.Background(), ai.CompletionRequest{APIKey: "live_key", Message: "original"}, emptyCompletion())
	assert.True(t, res.Attempted)
	assert.True(t, res.Recovered)
	assert.NoError(t, res.Err)
	assert.Equal(t, `{"task_title":"Recovered"}`, res.Text)

	calls := svc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "conv-1", calls[0].ConversationID)
	assert.Equal(t, "live_key", calls[0].APIKey)
	assert.Equal(t, DefaultFollowUp, calls[0].Message)
}

func TestRecoverEmptyAgainReturnsDiagnostic(t *testing.T) {
	svc := &scriptedCompletion{responses: []*ai.Completion{emptyCompletion()}}
	r := NewRecovery(svc, WithDelay(0))

	res := r.Recover(context.Background(), ai.CompletionRequest{APIKey: "k"}, emptyCompletion())
	assert.True(t, res.Attempted)
	assert.False(t, res.Recovered)
	assert.ErrorIs(t, res.Err, ErrEmptyCompletion)
	assert.Equal(t, "completion service returned no content (conversation conv-1, completion tokens 42, total tokens 162)", res.Text)
	assert.Len(t, svc.calls(), 1)
}

func TestRecoverFollowUpError(t *testing.T) {
	svc := &scriptedCompletion{errs: []error{errors.New("boom")}}
	res := NewRecovery(svc, WithDelay(0)).Recover(context.Background(), ai.CompletionRequest{}, emptyCompletion())
	assert.True(t, res.Attempted)
	assert.False(t, res.Recovered)
	assert.EqualError(t, res.Err, "boom")
	assert.Contains(t, res.Text, "conversation conv-1")
}

func TestRecoverNotNeeded(t *testing.T) {
	svc := &scriptedCompletion{}
	res := NewRecovery(svc).Recover(context.Background(), ai.CompletionRequest{}, &ai.Completion{Text: "fine"})
	assert.False(t, res.Attempted)
	assert.Equal(t, "fine", res.Text)
	assert.Empty(t, svc.calls())
}

func TestRecoverHonorsContext(t *testing.T) {
	svc := &scriptedCompletion{}
	r := NewRecovery(svc, WithDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan RecoveryResult, 1)
	go func() { done <- r.Recover(ctx, ai.CompletionRequest{}, emptyCompletion()) }()

	select {
	case res := <-done:
		assert.True(t, res.Attempted)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Empty(t, svc.calls())
	case <-time.After(2 * time.Second):
		t.Fatal("recover did not return after cancellation")
	}
}

func TestRecoverWaitsDelay(t *testing.T) {
	svc := &scriptedCompletion{responses: []*ai.Completion{{Text: "late"}}}
	r := NewRecovery(svc, WithDelay(30*time.Millisecond))

	start := time.Now()
	res := r.Recover(context.Background(), ai.CompletionRequest{}, emptyCompletion())
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.True(t, res.Recovered)
}

func TestWithFollowUpIgnoresBlank(t *testing.T) {
	r := NewRecovery(nil, WithFollowUp("  "))
	assert.Equal(t, DefaultFollowUp, r.followUp)
	r = NewRecovery(nil, WithFollowUp("again please"))
	assert.Equal(t, "again please", r.followUp)
}
