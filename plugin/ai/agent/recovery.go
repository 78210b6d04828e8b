package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/autotask/plugin/ai"
	"github.com/hrygo/autotask/plugin/ai/timeout"
)

// DefaultFollowUp is sent on the same conversation when the first answer
// came back empty.
const DefaultFollowUp = "Please provide the task details from the email above, using the requested format."

// Recovery asks the completion service once more when it produced completion
// tokens but returned no text. It never retries more than once.
//
// Recovery is safe for concurrent use.
type Recovery struct {
	completion ai.CompletionService
	delay      time.Duration
	followUp   string
}

// RecoveryOption configures a Recovery.
type RecoveryOption func(*Recovery)

// WithDelay sets the wait before the follow-up. Zero or negative sends it
// immediately.
func WithDelay(d time.Duration) RecoveryOption {
	return func(r *Recovery) { r.delay = d }
}

// WithFollowUp replaces the follow-up message.
func WithFollowUp(msg string) RecoveryOption {
	return func(r *Recovery) {
		if strings.TrimSpace(msg) != "" {
			r.followUp = msg
		}
	}
}

// NewRecovery creates a Recovery around svc.
func NewRecovery(svc ai.CompletionService, opts ...RecoveryOption) *Recovery {
	r := &Recovery{
		completion: svc,
		delay:      timeout.RecoveryDelay,
		followUp:   DefaultFollowUp,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecoveryResult describes what Recover did.
type RecoveryResult struct {
	Attempted bool   `json:"attempted"`
	Recovered bool   `json:"recovered"`
	Text      string `json:"-"`
	// Completion is the follow-up answer, nil when none was received.
	Completion *ai.Completion `json:"-"`
	Err        error          `json:"-"`
}

// NeedsRecovery reports whether c is an empty answer that a follow-up on the
// same conversation may fix.
func NeedsRecovery(c *ai.Completion) bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.Text) == "" && c.Usage.CompletionTokens > 0 && c.ConversationID != ""
}

// Diagnostic is the text reported when no answer could be recovered.
func Diagnostic(c *ai.Completion) string {
	if c == nil {
		return "completion service returned no content"
	}
	return fmt.Sprintf("completion service returned no content (conversation %s, completion tokens %d, total tokens %d)",
		c.ConversationID, c.Usage.CompletionTokens, c.Usage.TotalTokens)
}

// Recover sends exactly one follow-up for first after the configured delay.
// When first does not need recovery it returns first's text unchanged and
// Attempted is false. When the follow-up fails or is empty again, Text holds
// the diagnostic for first.
func (r *Recovery) Recover(ctx context.Context, req ai.CompletionRequest, first *ai.Completion) RecoveryResult {
	if !NeedsRecovery(first) {
		res := RecoveryResult{}
		if first != nil {
			res.Text = first.Text
		}
		return res
	}

	res := RecoveryResult{Attempted: true, Text: Diagnostic(first)}
	if err := r.wait(ctx); err != nil {
		res.Err = err
		return res
	}

	follow, err := r.completion.Complete(ctx, ai.CompletionRequest{
		APIKey:         req.APIKey,
		Message:        r.followUp,
		ConversationID: first.ConversationID,
	})
	if err != nil {
		slog.Warn("recovery follow-up failed",
			slog.String("conversation_id", first.ConversationID),
			slog.String("error", err.Error()),
		)
		res.Err = err
		return res
	}
	res.Completion = follow
	if strings.TrimSpace(follow.Text) == "" {
		res.Err = ErrEmptyCompletion
		return res
	}

	res.Recovered = true
	res.Text = follow.Text
	return res
}

func (r *Recovery) wait(ctx context.Context) error {
	if r.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
