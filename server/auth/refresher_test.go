package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/store"
)

type fakeTokenSource struct {
	calls atomic.Int32
	token *oauth2.Token
	err   error
	wait  chan struct{}
}

func (f *fakeTokenSource) Refresh(_ context.Context, _ string) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.wait != nil {
		<-f.wait
	}
	return f.token, f.err
}

var refreshNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestRefresher(src TokenRefresher) *Refresher {
	return NewRefresher(src, WithNow(func() time.Time { return refreshNow }))
}

func TestRefresherWindow(t *testing.T) {
	tests := []struct {
		name      string
		expiry    time.Time
		wantCalls int32
		refreshed bool
	}{
		{"expires in ten minutes", refreshNow.Add(10 * time.Minute), 0, false},
		{"expired a minute ago", refreshNow.Add(-time.Minute), 1, true},
		{"expires in four minutes", refreshNow.Add(4 * time.Minute), 1, true},
		{"unknown expiry", time.Time{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeTokenSource{token: &oauth2.Token{AccessToken: "new", TokenType: "Bearer", Expiry: refreshNow.Add(time.Hour)}}
			cred := store.ProviderCredential{AccessToken: "old", RefreshToken: "rt", Expiry: tt.expiry}

			got, outcome := newTestRefresher(src).RefreshIfNeeded(context.Background(), cred)
			assert.Equal(t, tt.wantCalls, src.calls.Load())
			assert.Equal(t, tt.refreshed, outcome.Refreshed)
			assert.NoError(t, outcome.Warning)
			if tt.refreshed {
				assert.Equal(t, "new", got.AccessToken)
				assert.Equal(t, "rt", got.RefreshToken, "refresh token kept when none issued")
				assert.True(t, got.Expiry.Equal(refreshNow.Add(time.Hour)))
			} else {
				assert.Equal(t, cred, got)
			}
		})
	}
}

func TestRefresherFailureIsSoft(t *testing.T) {
	cred := store.ProviderCredential{AccessToken: "old", RefreshToken: "rt", Expiry: refreshNow.Add(-time.Minute)}

	t.Run("upstream error", func(t *testing.T) {
		src := &fakeTokenSource{err: errors.New("invalid_grant")}
		got, outcome := newTestRefresher(src).RefreshIfNeeded(context.Background(), cred)
		assert.Equal(t, cred, got)
		assert.False(t, outcome.Refreshed)
		require.Error(t, outcome.Warning)
		assert.True(t, apperrors.IsCode(outcome.Warning, apperrors.ErrCodeCredentialExpired))
	})

	t.Run("no refresh token", func(t *testing.T) {
		src := &fakeTokenSource{}
		noRefresh := cred
		noRefresh.RefreshToken = ""
		got, outcome := newTestRefresher(src).RefreshIfNeeded(context.Background(), noRefresh)
		assert.Equal(t, noRefresh, got)
		assert.Equal(t, int32(0), src.calls.Load())
		assert.True(t, apperrors.IsCode(outcome.Warning, apperrors.ErrCodeCredentialExpired))
	})

	t.Run("empty token returned", func(t *testing.T) {
		src := &fakeTokenSource{token: &oauth2.Token{}}
		got, outcome := newTestRefresher(src).RefreshIfNeeded(context.Background(), cred)
		assert.Equal(t, cred, got)
		assert.Error(t, outcome.Warning)
	})

	t.Run("no source", func(t *testing.T) {
		got, outcome := newTestRefresher(nil).RefreshIfNeeded(context.Background(), cred)
		assert.Equal(t, cred, got)
		assert.Error(t, outcome.Warning)
	})
}

func TestRefresherRotatesRefreshToken(t *testing.T) {
	src := &fakeTokenSource{token: &oauth2.Token{AccessToken: "new", RefreshToken: "rt2"}}
	cred := store.ProviderCredential{AccessToken: "old", RefreshToken: "rt", TokenType: "Bearer", Expiry: refreshNow}
	got, outcome := newTestRefresher(src).RefreshIfNeeded(context.Background(), cred)
	require.True(t, outcome.Refreshed)
	assert.Equal(t, "rt2", got.RefreshToken)
	assert.Equal(t, "Bearer", got.TokenType)
}

func TestRefresherCollapsesConcurrentCalls(t *testing.T) {
	src := &fakeTokenSource{
		token: &oauth2.Token{AccessToken: "new", Expiry: refreshNow.Add(time.Hour)},
		wait:  make(chan struct{}),
	}
	r := newTestRefresher(src)
	cred := store.ProviderCredential{AccessToken: "old", RefreshToken: "rt", Expiry: refreshNow}

	var wg sync.WaitGroup
	results := make([]store.ProviderCredential, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.RefreshIfNeeded(context.Background(), cred)
		}(i)
	}
	// Give the goroutines a moment to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(src.wait)
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, src.calls.Load(), int32(1))
	for _, got := range results {
		assert.Equal(t, "new", got.AccessToken)
	}
}

type ctxAwareTokenSource struct {
	calls       atomic.Int32
	wait        chan struct{}
	hadDeadline atomic.Bool
}

func (f *ctxAwareTokenSource) Refresh(ctx context.Context, _ string) (*oauth2.Token, error) {
	f.calls.Add(1)
	_, ok := ctx.Deadline()
	f.hadDeadline.Store(ok)
	<-f.wait
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: "new", Expiry: refreshNow.Add(time.Hour)}, nil
}

func TestRefresherSharedCallOutlivesFirstCaller(t *testing.T) {
	src := &ctxAwareTokenSource{wait: make(chan struct{})}
	r := newTestRefresher(src)
	cred := store.ProviderCredential{AccessToken: "old", RefreshToken: "rt", Expiry: refreshNow}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var first, second store.ProviderCredential
	var secondOutcome RefreshOutcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = r.RefreshIfNeeded(firstCtx, cred)
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		second, secondOutcome = r.RefreshIfNeeded(context.Background(), cred)
	}()
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	close(src.wait)
	wg.Wait()

	assert.True(t, src.hadDeadline.Load(), "shared refresh is bounded by its own timeout")
	assert.Equal(t, "new", first.AccessToken)
	assert.Equal(t, "new", second.AccessToken)
	assert.NoError(t, secondOutcome.Warning)
}

func TestTokenConversions(t *testing.T) {
	assert.Nil(t, OAuth2Token(nil))
	assert.Nil(t, CredentialFromToken(nil))

	cred := &store.ProviderCredential{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: refreshNow}
	assert.Equal(t, cred, CredentialFromToken(OAuth2Token(cred)))
}
