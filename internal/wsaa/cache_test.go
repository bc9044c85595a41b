package wsaa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-auth/internal/model"
)

var cacheEpoch = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

// stubRequester issues numbered tickets that expire validity after the fake clock's now
type stubRequester struct {
	clock    clockwork.Clock
	validity time.Duration
	calls    atomic.Int32
	err      error
	block    chan struct{}
}

func (s *stubRequester) RequestTicket(ctx context.Context, service model.Service, creds model.CredentialBundle) (*model.AuthTicket, error) {
	n := s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, model.NewTransportError("loginCms", "", ctx.Err())
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &model.AuthTicket{
		TenantID:   creds.TenantID,
		Token:      fmt.Sprintf("token-%s-%d", service, n),
		Sign:       fmt.Sprintf("sign-%d", n),
		Expiration: s.clock.Now().Add(s.validity),
	}, nil
}

func staticSource(tenantID int64) (CredentialSource, *atomic.Int32) {
	var calls atomic.Int32
	return CredentialSourceFunc(func(context.Context) (*model.CredentialBundle, error) {
		calls.Add(1)
		return &model.CredentialBundle{TenantID: tenantID, Certificate: []byte("c"), PrivateKey: []byte("k")}, nil
	}), &calls
}

func tokenOnly(_ int64, token, _ string) string {
	return token
}

func newStubCache(opts ...CacheOption) (*TicketCache, *stubRequester, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(cacheEpoch)
	req := &stubRequester{clock: clock, validity: time.Hour}
	return NewTicketCache(req, append([]CacheOption{WithCacheClock(clock)}, opts...)...), req, clock
}

func TestTicketCache_FirstUseRenews(t *testing.T) {
	c, req, _ := newStubCache()
	source, sourceCalls := staticSource(42)
	id := model.ServiceIdentity{TenantID: 42, Service: model.ServiceWSFE}

	block, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
	require.NoError(t, err)
	assert.Equal(t, "token-wsfe-1", block)
	assert.Equal(t, int32(1), req.calls.Load())
	assert.Equal(t, int32(1), sourceCalls.Load())

	block, err = c.GetOrRenew(context.Background(), id, source, tokenOnly)
	require.NoError(t, err)
	assert.Equal(t, "token-wsfe-1", block)
	assert.Equal(t, int32(1), req.calls.Load(), "valid ticket must be reused")
	assert.Equal(t, int32(1), sourceCalls.Load(), "credentials are not read on a hit")
}

func TestTicketCache_RenewalMargin(t *testing.T) {
	tests := []struct {
		name      string
		margin    time.Duration
		remaining time.Duration
		renews    bool
	}{
		{"default margin, inside", DefaultRenewalMargin, 10 * time.Minute, true},
		{"default margin, outside", DefaultRenewalMargin, 20 * time.Minute, false},
		{"exactly at margin", DefaultRenewalMargin, DefaultRenewalMargin, true},
		{"already expired", DefaultRenewalMargin, -time.Minute, true},
		{"wide margin, inside", 30 * time.Minute, 20 * time.Minute, true},
		{"wide margin, outside", 30 * time.Minute, 40 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, req, clock := newStubCache(WithRenewalMargin(tt.margin))
			source, _ := staticSource(1)
			id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

			_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
			require.NoError(t, err)

			clock.Advance(req.validity - tt.remaining)

			block, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
			require.NoError(t, err)

			if tt.renews {
				assert.Equal(t, int32(2), req.calls.Load())
				assert.Equal(t, "token-wsfe-2", block)
			} else {
				assert.Equal(t, int32(1), req.calls.Load())
				assert.Equal(t, "token-wsfe-1", block)
			}
		})
	}
}

func TestTicketCache_FormatterReceivesTicket(t *testing.T) {
	c, _, _ := newStubCache()
	source, _ := staticSource(30712345678)
	id := model.ServiceIdentity{TenantID: 30712345678, Service: model.ServiceWSMTXCA}

	block, err := c.GetOrRenew(context.Background(), id, source, func(tenantID int64, token, sign string) string {
		return fmt.Sprintf("%d|%s|%s", tenantID, token, sign)
	})
	require.NoError(t, err)
	assert.Equal(t, "30712345678|token-wsmtxca-1|sign-1", block)
}

func TestTicketCache_CredentialsUnavailable(t *testing.T) {
	id := model.ServiceIdentity{TenantID: 7, Service: model.ServiceWSFE}

	t.Run("nil bundle", func(t *testing.T) {
		c, req, _ := newStubCache()
		source := CredentialSourceFunc(func(context.Context) (*model.CredentialBundle, error) {
			return nil, nil
		})

		_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
		var unavailable *model.CredentialsUnavailable
		require.True(t, errors.As(err, &unavailable))
		assert.Equal(t, id, unavailable.Identity)
		assert.Equal(t, int32(0), req.calls.Load())
		assert.Equal(t, 0, c.Len())
	})

	t.Run("source error", func(t *testing.T) {
		c, _, _ := newStubCache()
		cause := errors.New("vault sealed")
		source := CredentialSourceFunc(func(context.Context) (*model.CredentialBundle, error) {
			return nil, cause
		})

		_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
		assert.ErrorIs(t, err, cause)
		assert.True(t, model.IsFatal(err))
	})
}

func TestTicketCache_FailedRenewalKeepsPreviousEntry(t *testing.T) {
	c, req, clock := newStubCache()
	source, _ := staticSource(1)
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
	require.NoError(t, err)
	before, ok := c.Peek(id)
	require.True(t, ok)

	clock.Advance(55 * time.Minute)
	req.err = model.NewTooSoonError(FaultAlreadyAuthenticated, "ya posee un TA valido")

	_, err = c.GetOrRenew(context.Background(), id, source, tokenOnly)
	var tooSoon *model.TooSoonError
	require.True(t, errors.As(err, &tooSoon))

	after, ok := c.Peek(id)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestTicketCache_IdentitiesAreIndependent(t *testing.T) {
	c, req, _ := newStubCache()

	ids := []model.ServiceIdentity{
		{TenantID: 1, Service: model.ServiceWSFE},
		{TenantID: 1, Service: model.ServiceWSMTXCA},
		{TenantID: 2, Service: model.ServiceWSFE},
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id model.ServiceIdentity) {
			defer wg.Done()
			source, _ := staticSource(id.TenantID)
			_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), req.calls.Load())
	assert.Equal(t, 3, c.Len())

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "1/wsfe", snapshot[0].Identity.Key())
	assert.Equal(t, "1/wsmtxca", snapshot[1].Identity.Key())
	assert.Equal(t, "2/wsfe", snapshot[2].Identity.Key())
	for _, s := range snapshot {
		assert.Equal(t, s.Identity.TenantID, s.Ticket.TenantID)
	}
}

func TestTicketCache_RenewalCoalescing(t *testing.T) {
	c, req, _ := newStubCache(WithRenewalCoalescing())
	req.block = make(chan struct{})
	source, _ := staticSource(1)
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	const callers = 5
	results := make(chan string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
			assert.NoError(t, err)
			results <- block
		}()
	}

	// let the leader reach the requester before releasing it
	require.Eventually(t, func() bool { return req.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(req.block)
	wg.Wait()
	close(results)

	for block := range results {
		assert.Equal(t, "token-wsfe-1", block)
	}
	assert.Equal(t, int32(1), req.calls.Load())
}

func TestTicketCache_ConcurrentRenewalsLastWriterWins(t *testing.T) {
	c, req, _ := newStubCache()
	req.block = make(chan struct{})
	source, sourceCalls := staticSource(1)
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	const callers = 4
	results := make(chan string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
			assert.NoError(t, err)
			results <- block
		}()
	}

	// every caller found the entry missing and is inside its own exchange
	require.Eventually(t, func() bool { return req.calls.Load() == callers }, time.Second, time.Millisecond)
	close(req.block)
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for block := range results {
		seen[block] = true
	}
	assert.Len(t, seen, callers)
	assert.Equal(t, int32(callers), req.calls.Load())
	assert.Equal(t, int32(callers), sourceCalls.Load())

	assert.Equal(t, 1, c.Len())
	ticket, ok := c.Peek(id)
	require.True(t, ok)
	assert.True(t, seen[ticket.Token], "cached token %s was not returned to any caller", ticket.Token)
}

func TestTicketCache_CoalescedRenewalSurvivesLeaderCancel(t *testing.T) {
	c, req, _ := newStubCache(WithRenewalCoalescing())
	req.block = make(chan struct{})
	source, _ := staticSource(1)
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrRenew(leaderCtx, id, source, tokenOnly)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return req.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		block string
		err   error
	}
	joined := make(chan result, 1)
	go func() {
		block, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
		joined <- result{block, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, model.IsRetryable(err))
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the renewal")
	}

	close(req.block)
	res := <-joined
	require.NoError(t, res.err)
	assert.Equal(t, "token-wsfe-1", res.block)
	assert.Equal(t, int32(1), req.calls.Load())

	ticket, ok := c.Peek(id)
	require.True(t, ok)
	assert.Equal(t, "token-wsfe-1", ticket.Token)
}

func TestTicketCache_CoalescedRenewalTimeout(t *testing.T) {
	c, req, _ := newStubCache(WithRenewalCoalescing(), WithRenewalTimeout(20*time.Millisecond))
	req.block = make(chan struct{})
	defer close(req.block)
	source, _ := staticSource(1)
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	_, err := c.GetOrRenew(context.Background(), id, source, tokenOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Len())
}

func TestTicketCache_PeekMissing(t *testing.T) {
	c, _, _ := newStubCache()

	_, ok := c.Peek(model.ServiceIdentity{TenantID: 9, Service: model.ServiceWSFE})
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, DefaultRenewalMargin, c.RenewalMargin())
}
