package authcore

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/authcore/cookie"
)

func TestConcurrentRenewalLeavesOneSessionPerIP(t *testing.T) {
	h := newHarness(t)
	cookies := h.register(t, "10.1.1.1", "quinn")
	id := h.userID(t, "quinn")
	h.clock.Advance(11 * time.Minute)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  = map[string]bool{}
		renewed int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			res := h.engine.Renew(ipCtx("10.1.1.1"), rec, requestWith(cookies))

			mu.Lock()
			defer mu.Unlock()
			switch res.State {
			case RenewalRenewed:
				renewed++
				issued[responseCookies(rec)[cookie.RefreshTokenName].Value] = true
			case RenewalStale:
			default:
				t.Errorf("unexpected state %s", res.State)
			}
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, renewed, 1)

	sessions, err := h.engine.Sessions(ipCtx("10.1.1.1"), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.1"}, sessions)

	stored, ok := h.engine.sessions.GetRefreshToken(ipCtx("10.1.1.1"), id)
	require.True(t, ok)
	assert.True(t, issued[stored], "stored token must come from a successful renewal")
}
