package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corehttp/corehttp/core"
	"github.com/corehttp/corehttp/httpurl"
)

// countingDns counts Lookup calls and blocks each one on release, so a test
// can hold every in-flight lookup open long enough to prove how many
// distinct Lookup calls actually happened.
type countingDns struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (d *countingDns) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	<-d.release
	return []net.IP{net.ParseIP("127.0.0.1")}, nil
}

func TestPlannerCoalescesConcurrentPlanCallsForSameAddress(t *testing.T) {
	dns := &countingDns{release: make(chan struct{})}
	planner := NewPlanner(dns)
	addr := &core.Address{Host: "example.com", Port: "80"}
	u, err := httpurl.Parse("http://example.com/")
	require.NoError(t, err)

	const n = 5
	var wg sync.WaitGroup
	results := make([][]*core.ConnectPlan, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			plans, err := planner.Plan(context.Background(), addr, u, core.NopListener{}, core.CallInfo{})
			assert.NoError(t, err)
			results[i] = plans
		}()
	}

	// Give every goroutine a chance to join the in-flight Plan call before
	// the single lookup is released.
	time.Sleep(50 * time.Millisecond)
	close(dns.release)
	wg.Wait()

	dns.mu.Lock()
	calls := dns.calls
	dns.mu.Unlock()
	assert.Equal(t, 1, calls, "concurrent Plan calls for the same Address should share one DNS lookup")
	for _, plans := range results {
		require.Len(t, plans, 1)
	}
}

func TestPlannerRunsSeparateLookupsForDifferentAddresses(t *testing.T) {
	dns := &countingDns{release: make(chan struct{})}
	close(dns.release)
	planner := NewPlanner(dns)
	u, err := httpurl.Parse("http://example.com/")
	require.NoError(t, err)

	_, err = planner.Plan(context.Background(), &core.Address{Host: "a.example.com", Port: "80"}, u, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)
	_, err = planner.Plan(context.Background(), &core.Address{Host: "b.example.com", Port: "80"}, u, core.NopListener{}, core.CallInfo{})
	require.NoError(t, err)

	dns.mu.Lock()
	defer dns.mu.Unlock()
	assert.Equal(t, 2, dns.calls)
}
