package dispatch

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corehttp/corehttp/core"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"), for tests that need to prove a fixed
// set of goroutines — not one per job — services a stream of work.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	fields := bytes.Fields(buf)
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}

type fakeCall struct {
	canceled atomic.Bool
}

func (f *fakeCall) Request() *core.Request  { return nil }
func (f *fakeCall) Context() context.Context { return context.Background() }
func (f *fakeCall) IsCanceled() bool         { return f.canceled.Load() }
func (f *fakeCall) Cancel()                  { f.canceled.Store(true) }
func (f *fakeCall) Info() core.CallInfo      { return core.CallInfo{} }

func TestEnqueueRunsJobImmediatelyUnderCap(t *testing.T) {
	d := New(DefaultMaxRequests, DefaultMaxRequestsPerHost)
	done := make(chan struct{})
	d.Enqueue("example.com", &fakeCall{}, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestPerHostCapLimitsConcurrency(t *testing.T) {
	d := New(100, 2)

	var running int32
	var maxObserved int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		d.Enqueue("example.com", &fakeCall{}, func() {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
	}

	// Give the first promotion pass time to run before releasing.
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
	close(release)
	wg.Wait()
}

func TestCancelPreventsQueuedJobFromRunning(t *testing.T) {
	d := New(1, 1)

	blockCall := &fakeCall{}
	block := make(chan struct{})
	d.Enqueue("a.example.com", blockCall, func() { <-block })

	ranSecond := make(chan struct{})
	secondCall := &fakeCall{}
	d.Enqueue("b.example.com", secondCall, func() { close(ranSecond) })

	d.Cancel(secondCall)
	close(block)

	select {
	case <-ranSecond:
		t.Fatal("canceled job should not have run")
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, secondCall.IsCanceled())
}

func TestStatsReportsQueuedAndRunning(t *testing.T) {
	d := New(1, 1)
	block := make(chan struct{})
	d.Enqueue("example.com", &fakeCall{}, func() { <-block })
	d.Enqueue("example.com", &fakeCall{}, func() {})

	queued, running := d.Stats()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, running)
	close(block)
}

func TestWorkerPoolIsReusedAcrossManySequentialJobs(t *testing.T) {
	d := New(2, 2)

	const jobCount = 50
	seenGoroutines := make(map[uint64]struct{})
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < jobCount; i++ {
		wg.Add(1)
		d.Enqueue("example.com", &fakeCall{}, func() {
			defer wg.Done()
			mu.Lock()
			seenGoroutines[goroutineID()] = struct{}{}
			mu.Unlock()
		})
		// Let each job finish before enqueuing the next, so a goroutine-per-
		// job design and a fixed-pool design would both complete the work —
		// the distinguishing signal is how many distinct goroutines ran it.
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(seenGoroutines), 2, "jobs should be served by the fixed worker pool, not one goroutine per job")
}

func TestNewDefaultsInvalidCaps(t *testing.T) {
	d := New(0, -1)
	assert.Equal(t, DefaultMaxRequests, d.maxRequests)
	assert.Equal(t, DefaultMaxRequestsPerHost, d.maxRequestsPerHost)
}
