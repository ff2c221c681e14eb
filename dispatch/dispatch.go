// Package dispatch implements the Call Dispatcher (C11), per spec.md §3:
// "Dispatcher(maxRequests=64, maxRequestsPerHost=5) ... a FIFO ready queue
// promoted into the running set as capacity allows." Owns one mutex guarding
// the ready queue and running set; idleCh is closed and replaced whenever
// the running set shrinks, mirroring the lock/signal-channel shape the
// pack's query_dispatcher.go uses for its own pending-work queue.
//
// Promoted jobs run on a small fixed pool of worker goroutines fed by a
// channel, one worker per unit of maxRequests, rather than a goroutine per
// call — per SPEC_FULL.md §5, maxRequests is meant to bound live goroutines
// as well as in-flight calls.
package dispatch

import (
	"sync"

	"github.com/corehttp/corehttp/core"
)

const (
	// DefaultMaxRequests caps total concurrent async calls across all hosts.
	DefaultMaxRequests = 64
	// DefaultMaxRequestsPerHost caps concurrent async calls to one host.
	DefaultMaxRequestsPerHost = 5
)

// job is one queued or running async call.
type job struct {
	host    string
	call    core.Call
	run     func()
	started bool
}

// Dispatcher is the Call Dispatcher. The zero value is not usable; build one
// with New.
type Dispatcher struct {
	maxRequests        int
	maxRequestsPerHost int

	mu            sync.Mutex
	ready         []*job
	running       []*job
	runningByHost map[string]int
	idleCh        chan struct{} // closed and replaced whenever the running set shrinks

	workCh chan *job
}

// New builds a Dispatcher with the given concurrency caps and starts its
// fixed worker pool: maxRequests goroutines, each pulling promoted jobs off
// workCh. workCh is never closed, so the workers run for the life of the
// process. workCh is buffered to
// maxRequests so promoteLocked's send never blocks — the running set it
// gates on never holds more than maxRequests jobs at once.
func New(maxRequests, maxRequestsPerHost int) *Dispatcher {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if maxRequestsPerHost <= 0 {
		maxRequestsPerHost = DefaultMaxRequestsPerHost
	}
	d := &Dispatcher{
		maxRequests:        maxRequests,
		maxRequestsPerHost: maxRequestsPerHost,
		runningByHost:      make(map[string]int),
		idleCh:             make(chan struct{}),
		workCh:             make(chan *job, maxRequests),
	}
	for i := 0; i < maxRequests; i++ {
		go d.worker()
	}
	return d
}

// worker pulls jobs off workCh for the lifetime of the Dispatcher, running
// each to completion before picking up the next — the pool that keeps a
// caller-chosen maxRequests a bound on goroutines, not just on concurrent
// calls.
func (d *Dispatcher) worker() {
	for j := range d.workCh {
		j.run()
		d.finish(j)
	}
}

// Enqueue submits an async call's work function, to run on the worker pool
// once dispatcher capacity allows, per spec.md §4.1 "Call.enqueue(callback)
// ... goes through the Dispatcher, not a raw goroutine." host identifies the
// target for the per-host cap — callers pass Request.URL().Host.
func (d *Dispatcher) Enqueue(host string, call core.Call, run func()) {
	j := &job{host: host, call: call, run: run}

	d.mu.Lock()
	d.ready = append(d.ready, j)
	d.promoteLocked()
	d.mu.Unlock()
}

// promoteLocked moves as many ready jobs into the running set as capacity
// allows, in FIFO order, skipping jobs whose host is already at its
// per-host cap (spec.md §3 "promotion ... skips jobs that would exceed the
// per-host cap, without reordering the queue for other hosts"), and hands
// each promoted job to the worker pool over workCh.
func (d *Dispatcher) promoteLocked() {
	var stillReady []*job
	for _, j := range d.ready {
		if j.call.IsCanceled() {
			continue
		}
		if len(d.running) >= d.maxRequests {
			stillReady = append(stillReady, j)
			continue
		}
		if d.runningByHost[j.host] >= d.maxRequestsPerHost {
			stillReady = append(stillReady, j)
			continue
		}
		d.running = append(d.running, j)
		d.runningByHost[j.host]++
		d.workCh <- j
	}
	d.ready = stillReady
}

func (d *Dispatcher) finish(j *job) {
	d.mu.Lock()
	d.running = removeJob(d.running, j)
	d.runningByHost[j.host]--
	if d.runningByHost[j.host] <= 0 {
		delete(d.runningByHost, j.host)
	}
	d.promoteLocked()
	close(d.idleCh)
	d.idleCh = make(chan struct{})
	d.mu.Unlock()
}

// Cancel marks every queued or running job belonging to call as canceled so
// the next promotion pass (or the running job's own cancellation check)
// drops it. Dispatcher cannot interrupt a job already mid-flight; that is
// Call.Cancel's job via the request's context.
func (d *Dispatcher) Cancel(call core.Call) {
	call.Cancel()
	d.mu.Lock()
	d.promoteLocked()
	d.mu.Unlock()
}

// Stats reports the current queue depth and running count, used by tests and
// by EventListener-driven diagnostics.
func (d *Dispatcher) Stats() (queued, running int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ready), len(d.running)
}

func removeJob(jobs []*job, target *job) []*job {
	out := jobs[:0]
	for _, j := range jobs {
		if j != target {
			out = append(out, j)
		}
	}
	return out
}
