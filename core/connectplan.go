package core

// PlanState names the Connection lifecycle of spec.md §3:
// "NEW → TCP_CONNECTED → TLS_CONNECTED → READY → IN_USE{1..N} → IDLE → CLOSED".
type PlanState int

const (
	StateNew PlanState = iota
	StateTCPConnected
	StateTLSConnected
	StateReady
	StateInUse
	StateIdle
	StateClosed
)

func (s PlanState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateTCPConnected:
		return "TCP_CONNECTED"
	case StateTLSConnected:
		return "TLS_CONNECTED"
	case StateReady:
		return "READY"
	case StateInUse:
		return "IN_USE"
	case StateIdle:
		return "IDLE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectResult is what executing a ConnectPlan yields, per spec.md §3
// "Yields ConnectResult(plan, nextPlan?, error?)".
type ConnectResult struct {
	Plan     *ConnectPlan
	NextPlan *ConnectPlan // non-nil for tunnel follow-up / proxy redirect
	Err      error
	Canceled bool
}

// ConnectPlan is a single prepared connect attempt, per spec.md §3
// "(Route, tunnelRequired, tlsRequired, retrySource)".
type ConnectPlan struct {
	Route          *Route
	TunnelRequired bool
	TLSRequired    bool
	RetrySource    *ConnectPlan // the plan this one was derived from, or nil
}
