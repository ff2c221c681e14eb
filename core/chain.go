package core

import "context"

// ConnectionHandle is the slice of transport.Connection that the
// interceptor chain is allowed to see, per spec.md §4.1 "Chain ... exposing
// ... the connection (if any)". Kept minimal and defined here (rather than
// importing the transport package) so core stays the leaf of the import
// graph and transport.Connection can implement this interface without a
// cycle.
type ConnectionHandle interface {
	ID() string
	Route() *Route
	Protocol() string
}

// Call is one logical request/response attempt including follow-ups
// (GLOSSARY). Both the sync and async entry points implement it.
type Call interface {
	Request() *Request
	Context() context.Context
	IsCanceled() bool
	Cancel()
	Info() CallInfo
}

// Chain is the immutable handle spec.md §4.1 gives each interceptor: "the
// current request, the call, the connection (if any), and a proceed(request)
// operation that invokes the next interceptor."
type Chain interface {
	Request() *Request
	Call() Call
	Connection() ConnectionHandle
	Proceed(request *Request) (*Response, error)

	// IsNetworkPosition reports whether this position in the chain sits at
	// or after Connect, i.e. whether an interceptor installed here must
	// obey the "network interceptor" contract of spec.md §4.1.
	IsNetworkPosition() bool
}

// Interceptor is one stage of the chain (GLOSSARY): "transforms
// request/response or short-circuits." Contracts are enforced by the chain
// implementation in package interceptor, not by this interface.
type Interceptor interface {
	Intercept(chain Chain) (*Response, error)
}

// InterceptorFunc adapts a plain func to Interceptor.
type InterceptorFunc func(chain Chain) (*Response, error)

func (f InterceptorFunc) Intercept(chain Chain) (*Response, error) { return f(chain) }
