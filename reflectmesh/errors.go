// Package reflectmesh turns a Go interface into a transportable Kind: a
// proxy on the constructing side forwards every method call across a
// dispatch fork as a Call/Response pair, and a shim on the deconstructing
// side decodes each Call and invokes the real receiver. It carries the same
// call-by-index dispatch, error taxonomy, and type-erased cast machinery a
// reflection layer over Rust trait objects would need; kindmesh expresses
// what a derive macro would otherwise generate per interface as a small
// hand-written generic dispatcher instead, since Go has no macros to
// generate one shim type per interface.
package reflectmesh

import "fmt"

// CallErrorKind discriminates the wire-serializable shapes a failed Call
// can report back on a Response, since the concrete Go error types below
// don't survive a Format round trip on their own.
type CallErrorKind string

const (
	CallErrorArgumentCount CallErrorKind = "argument_count"
	CallErrorMethodIndex   CallErrorKind = "method_index"
	CallErrorArgumentType  CallErrorKind = "argument_type"
	CallErrorRateLimit     CallErrorKind = "rate_limit"
	CallErrorDispatch      CallErrorKind = "dispatch"
)

// CallError is the wire shape a Response carries instead of a Return fork
// when dispatch failed. The caller's Proxy.Invoke decodes it back into the
// matching typed error so a failed call surfaces "as a typed error on the
// corresponding Future return" instead of hanging until its context expires.
type CallError struct {
	Kind     CallErrorKind `json:"kind" msgpack:"kind"`
	Message  string        `json:"message" msgpack:"message"`
	Expected int           `json:"expected,omitempty" msgpack:"expected,omitempty"`
	Got      int           `json:"got,omitempty" msgpack:"got,omitempty"`
	Index    MethodIndex   `json:"index,omitempty" msgpack:"index,omitempty"`
	Count    int           `json:"count,omitempty" msgpack:"count,omitempty"`
	Position int           `json:"position,omitempty" msgpack:"position,omitempty"`
	Want     string        `json:"want,omitempty" msgpack:"want,omitempty"`
	Protocol string        `json:"protocol,omitempty" msgpack:"protocol,omitempty"`
	Method   string        `json:"method,omitempty" msgpack:"method,omitempty"`
}

func (e *CallError) Error() string { return e.Message }

// toCallError converts a dispatch failure into its wire shape.
func toCallError(err error) *CallError {
	switch e := err.(type) {
	case *ArgumentCountError:
		return &CallError{Kind: CallErrorArgumentCount, Message: e.Error(), Expected: e.Expected, Got: e.Got}
	case *MethodIndexError:
		return &CallError{Kind: CallErrorMethodIndex, Message: e.Error(), Index: e.Index, Count: e.Count}
	case *ArgumentTypeError:
		return &CallError{Kind: CallErrorArgumentType, Message: e.Error(), Position: e.Position, Want: e.Want}
	case *RateLimitError:
		return &CallError{Kind: CallErrorRateLimit, Message: e.Error(), Protocol: e.Protocol, Method: e.Method}
	case *DispatchError:
		return &CallError{Kind: CallErrorDispatch, Message: e.Error(), Index: e.Method}
	default:
		return &CallError{Kind: CallErrorDispatch, Message: err.Error()}
	}
}

// fromCallError reconstructs the typed error a CallError's Kind names, the
// inverse of toCallError.
func fromCallError(e *CallError) error {
	switch e.Kind {
	case CallErrorArgumentCount:
		return &ArgumentCountError{Expected: e.Expected, Got: e.Got}
	case CallErrorMethodIndex:
		return &MethodIndexError{Index: e.Index, Count: e.Count}
	case CallErrorArgumentType:
		return &ArgumentTypeError{Position: e.Position, Want: e.Want}
	case CallErrorRateLimit:
		return &RateLimitError{Protocol: e.Protocol, Method: e.Method}
	default:
		return &DispatchError{Method: e.Index, Cause: fmt.Errorf("%s", e.Message)}
	}
}

// MethodIndex selects one method within a ProtocolDescriptor.
type MethodIndex uint8

// ArgumentCountError reports a Call whose argument count doesn't match the
// method's descriptor.
type ArgumentCountError struct {
	Expected int
	Got      int
}

func (e *ArgumentCountError) Error() string {
	return fmt.Sprintf("reflectmesh: got %d arguments, expected %d", e.Got, e.Expected)
}

// ArgumentTypeError reports an argument that decoded to the wrong Go type
// for its declared position.
type ArgumentTypeError struct {
	Position int
	Want     string
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("reflectmesh: invalid type for argument %d, want %s", e.Position, e.Want)
}

// MethodIndexError reports a Call naming a method index outside the
// protocol's method table.
type MethodIndexError struct {
	Index MethodIndex
	Count int
}

func (e *MethodIndexError) Error() string {
	return fmt.Sprintf("reflectmesh: method index %d out of range (%d methods)", e.Index, e.Count)
}

// ReceiverKindError reports a Call whose receiver kind (value/pointer)
// doesn't match what the method expects.
type ReceiverKindError struct {
	Want Receiver
	Got  Receiver
}

func (e *ReceiverKindError) Error() string {
	return fmt.Sprintf("reflectmesh: expected %s receiver, got %s", e.Want, e.Got)
}

// CastError reports a failed upcast/downcast through the root type-id
// registry.
type CastError struct {
	Want string
	Have string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("reflectmesh: cannot cast %s to %s in this context", e.Have, e.Want)
}

// DispatchError wraps a failure the shim hit while invoking the concrete
// receiver, as opposed to a failure decoding the Call itself.
type DispatchError struct {
	Method MethodIndex
	Cause  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("reflectmesh: method %d dispatch failed: %v", e.Method, e.Cause)
}
func (e *DispatchError) Unwrap() error { return e.Cause }

// RateLimitError reports a Call a Shim's Limiter rejected before dispatch.
type RateLimitError struct {
	Protocol string
	Method   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("reflectmesh: call to %s.%s rate-limited", e.Protocol, e.Method)
}
