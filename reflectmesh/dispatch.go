package reflectmesh

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/meshlimit"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshobserve"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Call is the wire frame a Proxy sends for one method invocation. kindmesh's Call also
// carries its own Reply fork: Response routing needs a fork id the shim
// can send back on, which the original's in-process Rust call/response
// pairing gets for free from the borrow checker and kindmesh's
// fork-per-channel model does not.
type Call struct {
	Method   MethodIndex         `json:"method" msgpack:"method"`
	Protocol meshregistry.TypeID `json:"protocol" msgpack:"protocol"`
	Args     []idchannel.ForkRef `json:"args" msgpack:"args"`
	Reply    idchannel.ForkRef   `json:"reply" msgpack:"reply"`
}

// Response is the wire frame a shim sends back for one Call. A failed
// dispatch carries Error instead of a usable Return fork.
type Response struct {
	Method   MethodIndex         `json:"method" msgpack:"method"`
	Protocol meshregistry.TypeID `json:"protocol" msgpack:"protocol"`
	Return   idchannel.ForkRef   `json:"return" msgpack:"return"`
	Error    *CallError          `json:"error,omitempty" msgpack:"error,omitempty"`
}

// dispatchItem is ObjectKind's ConstructItem/DeconstructItem: the
// ForkRef of the persistent fork every Call for this object travels on,
// the same "one channel fork carries a stream of envelopes" shape Sink and
// Stream use.
type dispatchItem struct {
	Channel idchannel.ForkRef `json:"channel" msgpack:"channel"`
}

func getForkAny(ctx context.Context, f idchannel.Forker, k ErasedKind, ref idchannel.ForkRef) (any, error) {
	if !meshregistry.Default().Has(k.TypeID()) {
		return nil, idchannel.NewDecodeError(ref.ID, fmt.Errorf("reflectmesh: no registry entry for kind %q", k.TypeID()))
	}
	raw := f.AttachFork(ref)
	select {
	case payload, ok := <-raw:
		if !ok {
			return nil, idchannel.NewRoutingError(ref.ID, "fork closed before any frame arrived")
		}
		item, err := f.Format().Unmarshal(payload, meshformat.SeedFunc(k.NewConstructItem))
		if err != nil {
			return nil, idchannel.NewDecodeError(ref.ID, err)
		}
		start := time.Now()
		v, err := k.ConstructAny(ctx, item, f)
		if f.Config().EnableTelemetry {
			meshobserve.RecordConstruct(string(k.TypeID()), time.Since(start).Seconds())
		}
		return v, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func forkAny(ctx context.Context, f idchannel.Forker, k ErasedKind, value any) (idchannel.ForkRef, error) {
	item, err := k.DeconstructAny(ctx, value, f)
	if err != nil {
		return idchannel.ForkRef{}, err
	}
	ref, send := f.OpenFork()
	payload, err := f.Format().Marshal(item)
	if err != nil {
		return idchannel.ForkRef{}, idchannel.NewDecodeError(ref.ID, err)
	}
	if err := send(ctx, payload); err != nil {
		return idchannel.ForkRef{}, err
	}
	return ref, nil
}

// Proxy is the constructing side's stand-in for a remote reflected
// interface: every method a generated (or hand-written) wrapper type
// exposes should translate to one Invoke call.
type Proxy struct {
	proto        ProtocolDescriptor
	f            idchannel.Forker
	dispatchSend idchannel.RawSender
	// callTimeout bounds Invoke when ctx carries no deadline of its own;
	// zero means no default is applied.
	callTimeout time.Duration
}

// Invoke calls method index on the remote receiver with args, and returns
// its decoded return value. If ctx has no deadline, p.callTimeout (from
// meshconfig.Config.CallTimeout) applies as the default.
func (p *Proxy) Invoke(ctx context.Context, method MethodIndex, args []any) (any, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	if int(method) >= len(p.proto.Methods) {
		return nil, &MethodIndexError{Index: method, Count: len(p.proto.Methods)}
	}
	desc := p.proto.Methods[method]
	if len(args) != len(desc.Args) {
		return nil, &ArgumentCountError{Expected: len(desc.Args), Got: len(args)}
	}
	argRefs := make([]idchannel.ForkRef, len(args))
	for i, a := range args {
		ref, err := forkAny(ctx, p.f, desc.Args[i], a)
		if err != nil {
			return nil, err
		}
		argRefs[i] = ref
	}
	replyRef, _ := p.f.OpenFork()
	call := Call{Method: method, Protocol: p.proto.ID, Args: argRefs, Reply: replyRef}
	payload, err := p.f.Format().Marshal(call)
	if err != nil {
		return nil, idchannel.NewDecodeError(replyRef.ID, err)
	}
	if err := p.dispatchSend(ctx, payload); err != nil {
		return nil, err
	}
	raw := p.f.AttachFork(replyRef)
	select {
	case respPayload, ok := <-raw:
		if !ok {
			return nil, idchannel.NewRoutingError(replyRef.ID, "reply fork closed before responding")
		}
		decoded, err := p.f.Format().Unmarshal(respPayload, meshformat.SeedFunc(func() any { return new(Response) }))
		if err != nil {
			return nil, idchannel.NewDecodeError(replyRef.ID, err)
		}
		resp := typeutil.Must[*Response](decoded, "reflectmesh.Proxy.Invoke response")
		if resp.Error != nil {
			return nil, fromCallError(resp.Error)
		}
		return getForkAny(ctx, p.f, desc.Return, resp.Return)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cast reinterprets p as to's protocol, returning a *Proxy whose method
// table is to's but which still forwards over this Proxy's dispatch fork.
// It fails with CastError unless to is p's root marker or one of the
// supertraits the original protocol declared. Only these upcast edges are
// registered, so a Proxy cast to the root marker cannot be cast back to
// the protocol it came from.
func (p *Proxy) Cast(to ProtocolDescriptor) (*Proxy, error) {
	if _, err := Cast(string(p.proto.ID), string(to.ID), p); err != nil {
		return nil, err
	}
	return &Proxy{proto: to, f: p.f, dispatchSend: p.dispatchSend, callTimeout: p.callTimeout}, nil
}

// Shim is the deconstructing side's dispatcher: it reads Calls off the
// object's dispatch fork, invokes the matching method on receiver by name
// via reflection (Go has no generated per-interface shim the way
// a Rust derive macro would produce one), and forks the Response
// back over each Call's Reply fork.
type Shim struct {
	proto    ProtocolDescriptor
	receiver any
	limiter  *meshlimit.Limiter
}

// NewShim builds a Shim dispatching Calls against receiver according to
// proto. receiver's concrete type must have one exported method per
// MethodDescriptor.Name, taking (context.Context, args...) and returning
// (result, error).
func NewShim(proto ProtocolDescriptor, receiver any) *Shim {
	return &Shim{proto: proto, receiver: receiver}
}

// WithLimiter attaches a per-(protocol,method) call rate limit, rejecting
// calls over it with RateLimitError instead of dispatching them.
func (s *Shim) WithLimiter(l *meshlimit.Limiter) *Shim {
	s.limiter = l
	return s
}

// Serve reads Calls off raw (the object's dispatch fork) until it closes,
// dispatching each one. It runs calls sequentially, in arrival order.
func (s *Shim) Serve(ctx context.Context, f idchannel.Forker, raw <-chan []byte) {
	for payload := range raw {
		call, err := s.decodeCall(f, payload)
		if err != nil {
			f.Logger().Error("reflectmesh: dropping unparseable call", "error", err)
			continue
		}
		start := time.Now()
		resp, err := s.dispatch(ctx, f, call)
		if f.Config().EnableTelemetry {
			status := "ok"
			if err != nil {
				status = "error"
			}
			methodName := "unknown"
			if int(call.Method) < len(s.proto.Methods) {
				methodName = s.proto.Methods[call.Method].Name
			}
			meshobserve.RecordCall(string(s.proto.ID), methodName, status, time.Since(start).Seconds())
		}
		if err != nil {
			f.Logger().Warn("reflectmesh: call dispatch failed", "method", call.Method, "error", err)
			resp = Response{Method: call.Method, Protocol: s.proto.ID, Error: toCallError(err)}
		}
		respPayload, err := f.Format().Marshal(resp)
		if err != nil {
			f.Logger().Error("reflectmesh: response marshal failed", "error", err)
			continue
		}
		if err := f.BindSender(call.Reply)(ctx, respPayload); err != nil {
			f.Logger().Error("reflectmesh: response send failed", "error", err)
		}
	}
}

func (s *Shim) decodeCall(f idchannel.Forker, payload []byte) (*Call, error) {
	decoded, err := f.Format().Unmarshal(payload, meshformat.SeedFunc(func() any { return new(Call) }))
	if err != nil {
		return nil, err
	}
	return typeutil.Must[*Call](decoded, "reflectmesh.Shim.decodeCall"), nil
}

func (s *Shim) dispatch(ctx context.Context, f idchannel.Forker, call *Call) (Response, error) {
	if int(call.Method) >= len(s.proto.Methods) {
		return Response{}, &MethodIndexError{Index: call.Method, Count: len(s.proto.Methods)}
	}
	desc := s.proto.Methods[call.Method]
	if len(call.Args) != len(desc.Args) {
		return Response{}, &ArgumentCountError{Expected: len(desc.Args), Got: len(call.Args)}
	}
	if !s.limiter.Allow(string(s.proto.ID), desc.Name, meshlimit.Now()) {
		return Response{}, &RateLimitError{Protocol: string(s.proto.ID), Method: desc.Name}
	}
	if desc.Receiver == ReceiverMutable && receiverKindOf(s.receiver) != ReceiverMutable {
		return Response{}, &ReceiverKindError{Want: desc.Receiver, Got: receiverKindOf(s.receiver)}
	}
	in := make([]reflect.Value, 0, len(call.Args)+1)
	in = append(in, reflect.ValueOf(ctx))
	for i, ref := range call.Args {
		v, err := getForkAny(ctx, f, desc.Args[i], ref)
		if err != nil {
			return Response{}, &ArgumentTypeError{Position: i, Want: string(desc.Args[i].TypeID())}
		}
		in = append(in, reflect.ValueOf(v))
	}
	recv := reflect.ValueOf(s.receiver)
	method := recv.MethodByName(desc.Name)
	if !method.IsValid() {
		return Response{}, &DispatchError{Method: call.Method, Cause: &MethodIndexError{Index: call.Method, Count: len(s.proto.Methods)}}
	}
	out := method.Call(in)
	if len(out) != 2 {
		return Response{}, &DispatchError{Method: call.Method, Cause: errWrongSignature{desc.Name}}
	}
	if !out[1].IsNil() {
		return Response{}, &DispatchError{Method: call.Method, Cause: typeutil.Must[error](out[1].Interface(), desc.Name+" return error")}
	}
	returnRef, err := forkAny(ctx, f, desc.Return, out[0].Interface())
	if err != nil {
		return Response{}, err
	}
	return Response{Method: call.Method, Protocol: s.proto.ID, Return: returnRef}, nil
}

// receiverKindOf reports whether receiver is addressed the way a mutable
// receiver requires: a pointer. Go methods don't distinguish &self/&mut
// self/self the way Rust does, so this only checks the one dimension a
// receiver mismatch can actually take in Go — value vs pointer.
func receiverKindOf(receiver any) Receiver {
	if reflect.ValueOf(receiver).Kind() == reflect.Ptr {
		return ReceiverMutable
	}
	return ReceiverImmutable
}

type errWrongSignature struct{ name string }

func (e errWrongSignature) Error() string {
	return "reflectmesh: method " + e.name + " must return (result, error)"
}
