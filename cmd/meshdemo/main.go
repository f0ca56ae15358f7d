// Command meshdemo wires two kindmesh peers over an in-memory transport
// and runs through the protocol's core scenarios end to end: an echoed
// primitive, a Future resolving, a Sink accepting a run of values, a
// Stream enumerating a sequence, and a reflected-trait method call. Flag
// parsing and a stdlib logger, trimmed to a one-shot demo instead of a
// long-running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/kind"
	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshformat/json"
	"github.com/kindmesh/kindmesh/meshformat/msgpack"
	"github.com/kindmesh/kindmesh/meshformat/yaml"
	"github.com/kindmesh/kindmesh/meshtransport/inmem"
	"github.com/kindmesh/kindmesh/reflectmesh"
)

type stdLogger struct{}

func (l *stdLogger) Debug(msg string, kv ...any) { log.Printf("[DEBUG] %s %v", msg, kv) }
func (l *stdLogger) Info(msg string, kv ...any)  { log.Printf("[INFO] %s %v", msg, kv) }
func (l *stdLogger) Warn(msg string, kv ...any)  { log.Printf("[WARN] %s %v", msg, kv) }
func (l *stdLogger) Error(msg string, kv ...any) { log.Printf("[ERROR] %s %v", msg, kv) }

type greeter struct{}

func (greeter) Greet(ctx context.Context, name string) (string, error) {
	return "hello, " + name, nil
}

func greeterProtocol() reflectmesh.ProtocolDescriptor {
	return reflectmesh.ProtocolDescriptor{
		ID: "meshdemo.Greeter",
		Methods: []reflectmesh.MethodDescriptor{
			{
				Name:     "Greet",
				Args:     []reflectmesh.ErasedKind{reflectmesh.Erase[string](kind.String)},
				Return:   reflectmesh.Erase[string](kind.String),
				Receiver: reflectmesh.ReceiverImmutable,
			},
		},
	}
}

func pickFormat(name string) meshformat.Format {
	switch name {
	case "msgpack":
		return msgpack.New()
	case "yaml":
		return meshformat.Transcode(yaml.New())
	default:
		return json.New()
	}
}

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "per-scenario timeout")
	format := flag.String("format", "json", "wire format: json, msgpack, or yaml")
	flag.Parse()

	fmt_ := pickFormat(*format)
	logger := &stdLogger{}
	a, b := inmem.NewPair(16)
	host := idchannel.NewWith(a, fmt_, true, idchannel.WithLogger(logger))
	peer := idchannel.NewWith(b, fmt_, false, idchannel.WithLogger(logger))
	defer host.Close()
	defer peer.Close()

	runEcho(host, peer, *timeout)
	runFuture(host, peer, *timeout)
	runSink(host, peer, *timeout)
	runStream(host, peer, *timeout)
	runCall(host, peer, *timeout)
}

func runEcho(host, peer *idchannel.IdChannel, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ref, err := idchannel.Fork(ctx, host, kind.String, "hello, kindmesh")
	must("fork string", err)
	got, err := idchannel.GetFork(ctx, peer, kind.String, ref)
	must("construct string", err)
	fmt.Printf("echo:   %q\n", got)
}

func runFuture(host, peer *idchannel.IdChannel, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	future, resolve, _ := kind.NewFuture[bool, string]()
	resolve(true)
	futureKind := kind.NewFutureKind[bool, string]("meshdemo.BoolFuture", kind.Bool, kind.String)

	ref, err := idchannel.Fork(ctx, host, futureKind, future)
	must("fork future", err)
	got, err := idchannel.GetFork(ctx, peer, futureKind, ref)
	must("construct future", err)
	ok, errVal, err := got.Await(ctx)
	must("await future", err)
	fmt.Printf("future: ok=%v err=%q\n", ok, errVal)
}

func runSink(host, peer *idchannel.IdChannel, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	received := make(chan string, 8)
	consume := func(ctx context.Context, v string) *string {
		received <- v
		return nil
	}
	sinkKind := kind.NewSinkKind[string, string]("meshdemo.StringSink", kind.String, kind.String, consume)

	sink := &kind.Sink[string, string]{}
	ref, err := idchannel.Fork(ctx, host, sinkKind, sink)
	must("fork sink", err)
	remote, err := idchannel.GetFork(ctx, peer, sinkKind, ref)
	must("construct sink", err)

	for _, v := range []string{"one", "two", "three"} {
		must("sink send", remote.Send(ctx, v))
	}
	for i := 0; i < 3; i++ {
		fmt.Printf("sink:   %s\n", <-received)
	}
}

func runStream(host, peer *idchannel.IdChannel, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	items := []string{"a", "b", "c"}
	i := 0
	produce := func(ctx context.Context) (string, bool, *string, error) {
		if i >= len(items) {
			return "", true, nil, nil
		}
		v := items[i]
		i++
		return v, false, nil, nil
	}
	streamKind := kind.NewStreamKind[string, string]("meshdemo.StringStream", kind.String, kind.String, produce)

	stream := &kind.Stream[string, string]{}
	ref, err := idchannel.Fork(ctx, host, streamKind, stream)
	must("fork stream", err)
	constructed, err := idchannel.GetFork(ctx, peer, streamKind, ref)
	must("construct stream", err)

	for {
		v, ok, errVal, err := constructed.Recv(ctx)
		must("stream recv", err)
		if !ok {
			break
		}
		fmt.Printf("stream: %s (err=%v)\n", v, errVal)
	}
}

func runCall(host, peer *idchannel.IdChannel, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	objKind := reflectmesh.NewObjectKind(greeterProtocol())
	ref, err := idchannel.Fork(ctx, host, objKind, greeter{})
	must("fork greeter", err)
	constructed, err := idchannel.GetFork(ctx, peer, objKind, ref)
	must("construct greeter", err)

	proxy := constructed.(*reflectmesh.Proxy)
	result, err := proxy.Invoke(ctx, 0, []any{"world"})
	must("invoke greet", err)
	fmt.Printf("call:   %v\n", result)

	if _, err := proxy.Invoke(ctx, 0, nil); err != nil {
		fmt.Printf("call:   expected argument-count error: %v\n", err)
	}
}

func must(step string, err error) {
	if err != nil {
		log.Fatalf("%s: %v", step, err)
	}
}
