// Package providertest provides a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Mohsinsiddi/zeroslip/internal/provider"
)

// Handler answers one request. Params are the JSON encodings of the
// request parameters. The returned value is JSON-encoded as the result.
type Handler func(params []json.RawMessage) (any, error)

// Call is a recorded request.
type Call struct {
	Method string
	Params []json.RawMessage
}

// Fake is a provider whose answers are scripted per method. Methods without
// a handler fail with CodeUnsupportedMethod.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	feed     provider.Feed
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

// Handle installs h for method, replacing any previous handler.
func (f *Fake) Handle(method string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
	return f
}

// Return makes method always answer v.
func (f *Fake) Return(method string, v any) *Fake {
	return f.Handle(method, func([]json.RawMessage) (any, error) { return v, nil })
}

// Fail makes method always fail with a provider error.
func (f *Fake) Fail(method string, code int, msg string) *Fake {
	return f.Handle(method, func([]json.RawMessage) (any, error) {
		return nil, &provider.Error{Code: code, Message: msg}
	})
}

// Sequence answers method with results in order, repeating the last one.
func (f *Fake) Sequence(method string, results ...Handler) *Fake {
	var (
		mu sync.Mutex
		i  int
	)
	return f.Handle(method, func(params []json.RawMessage) (any, error) {
		mu.Lock()
		h := results[i]
		if i < len(results)-1 {
			i++
		}
		mu.Unlock()
		return h(params)
	})
}

// Request implements provider.Provider.
func (f *Fake) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Params: encoded})
	h, ok := f.handlers[method]
	f.mu.Unlock()

	if !ok {
		return nil, provider.NewError(provider.CodeUnsupportedMethod, "method %s is not supported", method)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := h(encoded)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Subscribe implements provider.Provider.
func (f *Fake) Subscribe() (<-chan provider.Event, func()) {
	return f.feed.Subscribe()
}

// Emit sends ev to subscribers.
func (f *Fake) Emit(ev provider.Event) {
	f.feed.Send(ev)
}

// Subscribers returns the number of live subscriptions.
func (f *Fake) Subscribers() int {
	return f.feed.Len()
}

// Calls returns every recorded request.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Methods returns the recorded method names in order.
func (f *Fake) Methods() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Method)
	}
	return out
}

// Count returns how many times method was requested.
func (f *Fake) Count(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}
