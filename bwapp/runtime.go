package bwapp

import (
	"net/http"

	"github.com/carlmjohnson/requests"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into handler constructors via fx instead of pulling from context.
//
// Example:
//
//	type Handlers struct {
//	    rt *bwapp.Runtime[Env]
//	}
//
//	func NewHandlers(rt *bwapp.Runtime[Env]) *Handlers {
//	    return &Handlers{rt: rt}
//	}
//
//	func (h *Handlers) GetItem(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
//	    env := h.rt.Env()
//	    url, _ := h.rt.Reverse("get-item", id)
//	    // ...
//	}
type Runtime[E Environment] struct {
	env       E
	mux       *Mux
	transport http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	Transport http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, mux *Mux, params RuntimeParams) *Runtime[E] {
	transport := params.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Runtime[E]{
		env:       env,
		mux:       mux,
		transport: transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the URL for a named route with the given parameters.
// The route must have been registered with router.WithName.
func (r *Runtime[E]) Reverse(name string, params ...string) (string, error) {
	return r.mux.Reverse(name, params...)
}

// NewRequest starts an outbound request to baseURL over the traced transport. Pass the handler's
// context to Fetch so the outbound span becomes a child of the request span.
//
//	var out Item
//	err := h.rt.NewRequest("https://api.example.com/items").Path(id).ToJSON(&out).Fetch(ctx)
func (r *Runtime[E]) NewRequest(baseURL string) *requests.Builder {
	return newRequestBuilder(r.transport).BaseURL(baseURL)
}
