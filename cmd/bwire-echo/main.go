// Command bwire-echo serves a small echo API. It is configured through BW_ prefixed environment variables,
// see bwapp.BaseEnvironment and bwire.Config.
package main

import (
	"github.com/advdv/bwire/bwapp"
	"github.com/advdv/bwire/router"
	"go.uber.org/fx"
)

// Env is the environment of the echo service.
type Env struct {
	bwapp.BaseEnvironment
	// MaxLines caps the /count endpoint.
	MaxLines int64 `env:"ECHO_MAX_LINES" envDefault:"10000"`
}

func routing(m *bwapp.Mux, h *Handlers) {
	m.HandleFunc("GET /echo/{rest:path}", h.Inspect, router.WithName("inspect"))
	m.HandleFunc("POST /echo", h.Echo)
	m.HandleFunc("POST /pluck", h.Pluck)
	m.HandleFunc("GET /items/{id:uuid}", h.Item, router.WithName("item"))
	m.HandleFunc("GET /count/{n:int}", h.Count)
	m.HandleFunc("GET /ws", h.Socket)
}

func main() {
	bwapp.NewApp[Env](routing, bwapp.WithFx(fx.Provide(NewHandlers))).Run()
}
