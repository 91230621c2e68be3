package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwapp"
	"github.com/advdv/bwire/websocket"
	"github.com/advdv/bwire/wire"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Handlers implements the echo API.
type Handlers struct {
	maxLines int64
}

func NewHandlers(rt *bwapp.Runtime[Env]) *Handlers {
	return &Handlers{maxLines: rt.Env().MaxLines}
}

type inspection struct {
	Method string              `json:"method"`
	Path   string              `json:"path"`
	Rest   string              `json:"rest"`
	Query  map[string][]string `json:"query,omitempty"`
	Header map[string][]string `json:"header"`
}

// Inspect describes the request as JSON.
func (h *Handlers) Inspect(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	q, err := r.Query()
	if err != nil {
		return bwire.NewError(bwire.CodeBadRequest, err)
	}

	rest, _ := r.Params.Get("rest")
	out := inspection{
		Method: r.MethodString(),
		Path:   string(r.Path),
		Rest:   rest.String(),
		Header: map[string][]string{},
	}
	for _, p := range q {
		if out.Query == nil {
			out.Query = map[string][]string{}
		}
		out.Query[p.Key] = append(out.Query[p.Key], p.Value)
	}
	for _, f := range r.Header {
		name := http.CanonicalHeaderKey(string(f.Name))
		out.Header[name] = append(out.Header[name], string(f.Value))
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// Echo answers with the request body.
func (h *Handlers) Echo(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	body, err := r.Body().ReadAll(ctx)
	if err != nil {
		return err
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, err = w.Write(body)
	return err
}

// Pluck extracts the value at the "path" query parameter from the JSON body.
func (h *Handlers) Pluck(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	q, err := r.Query()
	if err != nil {
		return bwire.NewError(bwire.CodeBadRequest, err)
	}
	path := q.Get("path")
	if path == "" {
		return bwire.Errorf(bwire.CodeBadRequest, "missing path")
	}

	body, err := r.Body().ReadAll(ctx)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return bwire.Errorf(bwire.CodeBadRequest, "body is not valid JSON")
	}

	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return bwire.Errorf(bwire.CodeNotFound, "nothing at %q", path)
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write([]byte(res.Raw))
	return err
}

// Item reports the version of the UUID in the path.
func (h *Handlers) Item(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	id, _ := r.Params.Get("id")
	bwapp.Log(ctx).Debug("item lookup", zap.Stringer("id", id.UUID()))

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"id":      id.UUID().String(),
		"version": int(id.UUID().Version()),
	})
}

// Count streams n numbered lines and reports the count in a trailer.
func (h *Handlers) Count(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	n, _ := r.Params.Get("n")
	lines := n.Int()
	if lines > h.maxLines {
		return bwire.Errorf(bwire.CodeRequestEntityTooLarge, "at most %d lines", h.maxLines)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Stream(func(ctx context.Context, emit func([]byte) error) (wire.Header, error) {
		var line []byte
		for i := range lines {
			line = strconv.AppendInt(line[:0], i+1, 10)
			if err := emit(append(line, '\n')); err != nil {
				return nil, err
			}
		}
		var trailers wire.Header
		trailers.Set("X-Lines", strconv.FormatInt(lines, 10))
		return trailers, nil
	})
	return nil
}

// Socket echoes WebSocket messages until the peer closes.
func (h *Handlers) Socket(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	return bwire.UpgradeWebSocket(w, r, func(ctx context.Context, ws *websocket.Conn) error {
		for {
			op, msg, err := ws.ReadMessage(ctx)
			if err != nil {
				return err
			}
			if err := ws.WriteMessage(ctx, op, msg); err != nil {
				return err
			}
		}
	})
}
