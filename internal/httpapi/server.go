// Package httpapi serves entity endpoints and the auxiliary read APIs
// over HTTP.
//
// Routes per entity type, prefix /{collection}:
//
//	GET    /{collection}        list, ordered by id
//	GET    /{collection}/{id}   one instance
//	POST   /{collection}        create; 201 with Location /{collection}/{id}
//	PUT    /{collection}/{id}   partial update; _version enables the version check
//	DELETE /{collection}/{id}   delete
//
// Auxiliary routes: GET /history/{type}/{id}, GET /search?text=,
// GET /states and GET /states/{state}.
//
// Errors are written as {"code": ..., "message": ...} with the status
// given by apperr.HTTPStatus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/crud"
	"github.com/roach88/storekit/internal/plugin/history"
	"github.com/roach88/storekit/internal/plugin/search"
	"github.com/roach88/storekit/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// StateReader is the store view behind the /states routes.
type StateReader interface {
	States(ctx context.Context) ([]store.State, error)
	Snapshot(ctx context.Context, seq int64) ([]store.Record, error)
}

// RecordReader loads the current record behind a search hit.
type RecordReader interface {
	Get(ctx context.Context, alias string, id int64) (store.Record, error)
}

// Options configure a Handler. Nil auxiliary sources disable their routes.
// Search needs Records to resolve hits.
type Options struct {
	Resources []crud.Resource
	History   *history.Plugin
	Search    *search.Plugin
	Records   RecordReader
	States    StateReader
	Logger    *slog.Logger
}

// Handler is the HTTP entry point.
type Handler struct {
	mux    *http.ServeMux
	opts   Options
	logger *slog.Logger
}

// New builds the handler and registers all routes.
func New(opts Options) (*Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{mux: http.NewServeMux(), opts: opts, logger: logger}

	seen := make(map[string]bool)
	for _, r := range opts.Resources {
		collection := r.Descriptor().Collection()
		switch collection {
		case "history", "search", "states":
			return nil, fmt.Errorf("collection %q collides with a built-in route", collection)
		}
		if seen[collection] {
			return nil, fmt.Errorf("duplicate collection %q", collection)
		}
		seen[collection] = true
		h.mountResource(r)
	}

	if opts.History != nil {
		h.mux.HandleFunc("GET /history/{type}/{id}", h.handleHistory)
	}
	if opts.Search != nil {
		if opts.Records == nil {
			return nil, fmt.Errorf("search requires a record reader")
		}
		h.mux.HandleFunc("GET /search", h.handleSearch)
	}
	if opts.States != nil {
		h.mux.HandleFunc("GET /states", h.handleStates)
		h.mux.HandleFunc("GET /states/{state}", h.handleSnapshot)
	}
	return h, nil
}

// ServeHTTP implements http.Handler. Panics are logged and answered
// with a 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if recovered := recover(); recovered != nil {
			h.logger.Error("panic recovered",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Code:    "INTERNAL",
				Message: "internal error",
			})
		}
	}()
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) mountResource(res crud.Resource) {
	prefix := "/" + res.Descriptor().Collection()

	h.mux.HandleFunc("GET "+prefix, func(w http.ResponseWriter, r *http.Request) {
		list, err := res.ListAny(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	h.mux.HandleFunc("GET "+prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		inst, err := res.GetAny(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	})

	h.mux.HandleFunc("POST "+prefix, func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		id, err := res.CreateJSON(r.Context(), body)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("%s/%d", prefix, id))
		writeJSON(w, http.StatusCreated, createdBody{ID: id})
	})

	h.mux.HandleFunc("PUT "+prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		inst, err := res.PatchJSON(r.Context(), id, body)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inst)
	})

	h.mux.HandleFunc("DELETE "+prefix+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := res.Delete(r.Context(), id); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	alias := r.PathValue("type")
	entries, err := h.opts.History.History(alias, id)
	if errors.Is(err, history.ErrNotTracked) {
		h.writeError(w, r, &apperr.Error{Kind: apperr.KindNotFound, Message: err.Error()})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]historyView, len(entries))
	for i, e := range entries {
		out[i] = newHistoryView(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSearch answers with the current state of every matching instance.
// Hits deleted since they were indexed are skipped.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits := h.opts.Search.Search(r.URL.Query().Get("text"))
	out := make([]recordView, 0, len(hits))
	for _, hit := range hits {
		rec, err := h.opts.Records.Get(r.Context(), hit.Alias, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			h.writeError(w, r, apperr.PersistenceFailed(err))
			return
		}
		out = append(out, newRecordView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.opts.States.States(r.Context())
	if err != nil {
		h.writeError(w, r, apperr.PersistenceFailed(err))
		return
	}
	out := make([]stateView, len(states))
	for i, st := range states {
		out[i] = newStateView(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	seq, err := pathInt(r, "state")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.opts.States.Snapshot(r.Context(), seq)
	if errors.Is(err, store.ErrStateNotFound) {
		h.writeError(w, r, &apperr.Error{Kind: apperr.KindNotFound, Message: fmt.Sprintf("state %d not found", seq)})
		return
	}
	if err != nil {
		h.writeError(w, r, apperr.PersistenceFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotView(seq, recs))
}

// writeError maps err onto a status and JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.PersistenceFailed(err)
	}
	status := apperr.HTTPStatus(e.Kind)

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", e.Kind,
			"error", err,
		)
	} else {
		h.logger.Debug("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"code", e.Kind,
			"error", err,
		)
	}
	writeJSON(w, status, errorBody{Code: string(e.Kind), Message: e.Error()})
}

func pathInt(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.BadRequest(fmt.Sprintf("invalid %s %q", name, raw), nil)
	}
	return n, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.BadRequest("cannot read request body", err)
	}
	return body, nil
}

// writeJSON writes a JSON response with the provided status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
