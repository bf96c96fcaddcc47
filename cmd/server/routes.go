package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluescreen10/sessionx/internal/etag"
	"github.com/bluescreen10/sessionx/logger"
	"github.com/bluescreen10/sessionx/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter wires the session routes. /metrics is served outside the
// session middleware so scrapes never touch the store.
func NewRouter(mngr *session.Manager, lgr *logger.Logger, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(lgr.Handler)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	h := &handler{mngr: mngr, log: lgr.Zerolog()}
	r.Group(func(r chi.Router) {
		r.Use(mngr.Handler)

		r.Get("/", h.visit)
		r.Post("/logout", h.logout)
		r.Post("/tags/{tag}", h.tag)
		r.Delete("/tags/{tag}", h.destroyTagged)
		r.With(etag.Handler).Get("/sessions/{id}", h.show)
	})

	return r
}

type handler struct {
	mngr *session.Manager
	log  zerolog.Logger
}

// sessionView is the JSON representation of a stored session.
type sessionView struct {
	ID           string         `json:"id"`
	LastActivity time.Time      `json:"last_activity"`
	Lifetime     *time.Time     `json:"lifetime,omitempty"`
	MaximumAge   int64          `json:"maximum_age,omitempty"`
	Tags         []string       `json:"tags"`
	Data         map[string]any `json:"data"`
}

func (h *handler) visit(w http.ResponseWriter, r *http.Request) {
	sess := h.mngr.Get(r)
	visits := sess.GetInt("visits") + 1
	sess.PutData("visits", visits)
	fmt.Fprintf(w, "You have visited %d times\n", visits)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	h.mngr.Get(r).Destroy("logout")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) tag(w http.ResponseWriter, r *http.Request) {
	if err := h.mngr.Get(r).AddTag(chi.URLParam(r, "tag")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) destroyTagged(w http.ResponseWriter, r *http.Request) {
	n, err := h.mngr.DestroyTagged(r.Context(), chi.URLParam(r, "tag"))
	switch {
	case errors.Is(err, session.ErrNotSupported):
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, r, map[string]int{"destroyed": n})
}

func (h *handler) show(w http.ResponseWriter, r *http.Request) {
	sess, found, err := h.mngr.Find(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	view := sessionView{
		ID:           sess.GetID(),
		LastActivity: sess.GetLastActivityTimestamp(),
		MaximumAge:   int64(sess.GetMaximumAge() / time.Second),
		Tags:         sess.GetTags(),
		Data:         make(map[string]any),
	}
	if lifetime := sess.GetLifetime(); !lifetime.IsZero() {
		view.Lifetime = &lifetime
	}
	for _, k := range sess.GetKeys() {
		view.Data[k] = sess.GetData(k)
	}
	h.writeJSON(w, r, view)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}
