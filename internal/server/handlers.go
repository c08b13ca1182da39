package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const pingTimeout = 2 * time.Second

type Handlers struct {
	Store Pinger
}

type healthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	SessionStore string `json:"sessionStore"`
}

var pingResponse = []byte(`{"message": "pong"}`)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "postly", SessionStore: "local"}
	status := http.StatusOK

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			log.Printf("session store ping failed: %v", err)
			resp.Status = "degraded"
			resp.SessionStore = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.SessionStore = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("write error: %v", err)
	}
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(pingResponse); err != nil {
		log.Printf("write error: %v", err)
	}
}
