// Package api is the HTTP facade (C8): the handful of read-only JSON
// endpoints and feedback sink that sit alongside the WebSocket upgrade
// route, grounded in the teacher's own mux-plus-jsonOK/jsonError idiom.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/apex/log"

	"github.com/sameergiri/relayhub/internal/config"
	"github.com/sameergiri/relayhub/internal/hub"
	"github.com/sameergiri/relayhub/internal/persist"
	"github.com/sameergiri/relayhub/internal/qrcode"
	"github.com/sameergiri/relayhub/pkg/utils"
)

// Server wires the hub's WebSocket upgrade route together with the
// collaborator-backed JSON endpoints of §6.
type Server struct {
	cfg   config.Config
	hub   *hub.Hub
	store persist.Store
}

// NewServer constructs the HTTP facade bound to hub and store.
func NewServer(cfg config.Config, h *hub.Hub, store persist.Store) *Server {
	return &Server{cfg: cfg, hub: h, store: store}
}

// Handler builds the request router for the whole process.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/qrcode", s.handleQRCode)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/feedback", s.handleFeedback)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Upgrade(w, r)
}

// handleQRCode serves GET /api/qrcode[?session=CODE] (§6).
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result, err := qrcode.Generate(s.cfg.Port, r.URL.Query().Get("session"))
	if err != nil {
		log.WithError(err).Error("api: qrcode generation failed")
		jsonError(w, "could not generate qr code", http.StatusInternalServerError)
		return
	}
	jsonOK(w, result)
}

// handleInfo serves GET /api/info (§6): ip, port, url, connectedDevices.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ip := utils.GetLocalIP()
	_, devices := s.hub.Registry().Count()

	jsonOK(w, map[string]any{
		"ip":               ip,
		"port":             s.cfg.Port,
		"url":              fmt.Sprintf("http://%s:%d", ip, s.cfg.Port),
		"connectedDevices": devices,
	})
}

// handleStats serves GET /api/stats (§6): { totalUsers, totalSessions }.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		log.WithError(err).Error("api: stats lookup failed")
		jsonError(w, "could not read stats", http.StatusInternalServerError)
		return
	}
	jsonOK(w, stats)
}

// handleFeedback serves POST /api/feedback (§6): records { rating, feedback
// }, 400 on out-of-range rating.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.store.RecordFeedback(body.Rating, body.Feedback); err != nil {
		if errors.Is(err, persist.ErrInvalidRating) {
			jsonError(w, "rating must be between 1 and 5", http.StatusBadRequest)
			return
		}
		log.WithError(err).Error("api: feedback could not be recorded")
		jsonError(w, "could not record feedback", http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]string{"status": "ok"})
}

func jsonOK(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
