// Package httpapi exposes the broker over HTTP: the browser-facing pairing
// endpoints and the device-facing resource, revoke and update-poll
// endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/linking"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
	"github.com/dmitrijs2005/framekeeper/internal/server/pairing"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/syncer"
	"github.com/dmitrijs2005/framekeeper/internal/server/updates"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the handler dependencies.
type Server struct {
	sessions *pairing.Store
	linking  *linking.Service
	registry *registry.Service
	updates  *updates.Service
	engine   *syncer.Engine
	logger   logging.Logger
}

func NewServer(sessions *pairing.Store, link *linking.Service, reg *registry.Service,
	upd *updates.Service, engine *syncer.Engine, logger logging.Logger) *Server {
	return &Server{
		sessions: sessions,
		linking:  link,
		registry: reg,
		updates:  upd,
		engine:   engine,
		logger:   logger.With("module", "httpapi"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/pair", s.handlePair).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodPost)
	r.HandleFunc("/package", s.handlePackage).Methods(http.MethodPost)
	r.HandleFunc("/resource", s.handleResource).Methods(http.MethodGet)
	r.HandleFunc("/revoke", s.handleRevoke).Methods(http.MethodPost)
	r.HandleFunc("/initial", s.handleInitial).Methods(http.MethodGet)
	r.HandleFunc("/update-poll", s.handleUpdatePoll).Methods(http.MethodPost)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// writeError maps the error taxonomy onto status codes. Auth failures and
// expired sessions are indistinguishable on the wire, and no internal detail
// ever reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrAuthFailure), errors.Is(err, common.ErrExpired):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, common.ErrOverflow):
		http.Error(w, "album too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, common.ErrSourceUnavailable):
		http.Error(w, "source unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

type pairRequest struct {
	DeviceID     string `json:"deviceId"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
}

type pairResponse struct {
	SessionID   string `json:"sessionId"`
	PairingCode string `json:"pairingCode"`
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	sessionID, code, err := s.sessions.Create(req.DeviceID, req.ScreenWidth, req.ScreenHeight)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairResponse{SessionID: sessionID, PairingCode: code})
}

type sessionRequest struct {
	SessionID   string `json:"sessionId"`
	DeviceID    string `json:"deviceId"`
	PairingCode string `json:"pairingCode"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	st := s.sessions.PollStatus(req.SessionID, req.DeviceID, req.PairingCode)
	switch st.State {
	case pairing.StatusReady:
		writeJSON(w, http.StatusOK, "Ready")
	case pairing.StatusInProgress:
		writeJSON(w, http.StatusOK, st.IngestedCount)
	default:
		writeJSON(w, http.StatusOK, "Expired")
	}
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pkg, err := s.linking.Deliver(r.Context(), req.SessionID, req.DeviceID, req.PairingCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

type rotationResponse struct {
	NewKey string `json:"newKey"`
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(common.AccessKeyHeaderName)
	resourceID := r.Header.Get(common.ResourceIDHeaderName)
	deviceID := r.Header.Get(common.DeviceIDHeaderName)

	// Rotation is touch-driven: every fetch advances the key state machine
	// first, and a due rotation preempts the bytes.
	newKey, err := s.registry.CheckRotation(r.Context(), resourceID, key, deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if newKey != "" {
		writeJSON(w, http.StatusAccepted, rotationResponse{NewKey: newKey})
		return
	}

	data, err := s.registry.VerifyAndFetch(r.Context(), resourceID, key, deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

type revokeRequest struct {
	DeviceID string            `json:"deviceId"`
	Links    map[string]string `json:"links"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	failed := s.registry.Revoke(r.Context(), req.DeviceID, req.Links)
	writeJSON(w, http.StatusOK, revokeRequest{DeviceID: req.DeviceID, Links: failed})
}

type initialResponse struct {
	UpdateSessionID string `json:"updateSessionId"`
	AccessKey       string `json:"accessKey"`
}

// handleInitial runs the album-change check. The device authenticates with
// one of its album resources; that resource's album handle is what gets
// re-resolved.
func (s *Server) handleInitial(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(common.AccessKeyHeaderName)
	resourceID := r.Header.Get(common.ResourceIDHeaderName)
	deviceID := r.Header.Get(common.DeviceIDHeaderName)

	res, err := s.registry.Verify(r.Context(), resourceID, key, deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	albumHandle := r.Header.Get(common.AlbumHandleHeader)
	if albumHandle == "" {
		albumHandle = res.AlbumHandle
	}
	if albumHandle == "" {
		// Not album-sourced; nothing to reconcile.
		w.WriteHeader(http.StatusOK)
		return
	}

	geometry := models.ScreenGeometry{
		Width:  atoiHeader(r, common.ScreenWidthHeader),
		Height: atoiHeader(r, common.ScreenHeightHeader),
	}

	handle, err := s.engine.Reconcile(r.Context(), deviceID, albumHandle, geometry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if handle == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, initialResponse{
		UpdateSessionID: handle.UpdateSessionID,
		AccessKey:       handle.AccessKey,
	})
}

type updatePollRequest struct {
	UpdateSessionID string `json:"updateSessionId"`
	DeviceID        string `json:"deviceId"`
	AccessKey       string `json:"accessKey"`
}

func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	var req updatePollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	links, ready, err := s.updates.CheckReadyAndConsume(r.Context(), req.UpdateSessionID, req.DeviceID, req.AccessKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ready {
		writeJSON(w, http.StatusOK, "Not ready")
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func atoiHeader(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.Header.Get(name))
	return n
}
