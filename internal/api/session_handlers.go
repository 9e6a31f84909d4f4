package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/service"
)

type sdpRequest struct {
	Sdp webrtc.SessionDescription `json:"sdp"`
}

type sdpResponse struct {
	Sdp *webrtc.SessionDescription `json:"sdp"`
}

type joinResponse struct {
	SessionID core.SessionID `json:"session_id"`
	State     string         `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: code}); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot write error body")
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoMediaDevice):
		writeError(w, http.StatusUnprocessableEntity, "NO_MEDIA_DEVICE")
	case errors.Is(err, eventbus.ErrChannelTimeout):
		writeError(w, http.StatusGatewayTimeout, "CHANNEL_TIMEOUT")
	case errors.Is(err, service.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL")
	}
}

// HostSessionHandler takes a lecture live. The request body carries the
// presenter's publish offer, the response its answer. Signaling with
// viewers then runs over the session channel.
func (app *App) HostSessionHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "NO_IDENTITY")
		return
	}
	sessionID := core.SessionID(chi.URLParam(r, "sessionID"))

	req := sdpRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}

	ingest, err := app.Service.CreateIngest(sessionID)
	if err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot create ingest")
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}

	answer, err := ingest.Accept(req.Sdp)
	if err != nil {
		ingest.Close()
		writeError(w, http.StatusUnprocessableEntity, "BAD_SDP")
		return
	}

	err = app.Service.Host(r.Context(), service.HostRequest{
		SessionID:   sessionID,
		CallerID:    identity.ID,
		DisplayName: identity.DisplayName,
		Source:      ingest,
	})
	if err != nil {
		ingest.Close()
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(sdpResponse{Sdp: answer}); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot write answer")
	}
}

func (app *App) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "NO_IDENTITY")
		return
	}
	sessionID := core.SessionID(chi.URLParam(r, "sessionID"))

	if err := app.Service.StopHosting(r.Context(), sessionID, identity.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JoinSessionHandler announces the caller as a viewer. The receive leg
// negotiates over the channel, reachable through the websocket bridge.
func (app *App) JoinSessionHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "NO_IDENTITY")
		return
	}
	sessionID := core.SessionID(chi.URLParam(r, "sessionID"))

	agent, err := app.Service.Join(r.Context(), service.JoinRequest{
		SessionID:   sessionID,
		CallerID:    identity.ID,
		DisplayName: identity.DisplayName,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	app.rememberViewer(sessionID, identity.ID, agent)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	response := joinResponse{SessionID: sessionID, State: string(agent.State())}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot write join response")
	}
}

func (app *App) LeaveSessionHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "NO_IDENTITY")
		return
	}
	sessionID := core.SessionID(chi.URLParam(r, "sessionID"))

	agent, ok := app.forgetViewer(sessionID, identity.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_JOINED")
		return
	}

	agent.Leave(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// LiveSessionsHandler lists what is currently broadcast.
func (app *App) LiveSessionsHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	sessions, err := app.lister.GetLive(page, perPage)
	if err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot list live sessions")
		writeError(w, http.StatusInternalServerError, "INTERNAL")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("cannot write sessions")
	}
}
