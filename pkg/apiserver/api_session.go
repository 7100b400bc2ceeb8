package apiserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"vpnshield/pkg/catalog"
	"vpnshield/pkg/session"
	"vpnshield/pkg/telemetry"
)

type ServersResponse struct {
	Servers []catalog.Endpoint `json:"servers"`
}

type SessionResponse struct {
	Result   string            `json:"result"`
	Session  session.Snapshot  `json:"session"`
	Summary  telemetry.Summary `json:"summary"`
	Location string            `json:"location,omitempty"`
}

type SelectRequest struct {
	EndpointID string `json:"endpoint_id"`
}

type SelectResponse struct {
	Result   string           `json:"result"`
	Endpoint catalog.Endpoint `json:"endpoint"`
}

type ToggleRequest struct {
	EndpointID string `json:"endpoint_id,omitempty"`
}

func (s *Service) handleServers(w http.ResponseWriter, r *http.Request) {
	if err := s.authClient(r); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, &ServersResponse{Servers: s.catalog.List()})
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	if err := s.authClient(r); err != nil {
		writeError(w, err)
		return
	}

	writeResponse(w, http.StatusOK, newSessionResponse(s.ctrl.Snapshot()))
}

func (s *Service) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.authClient(r); err != nil {
		writeError(w, err)
		return
	}

	var request SelectRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		slog.Warn("failed to decode select request", slog.Any("err", err))
		ErrBadRequest.WithErrorMsg("Invalid json").Handle(w)
		return
	}

	ep, ok := s.catalog.Get(request.EndpointID)
	if !ok {
		slog.Warn("endpoint not found on select", slog.String("endpoint_id", request.EndpointID))
		ErrEndpointNotFound.Handle(w)
		return
	}

	if !s.ctrl.Select(ep) {
		ErrInvalidTransition.WithErrorMsg("Endpoint can only be changed while disconnected").Handle(w)
		return
	}

	slog.Info("endpoint selected", slog.String("endpoint_id", ep.ID), slog.String("client_ip", getClientIP(r)))
	writeResponse(w, http.StatusOK, &SelectResponse{Result: "OK", Endpoint: ep})
}

func (s *Service) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.authClient(r); err != nil {
		writeError(w, err)
		return
	}

	var request ToggleRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("failed to decode toggle request", slog.Any("err", err))
		ErrBadRequest.WithErrorMsg("Invalid json").Handle(w)
		return
	}

	var ep *catalog.Endpoint
	if request.EndpointID != "" {
		found, ok := s.catalog.Get(request.EndpointID)
		if !ok {
			slog.Warn("endpoint not found on toggle", slog.String("endpoint_id", request.EndpointID))
			ErrEndpointNotFound.Handle(w)
			return
		}
		ep = &found
	}

	err = s.ctrl.ToggleConnection(ep)
	switch {
	case errors.Is(err, session.ErrNoEndpoint):
		ErrNoEndpoint.Handle(w)
		return
	case errors.Is(err, session.ErrClosed):
		ErrUnavailable.Handle(w)
		return
	case err != nil:
		slog.Error("failed to toggle connection", slog.Any("err", err))
		ErrInternalServerError.WithError(err).Handle(w)
		return
	}

	snap := s.ctrl.Snapshot()
	slog.Info("connection toggled", slog.String("state", snap.State.String()), slog.String("client_ip", getClientIP(r)))
	writeResponse(w, http.StatusOK, newSessionResponse(snap))
}

func newSessionResponse(snap session.Snapshot) *SessionResponse {
	resp := &SessionResponse{
		Result:  "OK",
		Session: snap,
		Summary: telemetry.Summarize(snap.RecentSamples),
	}
	if snap.Endpoint != nil {
		resp.Location = snap.Endpoint.Location()
	}
	return resp
}
