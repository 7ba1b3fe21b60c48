package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/hub"
	"github.com/anicoll/ics2000-integration/internal/pkg/model"
	"github.com/anicoll/ics2000-integration/internal/pkg/transport"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBody = 1 << 16

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type valueRequest struct {
	Value *int `json:"value"`
}

type resetRequest struct {
	DeviceID *int64 `json:"device_id"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	diag := s.hub.Diagnostics(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": diag.Connected,
	})
}

func (s *server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Devices(r.Context()))
}

func (s *server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.hub.Device(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.hub.TurnOn)
}

func (s *server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.hub.TurnOff)
}

func (s *server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, s.hub.Identify)
}

func (s *server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	s.valueCommand(w, r, s.hub.SetBrightness)
}

func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	s.valueCommand(w, r, s.hub.SetCoverPosition)
}

func (s *server) command(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (model.Device, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := fn(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) valueCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int) (model.Device, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := unmarshalPayload[valueRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "value is required")
		return
	}
	d, err := fn(r.Context(), id, *req.Value)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Scenes())
}

func (s *server) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.handleError(w, s.hub.ExecuteScene(r.Context(), id))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Refresh(r.Context()); err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.hub.Devices(r.Context()))
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	req := &resetRequest{}
	if r.ContentLength != 0 {
		var err error
		if req, err = unmarshalPayload[resetRequest](r); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	var err error
	if req.DeviceID != nil {
		s.logger.Info("resetting device state", zap.Int64("device_id", *req.DeviceID))
		err = s.hub.ResetState(r.Context(), *req.DeviceID)
	} else {
		s.logger.Info("resetting all device states")
		err = s.hub.ResetAllStates(r.Context())
	}
	if err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Diagnostics(r.Context()))
}

// handleEvents lists command history. Query: device_id, from, to (RFC 3339).
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var deviceID *int64
	if v := q.Get("device_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "device_id must be an integer")
			return
		}
		deviceID = &id
	}
	from, err := queryTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from: "+err.Error())
		return
	}
	to, err := queryTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "to: "+err.Error())
		return
	}
	events, err := s.history.GetEvents(r.Context(), deviceID, from, to)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleError(w http.ResponseWriter, err error) {
	var tErr *transport.TransportError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, hub.ErrDeviceNotFound), errors.Is(err, hub.ErrSceneNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, hub.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, hub.ErrSceneUnsupported):
		writeError(w, http.StatusNotImplemented, "unsupported", err.Error())
	case errors.As(err, &tErr):
		writeError(w, http.StatusBadGateway, "not_confirmed", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Status: status, Code: code, Message: message})
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return &out, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "id must be an integer")
		return 0, false
	}
	return id, true
}

func queryTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
