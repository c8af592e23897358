package mirror

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kmorales/car-audio-hub-go/internal/api"
	"github.com/kmorales/car-audio-hub-go/internal/apperrors"
)

// RegisterRoutes mounts the mirror endpoints.
func RegisterRoutes(router chi.Router, handler *Handler) {
	router.Route("/v1/mirror/requests", func(r chi.Router) {
		r.Method(http.MethodGet, "/", api.Handler(handleList(handler)))
		r.Method(http.MethodPost, "/", api.Handler(handleEnable(handler)))
		r.Method(http.MethodGet, "/{requestID}", api.Handler(handleGet(handler)))
		r.Method(http.MethodPost, "/{requestID}/zones", api.Handler(handleExtend(handler)))
		r.Method(http.MethodPost, "/{requestID}/release", api.Handler(handleReleaseZones(handler)))
		r.Method(http.MethodDelete, "/{requestID}", api.Handler(handleRelease(handler)))
	})
}

func requestParam(r *http.Request) (int64, error) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		return InvalidRequestID, apperrors.NewValidationError("invalid requestID", map[string]any{
			"requestID": chi.URLParam(r, "requestID"),
		})
	}
	return requestID, nil
}

func mapMirrorError(err error) error {
	switch {
	case errors.Is(err, ErrDevicesExhausted):
		return apperrors.NewAppError(apperrors.ErrorCodeMirrorExhausted, err.Error(), 409, nil)
	case errors.Is(err, ErrRequestNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeMirrorNotFound, err.Error(), 404, nil)
	case errors.Is(err, ErrZoneAlreadyMirrored):
		return apperrors.NewConflictError(err.Error(), nil)
	default:
		return apperrors.NewValidationError(err.Error(), nil)
	}
}

func handleList(handler *Handler) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/mirror/requests", handler.Requests(), false)
	}
}

func handleEnable(handler *Handler) api.Handler {
	type request struct {
		Zones []int `json:"zones"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		requestID, err := handler.EnableMirror(req.Zones)
		if err != nil {
			return mapMirrorError(err)
		}
		info, err := handler.Request(requestID)
		if err != nil {
			return mapMirrorError(err)
		}
		return api.WriteResource(w, http.StatusCreated, info)
	}
}

func handleGet(handler *Handler) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		requestID, err := requestParam(r)
		if err != nil {
			return err
		}
		info, err := handler.Request(requestID)
		if err != nil {
			return mapMirrorError(err)
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleExtend(handler *Handler) api.Handler {
	type request struct {
		Zones []int `json:"zones"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		requestID, err := requestParam(r)
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if err := handler.ExtendMirror(requestID, req.Zones); err != nil {
			return mapMirrorError(err)
		}
		info, err := handler.Request(requestID)
		if err != nil {
			return mapMirrorError(err)
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleReleaseZones(handler *Handler) api.Handler {
	type request struct {
		Zones []int `json:"zones"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		requestID, err := requestParam(r)
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if err := handler.ReleaseZones(requestID, req.Zones); err != nil {
			return mapMirrorError(err)
		}
		// The request may have fully released itself.
		if info, err := handler.Request(requestID); err == nil {
			return api.WriteResource(w, http.StatusOK, info)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": requestID,
			"released":   true,
		})
	}
}

func handleRelease(handler *Handler) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		requestID, err := requestParam(r)
		if err != nil {
			return err
		}
		if err := handler.Release(requestID); err != nil {
			return mapMirrorError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": requestID,
			"released":   true,
		})
	}
}
