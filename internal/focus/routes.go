package focus

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kmorales/car-audio-hub-go/internal/api"
	"github.com/kmorales/car-audio-hub-go/internal/apperrors"
	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// RegisterRoutes mounts the focus endpoints.
func RegisterRoutes(router chi.Router, zones *Zones) {
	router.Route("/v1/focus", func(r chi.Router) {
		r.Method(http.MethodPost, "/request", api.Handler(handleRequest(zones)))
		r.Method(http.MethodPost, "/abandon", api.Handler(handleAbandon(zones)))
		r.Method(http.MethodPut, "/restrict", api.Handler(handleRestrict(zones)))
		r.Method(http.MethodGet, "/zones/{zoneID}", api.Handler(handleZoneState(zones)))
		r.Method(http.MethodPut, "/zones/{zoneID}/nav-during-call", api.Handler(handleNavDuringCall(zones)))
	})
}

func zoneParam(r *http.Request) (int, error) {
	zoneID, err := strconv.Atoi(chi.URLParam(r, "zoneID"))
	if err != nil {
		return 0, apperrors.NewValidationError("invalid zoneID", map[string]any{
			"zoneID": chi.URLParam(r, "zoneID"),
		})
	}
	return zoneID, nil
}

func mapZoneError(err error) error {
	if errors.Is(err, ErrZoneNotFound) {
		return apperrors.NewAppError(apperrors.ErrorCodeZoneNotFound, err.Error(), 404, nil)
	}
	return apperrors.NewInternalError(err.Error())
}

func handleRequest(zones *Zones) api.Handler {
	type request struct {
		ClientID       string `json:"client_id"`
		ZoneID         int    `json:"zone_id"`
		UserID         int    `json:"user_id"`
		UID            int    `json:"uid"`
		Usage          string `json:"usage"`
		GainType       string `json:"gain_type"`
		AcceptsDelayed bool   `json:"accepts_delayed"`
		PausesOnDuck   bool   `json:"pauses_on_duck"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if req.ClientID == "" {
			return apperrors.NewValidationError("client_id is required", nil)
		}
		usage, ok := audio.UsageByName(req.Usage)
		if !ok {
			return apperrors.NewAppError(apperrors.ErrorCodeInvalidUsage,
				"unknown usage "+req.Usage, 400, nil)
		}
		gainType, ok := GainTypeByName(req.GainType)
		if !ok {
			return apperrors.NewValidationError("unknown gain_type "+req.GainType, nil)
		}
		result, err := zones.RequestFocus(Request{
			ClientID:       req.ClientID,
			ZoneID:         req.ZoneID,
			UserID:         req.UserID,
			UID:            req.UID,
			Attributes:     audio.Attributes{Usage: usage},
			GainType:       gainType,
			AcceptsDelayed: req.AcceptsDelayed,
			PausesOnDuck:   req.PausesOnDuck,
		})
		if err != nil {
			return mapZoneError(err)
		}
		status := http.StatusOK
		if result == RequestFailed {
			status = http.StatusConflict
		}
		return api.WriteJSON(w, status, map[string]any{
			"client_id": req.ClientID,
			"zone_id":   req.ZoneID,
			"result":    result.String(),
		})
	}
}

func handleAbandon(zones *Zones) api.Handler {
	type request struct {
		ClientID string `json:"client_id"`
		ZoneID   int    `json:"zone_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		released, err := zones.AbandonFocus(req.ZoneID, req.ClientID)
		if err != nil {
			return mapZoneError(err)
		}
		if !released {
			return apperrors.NewAppError(apperrors.ErrorCodeFocusNotHeld,
				"client holds no focus in zone", 404, map[string]any{
					"client_id": req.ClientID,
					"zone_id":   req.ZoneID,
				})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"client_id": req.ClientID,
			"zone_id":   req.ZoneID,
			"released":  true,
		})
	}
}

func handleRestrict(zones *Zones) api.Handler {
	type request struct {
		Restricted bool `json:"restricted"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		zones.SetRestrictFocus(req.Restricted)
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"restricted": req.Restricted,
		})
	}
}

func handleZoneState(zones *Zones) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := zoneParam(r)
		if err != nil {
			return err
		}
		state, err := zones.State(zoneID)
		if err != nil {
			return mapZoneError(err)
		}
		return api.WriteResource(w, http.StatusOK, state)
	}
}

func handleNavDuringCall(zones *Zones) api.Handler {
	type request struct {
		Reject bool `json:"reject"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := zoneParam(r)
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if err := zones.SetRejectNavigationDuringCall(zoneID, req.Reject); err != nil {
			return mapZoneError(err)
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"zone_id": zoneID,
			"reject":  req.Reject,
		})
	}
}
