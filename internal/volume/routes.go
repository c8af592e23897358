package volume

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

// RegisterRoutes mounts the zone and volume endpoints.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Route("/v1/zones", func(r chi.Router) {
		r.Method(http.MethodGet, "/", api.Handler(handleListZones(service)))
		r.Method(http.MethodGet, "/{zoneID}", api.Handler(handleGetZone(service)))
		r.Method(http.MethodPut, "/{zoneID}/config", api.Handler(handleSwitchConfig(service)))
		r.Method(http.MethodPut, "/{zoneID}/user", api.Handler(handleAssignUser(service)))
		r.Method(http.MethodPost, "/{zoneID}/suggested-context", api.Handler(handleSuggestedContext(service)))
		r.Method(http.MethodGet, "/{zoneID}/groups/{groupID}", api.Handler(handleGetGroup(service)))
		r.Method(http.MethodPut, "/{zoneID}/groups/{groupID}/volume", api.Handler(handleSetVolume(service)))
		r.Method(http.MethodPut, "/{zoneID}/groups/{groupID}/mute", api.Handler(handleSetMute(service)))
	})
	router.Method(http.MethodPost, "/v1/telemetry/gain-event", api.Handler(handleGainEvent(service)))
	router.Method(http.MethodPost, "/v1/telemetry/device-range", api.Handler(handleDeviceRange(service)))
}

func urlParamInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{
			name: chi.URLParam(r, name),
		})
	}
	return value, nil
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ErrZoneNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeZoneNotFound, err.Error(), 404, nil)
	case errors.Is(err, ErrGroupNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeGroupNotFound, err.Error(), 404, nil)
	case errors.Is(err, ErrDeviceNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeDeviceNotFound, err.Error(), 404, nil)
	case errors.Is(err, ErrIndexOutOfRange):
		return apperrors.NewAppError(apperrors.ErrorCodeIndexOutOfRange, err.Error(), 400, nil)
	default:
		return apperrors.NewInternalError(err.Error())
	}
}

func handleListZones(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/zones", service.ListZones(), false)
	}
}

func handleGetZone(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		summary, err := service.GetZone(zoneID)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteResource(w, http.StatusOK, summary)
	}
}

func handleGetGroup(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		groupID, err := urlParamInt(r, "groupID")
		if err != nil {
			return err
		}
		info, err := service.GetGroup(zoneID, groupID)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleSetVolume(service *Service) api.Handler {
	type request struct {
		Index int `json:"index"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		groupID, err := urlParamInt(r, "groupID")
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		info, err := service.SetGroupVolume(zoneID, groupID, req.Index)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleSetMute(service *Service) api.Handler {
	type request struct {
		Muted bool `json:"muted"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		groupID, err := urlParamInt(r, "groupID")
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		info, applied, err := service.SetGroupMute(zoneID, groupID, req.Muted)
		if err != nil {
			return mapServiceError(err)
		}
		if !applied {
			return apperrors.NewAppError(apperrors.ErrorCodeUnmuteRefused,
				"unmute refused while hardware muted", 409, map[string]any{
					"zone_id":  zoneID,
					"group_id": groupID,
				})
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleSwitchConfig(service *Service) api.Handler {
	type request struct {
		ConfigID int `json:"config_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		summary, err := service.SwitchZoneConfig(zoneID, req.ConfigID)
		if err != nil {
			if errors.Is(err, ErrZoneNotFound) {
				return mapServiceError(err)
			}
			return apperrors.NewAppError(apperrors.ErrorCodeConfigNotFound, err.Error(), 404, nil)
		}
		return api.WriteResource(w, http.StatusOK, summary)
	}
}

func handleAssignUser(service *Service) api.Handler {
	type request struct {
		UserID int `json:"user_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		summary, err := service.AssignUser(zoneID, req.UserID)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteResource(w, http.StatusOK, summary)
	}
}

func handleSuggestedContext(service *Service) api.Handler {
	type request struct {
		CallState       string   `json:"call_state"`
		ActiveUsages    []string `json:"active_usages"`
		ActiveHalUsages []string `json:"active_hal_usages"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		zoneID, err := urlParamInt(r, "zoneID")
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		callState := CallStateIdle
		switch req.CallState {
		case "", "IDLE":
		case "RINGING":
			callState = CallStateRinging
		case "OFFHOOK":
			callState = CallStateOffHook
		default:
			return apperrors.NewValidationError("invalid call_state", map[string]any{
				"call_state": req.CallState,
			})
		}
		active := make([]audio.Context, 0, len(req.ActiveUsages))
		for _, name := range req.ActiveUsages {
			usage, ok := audio.UsageByName(name)
			if !ok {
				return apperrors.NewAppError(apperrors.ErrorCodeInvalidUsage,
					"unknown usage "+name, 400, nil)
			}
			active = append(active, audio.ContextForUsage(usage))
		}
		halUsages := make([]audio.Usage, 0, len(req.ActiveHalUsages))
		for _, name := range req.ActiveHalUsages {
			usage, ok := audio.UsageByName(name)
			if !ok {
				return apperrors.NewAppError(apperrors.ErrorCodeInvalidUsage,
					"unknown usage "+name, 400, nil)
			}
			halUsages = append(halUsages, usage)
		}
		context, err := service.SuggestedContext(zoneID, callState, active, halUsages)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"zone_id": zoneID,
			"context": context.String(),
		})
	}
}

func handleDeviceRange(service *Service) api.Handler {
	type request struct {
		ZoneID  int            `json:"zone_id"`
		Address string         `json:"address"`
		Gain    audio.GainInfo `json:"gain"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if req.Address == "" {
			return apperrors.NewValidationError("address is required", nil)
		}
		if err := req.Gain.Validate(); err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		info, err := service.HandleDeviceRangeChange(req.ZoneID, req.Address, req.Gain)
		if err != nil {
			return mapServiceError(err)
		}
		if info == nil {
			return api.WriteJSON(w, http.StatusOK, map[string]any{
				"zone_id": req.ZoneID,
				"address": req.Address,
				"changed": false,
			})
		}
		return api.WriteResource(w, http.StatusOK, info)
	}
}

func handleGainEvent(service *Service) api.Handler {
	type request struct {
		ZoneID  int          `json:"zone_id"`
		Reasons []GainReason `json:"reasons"`
		Gains   []GainConfig `json:"gains"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if len(req.Gains) == 0 {
			return apperrors.NewAppError(apperrors.ErrorCodeInvalidGainEvent,
				"gain event carries no device configs", 400, nil)
		}
		infos, err := service.HandleGainEvent(req.ZoneID, req.Reasons, req.Gains)
		if err != nil {
			return mapServiceError(err)
		}
		return api.WriteList(w, "/v1/telemetry/gain-event", infos, false)
	}
}
