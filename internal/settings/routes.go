package settings

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kmorales/car-audio-hub-go/internal/api"
	"github.com/kmorales/car-audio-hub-go/internal/apperrors"
)

// NavHook is called after a user's navigation-during-call preference is
// stored, so the focus layer can apply it to the zones the user occupies.
type NavHook func(userID int, reject bool)

// RegisterRoutes mounts the user preference endpoints.
func RegisterRoutes(router chi.Router, service *Service, navHook NavHook) {
	router.Route("/v1/users/{userID}/preferences", func(r chi.Router) {
		r.Method(http.MethodGet, "/", api.Handler(handleGetPreferences(service)))
		r.Method(http.MethodPut, "/", api.Handler(handlePutPreferences(service, navHook)))
	})
}

type preferences struct {
	UserID              int  `json:"user_id"`
	PersistMute         bool `json:"persist_mute"`
	RejectNavDuringCall bool `json:"reject_nav_during_call"`
}

func userParam(r *http.Request) (int, error) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		return 0, apperrors.NewValidationError("invalid userID", map[string]any{
			"userID": chi.URLParam(r, "userID"),
		})
	}
	return userID, nil
}

func handleGetPreferences(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		userID, err := userParam(r)
		if err != nil {
			return err
		}
		reject, err := service.Repository().RejectNavigationDuringCall(userID)
		if err != nil {
			return apperrors.NewInternalError(err.Error())
		}
		return api.WriteResource(w, http.StatusOK, preferences{
			UserID:              userID,
			PersistMute:         service.Repository().IsPersistMuteEnabled(userID),
			RejectNavDuringCall: reject,
		})
	}
}

func handlePutPreferences(service *Service, navHook NavHook) api.Handler {
	type request struct {
		PersistMute         *bool `json:"persist_mute"`
		RejectNavDuringCall *bool `json:"reject_nav_during_call"`
	}
	return func(w http.ResponseWriter, r *http.Request) error {
		userID, err := userParam(r)
		if err != nil {
			return err
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if req.PersistMute != nil {
			if err := service.Repository().SetPersistMute(userID, *req.PersistMute); err != nil {
				return apperrors.NewInternalError(err.Error())
			}
		}
		if req.RejectNavDuringCall != nil {
			if err := service.Repository().SetRejectNavigationDuringCall(userID, *req.RejectNavDuringCall); err != nil {
				return apperrors.NewInternalError(err.Error())
			}
			if navHook != nil {
				navHook(userID, *req.RejectNavDuringCall)
			}
		}
		reject, err := service.Repository().RejectNavigationDuringCall(userID)
		if err != nil {
			return apperrors.NewInternalError(err.Error())
		}
		return api.WriteResource(w, http.StatusOK, preferences{
			UserID:              userID,
			PersistMute:         service.Repository().IsPersistMuteEnabled(userID),
			RejectNavDuringCall: reject,
		})
	}
}
