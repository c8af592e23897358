package server

import (
	"context"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/api"
	"github.com/kmorales/car-audio-hub-go/internal/auth"
	"github.com/kmorales/car-audio-hub-go/internal/config"
	"github.com/kmorales/car-audio-hub-go/internal/db"
	"github.com/kmorales/car-audio-hub-go/internal/events"
	"github.com/kmorales/car-audio-hub-go/internal/focus"
	"github.com/kmorales/car-audio-hub-go/internal/mirror"
	"github.com/kmorales/car-audio-hub-go/internal/settings"
	"github.com/kmorales/car-audio-hub-go/internal/topology"
	"github.com/kmorales/car-audio-hub-go/internal/volume"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.status,
				"duration": time.Since(start).Round(time.Millisecond).String(),
			}).Info("request")
		})
	}
}

// Options controls server wiring.
type Options struct {
	// StartPruneJob can be disabled for tests.
	DisablePruneJob bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options, logger *logrus.Logger) (http.Handler, func(context.Context) error, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("path", cfg.SQLiteDBPath).Info("using database")
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	settingsRepo := settings.NewRepository(dbPair)
	settingsService := settings.NewService(settingsRepo, cfg.SettingsRetentionDays, logger)

	topo, err := topology.Load(cfg.TopologyPath, settingsRepo, nil, logger)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	hub := events.NewHub(logger)

	carVolume, err := volume.NewCarVolume(topo.VolumePriorityVersion)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}
	volumeService := volume.NewService(topo.Store, carVolume, hub, logger)

	focusZones := focus.NewZones(topo.Store, hub, focus.FadePolicy{
		ByUsage: topo.FadeByUsage,
		Default: topo.DefaultFade,
	}, logger)

	// Occupant changes suspend media playback across the handover and pull
	// the new user's focus policy into their zone.
	volumeService.SetUserAssignedHook(func(zoneID, userID int) {
		if err := focusZones.SuspendMediaForUserSwitch(zoneID); err != nil {
			logger.WithError(err).WithField("zone", zoneID).
				Warn("failed to suspend media for occupant change")
		}
		reject, err := settingsRepo.RejectNavigationDuringCall(userID)
		if err != nil {
			logger.WithError(err).WithField("user", userID).
				Warn("failed to load navigation preference")
			return
		}
		if err := focusZones.SetRejectNavigationDuringCall(zoneID, reject); err != nil {
			logger.WithError(err).WithField("zone", zoneID).
				Warn("failed to apply navigation preference")
		}
	})

	mirrorHandler := mirror.NewHandler(topo.MirrorDevices, hub, logger)

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware(logger))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router, topo.Store, hub)

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg, logger)

	volume.RegisterRoutes(router, volumeService)
	focus.RegisterRoutes(router, focusZones)
	mirror.RegisterRoutes(router, mirrorHandler)
	events.RegisterRoutes(router, hub)

	// Preference writes push the navigation policy into the zones the user
	// currently occupies.
	settings.RegisterRoutes(router, settingsService, func(userID int, reject bool) {
		for _, zone := range topo.Store.Zones() {
			if zone.UserID() != userID {
				continue
			}
			if err := focusZones.SetRejectNavigationDuringCall(zone.ID(), reject); err != nil {
				logger.WithError(err).WithField("zone", zone.ID()).
					Warn("failed to apply navigation preference")
			}
		}
	})

	if !options.DisablePruneJob {
		if err := settingsService.StartPruneJob(); err != nil {
			shutdownCancel()
			dbPair.Close()
			return nil, nil, err
		}
	}

	shutdown := func(ctx context.Context) error {
		shutdownCancel()
		if !options.DisablePruneJob {
			settingsService.StopPruneJob()
		}
		mirrorHandler.Stop()
		hub.Close()
		if ctx == nil {
			ctx = context.Background()
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router, store *volume.Store, hub *events.Hub) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":      "healthy",
			"service":     "car-audio-hub",
			"zones":       len(store.ZoneIDs()),
			"subscribers": hub.SubscriberCount(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
