package mirror

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// InvalidRequestID is the sentinel for "no mirror request".
const InvalidRequestID int64 = -1

var (
	// ErrDevicesExhausted means every mirror output device is in use.
	ErrDevicesExhausted = errors.New("no mirror device available")
	// ErrRequestNotFound means the request id is unknown or already released.
	ErrRequestNotFound = errors.New("mirror request not found")
	// ErrZoneAlreadyMirrored means a zone is part of another mirror request.
	ErrZoneAlreadyMirrored = errors.New("zone already mirrored")
)

// State is a mirror request lifecycle notification.
type State string

const (
	StateEnabled  State = "ENABLED"
	StateUpdated  State = "UPDATED"
	StateReleased State = "RELEASED"
)

// Event describes one mirror state change.
type Event struct {
	RequestID int64  `json:"request_id"`
	State     State  `json:"state"`
	Device    string `json:"device"`
	Zones     []int  `json:"zones"`
}

// EventSink receives mirror events. Delivery failures are logged per event
// and never fail the triggering operation.
type EventSink interface {
	PublishMirrorEvent(event Event) error
}

// Handler allocates mirror output devices to groups of zones. Device
// assignments are exclusive; request ids come from a monotonic counter and
// are never reused. Notifications go through a dedicated worker goroutine so
// slow sinks cannot stall the allocator.
type Handler struct {
	mu sync.Mutex

	logger *logrus.Logger
	sink   EventSink

	devices        []string
	deviceByID     map[int64]string
	zonesByID      map[int64]map[int]bool
	requestForZone map[int]int64

	nextID atomic.Int64

	events chan Event
	done   chan struct{}
}

// NewHandler builds a mirror handler over a fixed device pool and starts the
// notification worker. Call Stop to drain and stop it.
func NewHandler(devices []string, sink EventSink, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		logger:         logger,
		sink:           sink,
		devices:        append([]string(nil), devices...),
		deviceByID:     make(map[int64]string),
		zonesByID:      make(map[int64]map[int]bool),
		requestForZone: make(map[int]int64),
		events:         make(chan Event, 32),
		done:           make(chan struct{}),
	}
	go h.notifyLoop()
	return h
}

// Stop shuts the notification worker down after draining queued events.
func (h *Handler) Stop() {
	close(h.events)
	<-h.done
}

func (h *Handler) notifyLoop() {
	defer close(h.done)
	for event := range h.events {
		if h.sink == nil {
			continue
		}
		if err := h.sink.PublishMirrorEvent(event); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"request_id": event.RequestID,
				"state":      event.State,
			}).Warn("mirror event delivery failed")
		}
	}
}

func (h *Handler) enqueue(event Event) {
	select {
	case h.events <- event:
	default:
		h.logger.WithField("request_id", event.RequestID).
			Warn("mirror event queue full, dropping notification")
	}
}

// EnableMirror starts mirroring across a set of zones. At least two zones
// are required, none of them may already mirror, and a free device must
// exist. Returns the new request id.
func (h *Handler) EnableMirror(zones []int) (int64, error) {
	if len(zones) < 2 {
		return InvalidRequestID, fmt.Errorf("mirroring needs at least two zones, got %d", len(zones))
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, zone := range zones {
		if owner, taken := h.requestForZone[zone]; taken {
			return InvalidRequestID, fmt.Errorf("%w: zone %d held by request %d",
				ErrZoneAlreadyMirrored, zone, owner)
		}
	}
	device, ok := h.freeDeviceLocked()
	if !ok {
		return InvalidRequestID, ErrDevicesExhausted
	}

	requestID := h.nextID.Add(1)
	h.deviceByID[requestID] = device
	zoneSet := make(map[int]bool, len(zones))
	for _, zone := range zones {
		zoneSet[zone] = true
		h.requestForZone[zone] = requestID
	}
	h.zonesByID[requestID] = zoneSet

	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"device":     device,
		"zones":      zones,
	}).Info("mirror enabled")
	h.enqueue(Event{RequestID: requestID, State: StateEnabled, Device: device, Zones: sortedZones(zoneSet)})
	return requestID, nil
}

// ExtendMirror adds zones to an existing request.
func (h *Handler) ExtendMirror(requestID int64, zones []int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	zoneSet, ok := h.zonesByID[requestID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
	}
	for _, zone := range zones {
		if owner, taken := h.requestForZone[zone]; taken && owner != requestID {
			return fmt.Errorf("%w: zone %d held by request %d",
				ErrZoneAlreadyMirrored, zone, owner)
		}
	}
	for _, zone := range zones {
		zoneSet[zone] = true
		h.requestForZone[zone] = requestID
	}
	h.enqueue(Event{
		RequestID: requestID,
		State:     StateUpdated,
		Device:    h.deviceByID[requestID],
		Zones:     sortedZones(zoneSet),
	})
	return nil
}

// ReleaseZones drops zones from a request. Dropping the last zones (or all
// of them) releases the request and frees its device.
func (h *Handler) ReleaseZones(requestID int64, zones []int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	zoneSet, ok := h.zonesByID[requestID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
	}
	for _, zone := range zones {
		if zoneSet[zone] {
			delete(zoneSet, zone)
			delete(h.requestForZone, zone)
		}
	}
	// A mirror between fewer than two zones is no mirror at all.
	if len(zoneSet) < 2 {
		h.releaseLocked(requestID)
		return nil
	}
	h.enqueue(Event{
		RequestID: requestID,
		State:     StateUpdated,
		Device:    h.deviceByID[requestID],
		Zones:     sortedZones(zoneSet),
	})
	return nil
}

// Release tears a request down entirely.
func (h *Handler) Release(requestID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.zonesByID[requestID]; !ok {
		return fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
	}
	h.releaseLocked(requestID)
	return nil
}

func (h *Handler) releaseLocked(requestID int64) {
	device := h.deviceByID[requestID]
	remaining := sortedZones(h.zonesByID[requestID])
	for zone, owner := range h.requestForZone {
		if owner == requestID {
			delete(h.requestForZone, zone)
		}
	}
	delete(h.zonesByID, requestID)
	delete(h.deviceByID, requestID)

	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"device":     device,
	}).Info("mirror released")
	h.enqueue(Event{RequestID: requestID, State: StateReleased, Device: device, Zones: remaining})
}

func (h *Handler) freeDeviceLocked() (string, bool) {
	inUse := make(map[string]bool, len(h.deviceByID))
	for _, device := range h.deviceByID {
		inUse[device] = true
	}
	for _, device := range h.devices {
		if !inUse[device] {
			return device, true
		}
	}
	return "", false
}

// RequestInfo is the external view of one mirror request.
type RequestInfo struct {
	RequestID int64  `json:"request_id"`
	Device    string `json:"device"`
	Zones     []int  `json:"zones"`
}

// Request returns the state of one mirror request.
func (h *Handler) Request(requestID int64) (RequestInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	zoneSet, ok := h.zonesByID[requestID]
	if !ok {
		return RequestInfo{}, fmt.Errorf("%w: %d", ErrRequestNotFound, requestID)
	}
	return RequestInfo{
		RequestID: requestID,
		Device:    h.deviceByID[requestID],
		Zones:     sortedZones(zoneSet),
	}, nil
}

// Requests lists all active mirror requests.
func (h *Handler) Requests() []RequestInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	infos := make([]RequestInfo, 0, len(h.zonesByID))
	for requestID, zoneSet := range h.zonesByID {
		infos = append(infos, RequestInfo{
			RequestID: requestID,
			Device:    h.deviceByID[requestID],
			Zones:     sortedZones(zoneSet),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RequestID < infos[j].RequestID })
	return infos
}

// RequestForZone returns the request a zone belongs to, or InvalidRequestID.
func (h *Handler) RequestForZone(zoneID int) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if requestID, ok := h.requestForZone[zoneID]; ok {
		return requestID
	}
	return InvalidRequestID
}

// IsMirrorEnabled reports whether a zone is mirroring.
func (h *Handler) IsMirrorEnabled(zoneID int) bool {
	return h.RequestForZone(zoneID) != InvalidRequestID
}

func sortedZones(zoneSet map[int]bool) []int {
	zones := make([]int, 0, len(zoneSet))
	for zone := range zoneSet {
		zones = append(zones, zone)
	}
	sort.Ints(zones)
	return zones
}
