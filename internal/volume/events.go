package volume

import "strings"

// EventType is a bitmask of externally visible volume-group changes. Handlers
// return it up the call chain; the server layer fans it out to listeners.
type EventType int

const (
	EventNone               EventType = 0
	EventGainIndexChanged   EventType = 1 << 0
	EventMuteChanged        EventType = 1 << 1
	EventBlockedChanged     EventType = 1 << 2
	EventAttenuationChanged EventType = 1 << 3
	EventMinIndexChanged    EventType = 1 << 4
	EventMaxIndexChanged    EventType = 1 << 5
)

// Has reports whether every bit in flag is set.
func (e EventType) Has(flag EventType) bool {
	return e&flag == flag
}

func (e EventType) String() string {
	if e == EventNone {
		return "NONE"
	}
	names := []struct {
		flag EventType
		name string
	}{
		{EventGainIndexChanged, "GAIN_INDEX"},
		{EventMuteChanged, "MUTE"},
		{EventBlockedChanged, "BLOCKED"},
		{EventAttenuationChanged, "ATTENUATION"},
		{EventMinIndexChanged, "MIN_INDEX"},
		{EventMaxIndexChanged, "MAX_INDEX"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if e.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
