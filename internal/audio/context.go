package audio

import "fmt"

// Context is a logical category of sound (media, navigation, call, ...).
// Volume is controlled and focus is arbitrated per context, never per stream.
type Context int

const (
	ContextInvalid Context = iota
	ContextMusic
	ContextNavigation
	ContextVoiceCommand
	ContextCallRing
	ContextCall
	ContextAlarm
	ContextNotification
	ContextSystemSound
	ContextEmergency
	ContextSafety
	ContextVehicleStatus
	ContextAnnouncement

	contextCount
)

func (c Context) String() string {
	switch c {
	case ContextMusic:
		return "MUSIC"
	case ContextNavigation:
		return "NAVIGATION"
	case ContextVoiceCommand:
		return "VOICE_COMMAND"
	case ContextCallRing:
		return "CALL_RING"
	case ContextCall:
		return "CALL"
	case ContextAlarm:
		return "ALARM"
	case ContextNotification:
		return "NOTIFICATION"
	case ContextSystemSound:
		return "SYSTEM_SOUND"
	case ContextEmergency:
		return "EMERGENCY"
	case ContextSafety:
		return "SAFETY"
	case ContextVehicleStatus:
		return "VEHICLE_STATUS"
	case ContextAnnouncement:
		return "ANNOUNCEMENT"
	case ContextInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// ContextByName resolves the wire name of a context (e.g. "MUSIC").
func ContextByName(name string) (Context, bool) {
	for c := ContextInvalid + 1; c < contextCount; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return ContextInvalid, false
}

// IsValid reports whether c names a real context (not INVALID, not out of range).
func (c Context) IsValid() bool {
	return c > ContextInvalid && c < contextCount
}

// IsCritical reports whether c keeps focus even under a focus restriction
// (driver distraction lockout and the like).
func (c Context) IsCritical() bool {
	return c == ContextEmergency || c == ContextSafety
}

// IsRingerOrCall reports whether c belongs to the telephony stack, which is
// allowed to swap between ring and call on a single client id.
func (c Context) IsRingerOrCall() bool {
	return c == ContextCallRing || c == ContextCall
}

// Usage is a platform audio-attribute usage tag. Usages are what clients
// request with; contexts are what the policy core reasons about.
type Usage int

const (
	UsageUnknown Usage = iota
	UsageMedia
	UsageGame
	UsageVoiceCommunication
	UsageVoiceCommunicationSignalling
	UsageCallAssistant
	UsageAlarm
	UsageNotification
	UsageNotificationEvent
	UsageNotificationRingtone
	UsageAssistanceAccessibility
	UsageAssistanceNavigationGuidance
	UsageAssistanceSonification
	UsageAssistant
	UsageEmergency
	UsageSafety
	UsageVehicleStatus
	UsageAnnouncement
)

func (u Usage) String() string {
	if name, ok := usageNames[u]; ok {
		return name
	}
	return fmt.Sprintf("Usage(%d)", int(u))
}

var usageNames = map[Usage]string{
	UsageUnknown:                      "UNKNOWN",
	UsageMedia:                        "MEDIA",
	UsageGame:                         "GAME",
	UsageVoiceCommunication:           "VOICE_COMMUNICATION",
	UsageVoiceCommunicationSignalling: "VOICE_COMMUNICATION_SIGNALLING",
	UsageCallAssistant:                "CALL_ASSISTANT",
	UsageAlarm:                        "ALARM",
	UsageNotification:                 "NOTIFICATION",
	UsageNotificationEvent:            "NOTIFICATION_EVENT",
	UsageNotificationRingtone:         "NOTIFICATION_RINGTONE",
	UsageAssistanceAccessibility:      "ASSISTANCE_ACCESSIBILITY",
	UsageAssistanceNavigationGuidance: "ASSISTANCE_NAVIGATION_GUIDANCE",
	UsageAssistanceSonification:       "ASSISTANCE_SONIFICATION",
	UsageAssistant:                    "ASSISTANT",
	UsageEmergency:                    "EMERGENCY",
	UsageSafety:                       "SAFETY",
	UsageVehicleStatus:                "VEHICLE_STATUS",
	UsageAnnouncement:                 "ANNOUNCEMENT",
}

// usageToContext is the canonical usage binding. A usage appears under exactly
// one context; contextsByUsage below is derived from it once at init and a
// duplicate binding panics there, since it can only be a programming error.
var usageToContext = map[Context][]Usage{
	ContextMusic:         {UsageUnknown, UsageMedia, UsageGame},
	ContextNavigation:    {UsageAssistanceNavigationGuidance},
	ContextVoiceCommand:  {UsageAssistant, UsageAssistanceAccessibility},
	ContextCallRing:      {UsageNotificationRingtone},
	ContextCall:          {UsageVoiceCommunication, UsageVoiceCommunicationSignalling, UsageCallAssistant},
	ContextAlarm:         {UsageAlarm},
	ContextNotification:  {UsageNotification, UsageNotificationEvent},
	ContextSystemSound:   {UsageAssistanceSonification},
	ContextEmergency:     {UsageEmergency},
	ContextSafety:        {UsageSafety},
	ContextVehicleStatus: {UsageVehicleStatus},
	ContextAnnouncement:  {UsageAnnouncement},
}

var contextsByUsage = func() map[Usage]Context {
	byUsage := make(map[Usage]Context)
	for context, usages := range usageToContext {
		for _, usage := range usages {
			if existing, ok := byUsage[usage]; ok {
				panic(fmt.Sprintf("usage %s bound to both %s and %s", usage, existing, context))
			}
			byUsage[usage] = context
		}
	}
	return byUsage
}()

var usagesByName = func() map[string]Usage {
	byName := make(map[string]Usage, len(usageNames))
	for usage, name := range usageNames {
		byName[name] = usage
	}
	return byName
}()

// UsageByName resolves the wire name of a usage (e.g. "MEDIA").
func UsageByName(name string) (Usage, bool) {
	usage, ok := usagesByName[name]
	return usage, ok
}

// ContextForUsage returns the context a usage belongs to, or ContextInvalid
// for an unrecognized usage.
func ContextForUsage(usage Usage) Context {
	if context, ok := contextsByUsage[usage]; ok {
		return context
	}
	return ContextInvalid
}

// UsagesForContext returns the usages bound to a context.
func UsagesForContext(context Context) []Usage {
	usages := usageToContext[context]
	out := make([]Usage, len(usages))
	copy(out, usages)
	return out
}

// AllContexts returns every valid context in declaration order.
func AllContexts() []Context {
	contexts := make([]Context, 0, int(contextCount)-1)
	for c := ContextInvalid + 1; c < contextCount; c++ {
		contexts = append(contexts, c)
	}
	return contexts
}

// Attributes carries the client-visible part of an audio request.
type Attributes struct {
	Usage Usage `json:"usage"`
}

// Context resolves the attributes to their policy context.
func (a Attributes) Context() Context {
	return ContextForUsage(a.Usage)
}

// IsCritical reports whether the attributes survive a focus restriction.
func (a Attributes) IsCritical() bool {
	return a.Context().IsCritical()
}

// IsNotification reports whether the attributes are notification-class, which
// a transient-exclusive focus holder is allowed to suppress outright.
func (a Attributes) IsNotification() bool {
	return a.Context() == ContextNotification
}

// IsRingerOrCall reports whether the attributes belong to the telephony stack.
func (a Attributes) IsRingerOrCall() bool {
	return a.Context().IsRingerOrCall()
}
