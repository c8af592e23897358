package topology

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
	"github.com/kmorales/car-audio-hub-go/internal/volume"
)

// Document is the on-disk topology: the devices a vehicle ships with and how
// zones, configs, and volume groups route contexts onto them.
type Document struct {
	VolumePriorityVersion int          `yaml:"volume_priority_version"`
	Devices               []DeviceSpec `yaml:"devices"`
	MirrorDevices         []string     `yaml:"mirror_devices"`
	Fade                  FadeSpec     `yaml:"fade"`
	Zones                 []ZoneSpec   `yaml:"zones"`
}

type DeviceSpec struct {
	Address string         `yaml:"address"`
	Dynamic bool           `yaml:"dynamic"`
	Gain    audio.GainInfo `yaml:"gain"`
}

type FadeSpec struct {
	Default *audio.FadeConfiguration `yaml:"default"`
	ByUsage []UsageFadeSpec          `yaml:"by_usage"`
}

type UsageFadeSpec struct {
	Usage  string                  `yaml:"usage"`
	Config audio.FadeConfiguration `yaml:"config"`
}

type ZoneSpec struct {
	ID      int          `yaml:"id"`
	Name    string       `yaml:"name"`
	Configs []ConfigSpec `yaml:"configs"`
}

type ConfigSpec struct {
	ID          int         `yaml:"id"`
	Name        string      `yaml:"name"`
	Default     bool        `yaml:"default"`
	CoreRouting bool        `yaml:"core_routing"`
	Groups      []GroupSpec `yaml:"groups"`
}

type GroupSpec struct {
	ID     int         `yaml:"id"`
	Name   string      `yaml:"name"`
	Routes []RouteSpec `yaml:"routes"`
}

type RouteSpec struct {
	Contexts []string `yaml:"contexts"`
	Device   string   `yaml:"device"`
}

// Result is the built topology, ready for wiring.
type Result struct {
	Store                 *volume.Store
	Devices               map[string]*audio.DeviceInfo
	MirrorDevices         []string
	FadeByUsage           map[audio.Usage]audio.FadeConfiguration
	DefaultFade           *audio.FadeConfiguration
	VolumePriorityVersion int
}

// Load reads a topology file and builds the zone store. Gain controllers are
// looked up per device address; missing ones fall back to the no-op
// controller.
func Load(path string, settings volume.SettingsStore,
	controllers map[string]audio.GainController, logger *logrus.Logger) (*Result, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	return Build(doc, settings, controllers, logger)
}

// Build validates a parsed document and constructs zones, configs, and
// groups from it.
func Build(doc Document, settings volume.SettingsStore,
	controllers map[string]audio.GainController, logger *logrus.Logger) (*Result, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if len(doc.Zones) == 0 {
		return nil, fmt.Errorf("topology declares no zones")
	}

	devices := make(map[string]*audio.DeviceInfo, len(doc.Devices))
	for _, spec := range doc.Devices {
		if spec.Address == "" {
			return nil, fmt.Errorf("device with empty address")
		}
		if _, dup := devices[spec.Address]; dup {
			return nil, fmt.Errorf("duplicate device address %q", spec.Address)
		}
		if err := spec.Gain.Validate(); err != nil {
			return nil, fmt.Errorf("device %s: %w", spec.Address, err)
		}
		devices[spec.Address] = audio.NewDeviceInfo(spec.Address, spec.Dynamic,
			spec.Gain, controllers[spec.Address], logger)
	}

	for _, address := range doc.MirrorDevices {
		if _, ok := devices[address]; !ok {
			return nil, fmt.Errorf("mirror device %q not declared", address)
		}
	}

	fadeByUsage := make(map[audio.Usage]audio.FadeConfiguration, len(doc.Fade.ByUsage))
	for _, spec := range doc.Fade.ByUsage {
		usage, ok := audio.UsageByName(spec.Usage)
		if !ok {
			return nil, fmt.Errorf("fade config for unknown usage %q", spec.Usage)
		}
		fadeByUsage[usage] = spec.Config
	}

	zones := make([]*volume.Zone, 0, len(doc.Zones))
	for _, zoneSpec := range doc.Zones {
		configs := make([]*volume.ZoneConfig, 0, len(zoneSpec.Configs))
		for _, configSpec := range zoneSpec.Configs {
			config, err := buildConfig(zoneSpec.ID, configSpec, devices, settings, logger)
			if err != nil {
				return nil, err
			}
			configs = append(configs, config)
		}
		zone, err := volume.NewZone(zoneSpec.ID, zoneSpec.Name, configs, logger)
		if err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}

	store, err := volume.NewStore(zones)
	if err != nil {
		return nil, err
	}

	version := doc.VolumePriorityVersion
	if version == 0 {
		version = volume.VolumePriorityVersionOne
	}

	return &Result{
		Store:                 store,
		Devices:               devices,
		MirrorDevices:         append([]string(nil), doc.MirrorDevices...),
		FadeByUsage:           fadeByUsage,
		DefaultFade:           doc.Fade.Default,
		VolumePriorityVersion: version,
	}, nil
}

func buildConfig(zoneID int, spec ConfigSpec, devices map[string]*audio.DeviceInfo,
	settings volume.SettingsStore, logger *logrus.Logger) (*volume.ZoneConfig, error) {
	builder := volume.NewZoneConfigBuilder(zoneID, spec.ID, spec.Name, spec.Default, logger)
	if spec.CoreRouting {
		builder.UseCoreAudioRouting()
	}
	for _, groupSpec := range spec.Groups {
		factory := volume.NewGroupFactory(zoneID, spec.ID, groupSpec.ID, groupSpec.Name,
			settings, logger)
		for _, route := range groupSpec.Routes {
			device, ok := devices[route.Device]
			if !ok {
				return nil, fmt.Errorf("zone %d config %q group %q: unknown device %q",
					zoneID, spec.Name, groupSpec.Name, route.Device)
			}
			for _, name := range route.Contexts {
				context, ok := audio.ContextByName(name)
				if !ok {
					return nil, fmt.Errorf("zone %d config %q group %q: unknown context %q",
						zoneID, spec.Name, groupSpec.Name, name)
				}
				if err := factory.SetDeviceInfoForContext(context, device); err != nil {
					return nil, fmt.Errorf("zone %d config %q: %w", zoneID, spec.Name, err)
				}
			}
		}
		group, err := factory.Build()
		if err != nil {
			return nil, err
		}
		builder.AddVolumeGroup(group)
	}
	return builder.Build()
}
