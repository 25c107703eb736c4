package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	DefaultBitrate    = 1_000_000
	DefaultTxQueueLen = 1000
	DefaultDriver     = "socketcan"
	DefaultPowerBus   = "can3"
)

type BusConfig struct {
	Interfaces    []string // Empty means discover
	Driver        string
	Bitrate       int
	TxQueueLen    int
	HostId        uint8
	BringUp       bool
	KernelFilters bool
	Parallel      bool
}

// Response deadlines per operation
type Timeouts struct {
	Param    time.Duration
	Zero     time.Duration
	Reset    time.Duration
	Save     time.Duration
	Reassign time.Duration
	Feedback time.Duration
	Power    time.Duration
}

type PowerConfig struct {
	Interface string
	Driver    string
}

type Config struct {
	Bus        BusConfig
	Timeouts   Timeouts
	Power      PowerConfig
	LogLevel   log.Level
	Actuators  []actuator.Info
	Parameters []param.Descriptor
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Param:    200 * time.Millisecond,
		Zero:     2000 * time.Millisecond,
		Reset:    2000 * time.Millisecond,
		Save:     200 * time.Millisecond,
		Reassign: 2000 * time.Millisecond,
		Feedback: 20 * time.Millisecond,
		Power:    1000 * time.Millisecond,
	}
}

func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Driver:     DefaultDriver,
			Bitrate:    DefaultBitrate,
			TxQueueLen: DefaultTxQueueLen,
			HostId:     protocol.DefaultHostId,
		},
		Timeouts:   DefaultTimeouts(),
		Power:      PowerConfig{Interface: DefaultPowerBus, Driver: DefaultDriver},
		LogLevel:   log.InfoLevel,
		Actuators:  actuator.DefaultInfos(),
		Parameters: param.DefaultDescriptors(),
	}
}

// Load an INI configuration on top of the defaults.
// file can be a path, []byte or an io.Reader, anything accepted by ini.Load
func Load(file any) (*Config, error) {
	cfg := Default()
	f, err := ini.Load(file)
	if err != nil {
		return nil, err
	}

	bus := f.Section("bus")
	if interfaces := bus.Key("interfaces").Strings(","); len(interfaces) > 0 {
		cfg.Bus.Interfaces = interfaces
	}
	cfg.Bus.Driver = bus.Key("driver").MustString(cfg.Bus.Driver)
	cfg.Bus.Bitrate = bus.Key("bitrate").MustInt(cfg.Bus.Bitrate)
	cfg.Bus.TxQueueLen = bus.Key("txqueuelen").MustInt(cfg.Bus.TxQueueLen)
	cfg.Bus.BringUp = bus.Key("bring_up").MustBool(cfg.Bus.BringUp)
	cfg.Bus.KernelFilters = bus.Key("kernel_filters").MustBool(cfg.Bus.KernelFilters)
	cfg.Bus.Parallel = bus.Key("parallel").MustBool(cfg.Bus.Parallel)
	if bus.HasKey("host_id") {
		hostId, err := strconv.ParseUint(bus.Key("host_id").String(), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("[bus] host_id : %w", err)
		}
		cfg.Bus.HostId = uint8(hostId)
	}
	if cfg.Bus.Bitrate <= 0 || cfg.Bus.TxQueueLen <= 0 {
		return nil, fmt.Errorf("[bus] bitrate and txqueuelen must be positive")
	}

	timeouts := f.Section("timeouts")
	for _, t := range []struct {
		key   string
		value *time.Duration
	}{
		{"param", &cfg.Timeouts.Param},
		{"zero", &cfg.Timeouts.Zero},
		{"reset", &cfg.Timeouts.Reset},
		{"save", &cfg.Timeouts.Save},
		{"reassign", &cfg.Timeouts.Reassign},
		{"feedback", &cfg.Timeouts.Feedback},
		{"power", &cfg.Timeouts.Power},
	} {
		*t.value = timeouts.Key(t.key).MustDuration(*t.value)
		if *t.value <= 0 {
			return nil, fmt.Errorf("[timeouts] %v must be positive", t.key)
		}
	}

	power := f.Section("power")
	cfg.Power.Interface = power.Key("interface").MustString(cfg.Power.Interface)
	cfg.Power.Driver = power.Key("driver").MustString(cfg.Bus.Driver)

	if f.Section("log").HasKey("level") {
		level, err := log.ParseLevel(f.Section("log").Key("level").String())
		if err != nil {
			return nil, fmt.Errorf("[log] %w", err)
		}
		cfg.LogLevel = level
	}

	for _, section := range f.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, "actuator "):
			err = cfg.applyActuator(section)
		case strings.HasPrefix(name, "param "):
			err = cfg.applyParameter(section)
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// [actuator 11] section : label, max_torque
func (cfg *Config) applyActuator(section *ini.Section) error {
	raw, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(section.Name(), "actuator ")), 10, 8)
	if err != nil {
		return fmt.Errorf("[%v] invalid actuator id : %w", section.Name(), err)
	}
	id := actuator.Id(raw)
	if err := id.Validate(); err != nil {
		return fmt.Errorf("[%v] %w", section.Name(), err)
	}
	index := -1
	for i, info := range cfg.Actuators {
		if info.Id == id {
			index = i
		}
	}
	info := actuator.Info{Id: id, Label: id.String()}
	if index >= 0 {
		info = cfg.Actuators[index]
	}
	info.Label = section.Key("label").MustString(info.Label)
	info.MaxTorque = section.Key("max_torque").MustFloat64(info.MaxTorque)
	if index >= 0 {
		cfg.Actuators[index] = info
	} else {
		cfg.Actuators = append(cfg.Actuators, info)
	}
	return nil
}

// [param 0x7005] section : name, type, unit, min, max, default, writable
func (cfg *Config) applyParameter(section *ini.Section) error {
	raw, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(section.Name(), "param ")), 0, 16)
	if err != nil {
		return fmt.Errorf("[%v] invalid parameter code : %w", section.Name(), err)
	}
	code := uint16(raw)
	index := -1
	for i, d := range cfg.Parameters {
		if d.Code == code {
			index = i
		}
	}
	d := param.Descriptor{Code: code, Name: fmt.Sprintf("x%04x", code)}
	if index >= 0 {
		d = cfg.Parameters[index]
	}
	d.Name = section.Key("name").MustString(d.Name)
	if section.HasKey("type") {
		d.Type, err = param.ParseType(section.Key("type").String())
		if err != nil {
			return fmt.Errorf("[%v] %w", section.Name(), err)
		}
	}
	d.Unit = section.Key("unit").MustString(d.Unit)
	d.Min = section.Key("min").MustFloat64(d.Min)
	d.Max = section.Key("max").MustFloat64(d.Max)
	d.Default = section.Key("default").MustFloat64(d.Default)
	d.Writable = section.Key("writable").MustBool(d.Writable)
	if index >= 0 {
		cfg.Parameters[index] = d
	} else {
		cfg.Parameters = append(cfg.Parameters, d)
	}
	return nil
}

// Build the immutable actuator registry
func (cfg *Config) Registry() (*actuator.Registry, error) {
	return actuator.NewRegistry(cfg.Actuators)
}

// Build the immutable parameter catalog
func (cfg *Config) Catalog() (*param.Catalog, error) {
	return param.NewCatalog(cfg.Parameters)
}
