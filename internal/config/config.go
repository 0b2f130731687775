package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
	"go.uber.org/zap/zapcore"
)

const (
	TRANSPORT_TCP = "tcp"
	TRANSPORT_RTU = "rtu"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel       zapcore.Level
	InverterModbus InverterModbusConfig `mapstructure:"inverter_modbus"`
	MQTT           MQTTConfig           `mapstructure:"mqtt"`

	DispatchConfig DispatchConfig `mapstructure:"dispatch"`
	MonitorConfig  MonitorConfig  `mapstructure:"monitor"`
	Port           uint           `mapstructure:"port"`
	HttpLog        bool           `mapstructure:"http_log"`
}

type InverterModbusConfig struct {
	Transport     string
	Host          string
	Port          uint
	Device        string
	BaudRate      uint   `mapstructure:"baud_rate"`
	UnitId        uint   `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`

	// loaded on top of deye_modbus.DefaultRegisterMap
	Registers deye_modbus.RegisterMap `mapstructure:"-"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type DispatchConfig struct {
	ControlMode               string `mapstructure:"control_mode"`
	ControlIntervalMillis     uint32 `mapstructure:"control_interval_millis"`
	RatedPower                int32  `mapstructure:"rated_power"`
	ReadOnlyMode              bool   `mapstructure:"read_only_mode"`
	PidFilterEnabled          bool   `mapstructure:"pid_filter_enabled"`
	InitialSetPoint           *int32 `mapstructure:"initial_set_point"`
	WorkStateKeepAliveSeconds uint32 `mapstructure:"work_state_keepalive_seconds"`
	OvertemperaturePowerLimit int32  `mapstructure:"overtemperature_power_limit"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c DispatchConfig) Mode() domain.ControlMode {
	mode, err := domain.ParseControlMode(c.ControlMode)
	if err != nil {
		return domain.ControlModeInternal
	}
	return mode
}

// ModbusURL builds the simonvetter/modbus URL for the configured transport.
func (c InverterModbusConfig) ModbusURL() (string, error) {
	switch strings.ToLower(c.Transport) {
	case TRANSPORT_TCP, "":
		return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port), nil
	case TRANSPORT_RTU:
		return fmt.Sprintf("rtu://%s", c.Device), nil
	}
	return "", fmt.Errorf("%w: unknown modbus transport %q", ErrInvalidConfig, c.Transport)
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics in place.
func Validate(cfg *Config) error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return fmt.Errorf("%w: mqtt.base_topic: %w", ErrInvalidConfig, err)
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return fmt.Errorf("%w: mqtt.ha_discovery_topic: %w", ErrInvalidConfig, err)
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if _, err := domain.ParseControlMode(cfg.DispatchConfig.ControlMode); err != nil {
		return fmt.Errorf("%w: dispatch.control_mode: %w", ErrInvalidConfig, err)
	}
	if _, err := cfg.InverterModbus.ModbusURL(); err != nil {
		return err
	}
	if strings.EqualFold(cfg.InverterModbus.Transport, TRANSPORT_RTU) && cfg.InverterModbus.Device == "" {
		return fmt.Errorf("%w: inverter_modbus.device is required for rtu transport", ErrInvalidConfig)
	}
	if cfg.DispatchConfig.ControlIntervalMillis < 1000 {
		return fmt.Errorf("%w: dispatch.control_interval_millis should be >= 1000", ErrInvalidConfig)
	}
	if cfg.DispatchConfig.RatedPower < 0 {
		return fmt.Errorf("%w: dispatch.rated_power should be >= 0", ErrInvalidConfig)
	}
	if cfg.DispatchConfig.OvertemperaturePowerLimit < 0 {
		return fmt.Errorf("%w: dispatch.overtemperature_power_limit should be >= 0", ErrInvalidConfig)
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return fmt.Errorf("%w: monitor.poll_interval_millis should be >= 1000", ErrInvalidConfig)
	}
	return nil
}
