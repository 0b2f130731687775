package config

import (
	"testing"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateNormalizesTopics(t *testing.T) {

	require := require.New(t)

	cfg := validConfig()
	cfg.MQTT.BaseTopic = "Deye_Inverter"
	require.NoError(Validate(&cfg))
	require.Equal("deye_inverter", cfg.MQTT.BaseTopic)
}

func TestValidateRejects(t *testing.T) {

	assert := assert.New(t)

	cases := map[string]func(*Config){
		"topic":            func(c *Config) { c.MQTT.BaseTopic = "deye/inverter" },
		"discovery topic":  func(c *Config) { c.MQTT.HADiscoveryTopic = "" },
		"control mode":     func(c *Config) { c.DispatchConfig.ControlMode = "turbo" },
		"transport":        func(c *Config) { c.InverterModbus.Transport = "udp" },
		"rtu device":       func(c *Config) { c.InverterModbus.Transport = "rtu" },
		"control interval": func(c *Config) { c.DispatchConfig.ControlIntervalMillis = 500 },
		"rated power":      func(c *Config) { c.DispatchConfig.RatedPower = -1 },
		"overtemperature":  func(c *Config) { c.DispatchConfig.OvertemperaturePowerLimit = -100 },
		"poll interval":    func(c *Config) { c.MonitorConfig.PollIntervalMillis = 10 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		err := Validate(&cfg)
		assert.ErrorIs(err, ErrInvalidConfig, name)
	}
}

func TestControlModeParse(t *testing.T) {

	require := require.New(t)

	cfg := validConfig()
	cfg.DispatchConfig.ControlMode = "Remote"
	require.NoError(Validate(&cfg))
	require.Equal(domain.ControlModeRemote, cfg.DispatchConfig.Mode())

	cfg.DispatchConfig.ControlMode = "invalid"
	err := Validate(&cfg)
	require.ErrorIs(err, domain.ErrInvalidControlMode)
}

func TestModbusURL(t *testing.T) {

	require := require.New(t)

	url, err := InverterModbusConfig{Transport: "tcp", Host: "192.168.1.20", Port: 502}.ModbusURL()
	require.NoError(err)
	require.Equal("tcp://192.168.1.20:502", url)

	url, err = InverterModbusConfig{Transport: "RTU", Device: "/dev/ttyUSB0"}.ModbusURL()
	require.NoError(err)
	require.Equal("rtu:///dev/ttyUSB0", url)
}

func validConfig() Config {
	return Config{
		InverterModbus: InverterModbusConfig{Transport: "tcp", Host: "localhost", Port: 502, UnitId: 1},
		MQTT: MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "deye",
			HADiscoveryTopic: "homeassistant",
		},
		DispatchConfig: DispatchConfig{
			ControlMode:           "smart",
			ControlIntervalMillis: 5000,
			RatedPower:            8000,
		},
		MonitorConfig: MonitorConfig{PollIntervalMillis: 5000},
	}
}
