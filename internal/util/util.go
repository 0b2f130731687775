package util

import (
	"github.com/berfenger/deye2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbus: config.InverterModbusConfig{
			Transport:     config.TRANSPORT_TCP,
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 1000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "deye",
			HADiscoveryTopic: "homeassistant",
		},
		DispatchConfig: config.DispatchConfig{
			ControlMode:               "remote",
			ControlIntervalMillis:     1000,
			RatedPower:                8000,
			WorkStateKeepAliveSeconds: 60,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
		},
		Port: 8080,
	}
}
