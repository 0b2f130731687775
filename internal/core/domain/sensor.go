package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                 = "bridge"
	SENSOR_ID_INVERTER_RUN_STATE           = "inverter_run_state"
	SENSOR_ID_GRID_ACTIVE_POWER            = "grid_active_power"
	SENSOR_ID_ESS_ACTIVE_POWER             = "ess_active_power"
	SENSOR_ID_PV_POWER                     = "pv_power"
	SENSOR_ID_BATTERY_SOC                  = "battery_soc"
	SENSOR_ID_BMS_CHARGE_MAX_CURRENT       = "bms_charge_max_current"
	SENSOR_ID_BMS_DISCHARGE_MAX_CURRENT    = "bms_discharge_max_current"
	SENSOR_ID_BUS_VOLTAGE                  = "bus_voltage"
	SENSOR_ID_METER_STATUS                 = "meter_communicate_status"
	SENSOR_ID_MAX_AC_IMPORT                = "max_ac_import"
	SENSOR_ID_MAX_AC_EXPORT                = "max_ac_export"
	SENSOR_ID_EMS_POWER_MODE               = "ems_power_mode"
	SENSOR_ID_EMS_POWER                    = "ems_power"
	SENSOR_ID_EMS_WRITE_ERROR              = "ems_write_error"
	SENSOR_ID_WARN_SMART_MODE_PID_FILTER   = "smart_mode_not_working_with_pid_filter"
	SENSOR_ID_WARN_NO_SMART_METER_DETECTED = "no_smart_meter_detected"
	SWITCH_ID_READ_ONLY_MODE               = "read_only_mode"
	INPUT_NUMBER_ID_ACTIVE_POWER_SETPOINT  = "active_power_setpoint"
	INPUT_NUMBER_ID_SURPLUS_POWER          = "surplus_power"
	STATE_CLASS_MEASUREMENT                = "measurement"
	DEVICE_CLASS_BATTERY                   = "battery"
	DEVICE_CLASS_CURRENT                   = "current"
	DEVICE_CLASS_POWER                     = "power"
	DEVICE_CLASS_VOLTAGE                   = "voltage"
	DEVICE_CLASS_CONNECTIVITY              = "connectivity"
	DEVICE_CLASS_PROBLEM                   = "problem"
	ENTITY_CLASS_DIAGNOSTIC                = "diagnostic"
	ENTITY_CLASS_CONFIG                    = "config"
	SENSOR_TYPE_SENSOR                     = "sensor"
	SENSOR_TYPE_BINARY                     = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                  = "box"
	INPUT_NUMBER_MODE_SLIDER               = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("deye_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "deye2mqtt",
		Model:        "Deye bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Deye bridge %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info *deye_modbus.DeviceInfo) Device {
	return Device{
		Id:           fmt.Sprintf("deye_inverter_%s", md5HashShort(info.Serial)),
		Version:      info.Version,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func InverterTelemetrySensors(inverterDevice Device) []GenericSensor {
	sensors := []GenericSensor{
		textSensor(inverterDevice, SENSOR_ID_INVERTER_RUN_STATE, "Inverter run state", ""),
		powerSensor(inverterDevice, SENSOR_ID_GRID_ACTIVE_POWER, "Grid active power"),
		powerSensor(inverterDevice, SENSOR_ID_ESS_ACTIVE_POWER, "ESS active power"),
		powerSensor(inverterDevice, SENSOR_ID_PV_POWER, "PV power"),
		{
			Device:            inverterDevice,
			Id:                SENSOR_ID_BATTERY_SOC,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Battery SoC",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_BATTERY,
			UnitOfMeasurement: "%",
			UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BATTERY_SOC),
		},
		{
			Device:            inverterDevice,
			Id:                SENSOR_ID_BMS_CHARGE_MAX_CURRENT,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "BMS charge max current",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			UnitOfMeasurement: "A",
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BMS_CHARGE_MAX_CURRENT),
		},
		{
			Device:            inverterDevice,
			Id:                SENSOR_ID_BMS_DISCHARGE_MAX_CURRENT,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "BMS discharge max current",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			UnitOfMeasurement: "A",
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BMS_DISCHARGE_MAX_CURRENT),
		},
		{
			Device:            inverterDevice,
			Id:                SENSOR_ID_BUS_VOLTAGE,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              "Battery bus voltage",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_VOLTAGE,
			UnitOfMeasurement: "V",
			EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_BUS_VOLTAGE),
		},
		textSensor(inverterDevice, SENSOR_ID_METER_STATUS, "Meter communication status", ENTITY_CLASS_DIAGNOSTIC),
	}
	return sensors
}

func DispatchSensors(inverterDevice Device) []GenericSensor {
	return []GenericSensor{
		powerSensor(inverterDevice, SENSOR_ID_MAX_AC_IMPORT, "Max AC import"),
		powerSensor(inverterDevice, SENSOR_ID_MAX_AC_EXPORT, "Max AC export"),
		textSensor(inverterDevice, SENSOR_ID_EMS_POWER_MODE, "EMS power mode", ""),
		powerSensor(inverterDevice, SENSOR_ID_EMS_POWER, "EMS power"),
		problemSensor(inverterDevice, SENSOR_ID_EMS_WRITE_ERROR, "EMS write error", true),
		problemSensor(inverterDevice, SENSOR_ID_WARN_SMART_MODE_PID_FILTER, "Smart mode not working with PID filter", true),
		problemSensor(inverterDevice, SENSOR_ID_WARN_NO_SMART_METER_DETECTED, "No smart meter detected", true),
	}
}

// DiagnosticSensors builds one binary sensor per table entry.
func DiagnosticSensors(inverterDevice Device, table []deye_modbus.DiagnosticBit, enabledByDefault bool) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(table))
	for _, bit := range table {
		sensors = append(sensors, problemSensor(inverterDevice, bit.Id, diagnosticName(bit.Id), enabledByDefault))
	}
	return sensors
}

func DispatchControlSwitches(inverterDevice Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:         inverterDevice,
		Id:             SWITCH_ID_READ_ONLY_MODE,
		Name:           "Read-only mode",
		UniqueId:       uniqueId(inverterDevice.Id, SWITCH_ID_READ_ONLY_MODE),
		Icon:           "mdi:lock",
		EntityCategory: ENTITY_CLASS_CONFIG,
	}}
}

func DispatchControlInputNumbers(inverterDevice Device, ratedPower int32) []GenericInputNumber {
	return []GenericInputNumber{
		{
			Device:            inverterDevice,
			Id:                INPUT_NUMBER_ID_ACTIVE_POWER_SETPOINT,
			Name:              "Active power set-point",
			UniqueId:          uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_ACTIVE_POWER_SETPOINT),
			Icon:              "mdi:transmission-tower-export",
			UnitOfMeasurement: "W",
			Max:               float64(ratedPower),
			Min:               -float64(ratedPower),
			Step:              50,
			Mode:              INPUT_NUMBER_MODE_BOX,
		},
		{
			Device:            inverterDevice,
			Id:                INPUT_NUMBER_ID_SURPLUS_POWER,
			Name:              "Surplus feed-in power",
			UniqueId:          uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_SURPLUS_POWER),
			Icon:              "mdi:solar-power",
			UnitOfMeasurement: "W",
			Max:               float64(ratedPower),
			Min:               0,
			Step:              50,
			Mode:              INPUT_NUMBER_MODE_BOX,
		},
	}
}

func powerSensor(device Device, id, name string) GenericSensor {
	return GenericSensor{
		Device:            device,
		Id:                id,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(device.Id, id),
	}
}

func textSensor(device Device, id, name, entityCategory string) GenericSensor {
	return GenericSensor{
		Device:         device,
		Id:             id,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           name,
		EntityCategory: entityCategory,
		UniqueId:       uniqueId(device.Id, id),
	}
}

func problemSensor(device Device, id, name string, enabledByDefault bool) GenericSensor {
	return GenericSensor{
		Device:           device,
		Id:               id,
		SensorType:       SENSOR_TYPE_BINARY,
		Name:             name,
		DeviceClass:      DEVICE_CLASS_PROBLEM,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(enabledByDefault),
		UniqueId:         uniqueId(device.Id, id),
	}
}

func diagnosticName(id string) string {
	name := []byte(id)
	for i := range name {
		if name[i] == '_' {
			name[i] = ' '
		}
	}
	if len(name) > 0 && name[0] >= 'a' && name[0] <= 'z' {
		name[0] -= 'a' - 'A'
	}
	return string(name)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
