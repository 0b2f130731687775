package events

import (
	"sort"

	. "github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
)

func TelemetryToUpdateEvents(t *deye_modbus.Telemetry, pvProduction int32) []any {
	var events []any

	// Inverter run state
	runState := "undefined"
	if t.RunState != nil {
		runState = deye_modbus.RunStateToString(*t.RunState)
	}
	events = append(events, NewTextEvent(SENSOR_ID_INVERTER_RUN_STATE, runState))
	// Grid / ESS power flow
	if t.GridActivePowerWatt != nil {
		events = append(events, NewPowerEvent(SENSOR_ID_GRID_ACTIVE_POWER, *t.GridActivePowerWatt))
	}
	if t.EssActivePowerWatt != nil {
		events = append(events, NewPowerEvent(SENSOR_ID_ESS_ACTIVE_POWER, *t.EssActivePowerWatt))
	}
	events = append(events, NewPowerEvent(SENSOR_ID_PV_POWER, pvProduction))
	// Battery
	if t.BatterySoc != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BATTERY_SOC,
			},
			Value:    float64(*t.BatterySoc),
			Decimals: 0,
		})
	}
	if t.BmsChargeMaxCurrent != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BMS_CHARGE_MAX_CURRENT,
			},
			Value: float64(*t.BmsChargeMaxCurrent),
		})
	}
	if t.BmsDischargeMaxCurrent != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BMS_DISCHARGE_MAX_CURRENT,
			},
			Value: float64(*t.BmsDischargeMaxCurrent),
		})
	}
	if t.BusVoltage != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BUS_VOLTAGE,
			},
			Value: float64(*t.BusVoltage),
		})
	}

	return events
}

func MeterStatusUpdateEvents(status MeterCommunicateStatus) []any {
	return []any{NewTextEvent(SENSOR_ID_METER_STATUS, status.String())}
}

// DiagnosticFlagsToUpdateEvents emits one binary event per flag, sorted by id.
func DiagnosticFlagsToUpdateEvents(flags DiagnosticFlags) []any {
	ids := make([]string, 0, len(flags))
	for id := range flags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	events := make([]any, 0, len(ids))
	for _, id := range ids {
		events = append(events, NewBinaryEvent(id, flags[id]))
	}
	return events
}

// EnvelopeToUpdateEvents publishes import as negative power. An undefined
// envelope allows no power in either direction.
func EnvelopeToUpdateEvents(env *AllowedEnvelope) []any {
	if env == nil {
		env = &AllowedEnvelope{}
	}
	return []any{
		NewPowerEvent(SENSOR_ID_MAX_AC_IMPORT, -env.MaxAcImport),
		NewPowerEvent(SENSOR_ID_MAX_AC_EXPORT, env.MaxAcExport),
	}
}

func EmsCommandToUpdateEvents(cmd EmsCommand) []any {
	return []any{
		NewTextEvent(SENSOR_ID_EMS_POWER_MODE, cmd.Mode.String()),
		NewPowerEvent(SENSOR_ID_EMS_POWER, cmd.SignedPower()),
	}
}

func EmsWriteErrorUpdateEvent(failed bool) any {
	return NewBinaryEvent(SENSOR_ID_EMS_WRITE_ERROR, failed)
}

func ModeWarningsToUpdateEvents(w ModeWarnings) []any {
	return []any{
		NewBinaryEvent(SENSOR_ID_WARN_SMART_MODE_PID_FILTER, w.SmartModeConflictsWithPidFilter),
		NewBinaryEvent(SENSOR_ID_WARN_NO_SMART_METER_DETECTED, w.NoSmartMeterDetected),
	}
}

func ReadOnlyModeSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_READ_ONLY_MODE,
		},
		Value: enabled,
	}
}

func SetPointUpdateEvents(setPoint, surplusPower *int32) []any {
	var events []any
	if setPoint != nil {
		events = append(events, InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: INPUT_NUMBER_ID_ACTIVE_POWER_SETPOINT,
			},
			Value: float64(*setPoint),
		})
	}
	surplus := 0.0
	if surplusPower != nil {
		surplus = float64(*surplusPower)
	}
	events = append(events, InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_SURPLUS_POWER,
		},
		Value: surplus,
	})
	return events
}
