package service

import (
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/core/port"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
)

type DispatchCycleInput struct {
	SetPoint         *int32
	SurplusPower     *int32
	Mode             domain.ControlMode
	RatedPower       int32
	PidFilterEnabled bool
	Telemetry        *deye_modbus.Telemetry

	// symmetric cap applied while the inverter derates for overtemperature, 0 disables it
	OvertemperaturePowerLimit int32
}

type DispatchCycleResult struct {
	Snapshot *domain.TelemetrySnapshot
	Envelope *domain.AllowedEnvelope
	// SetPoint after clipping to the envelope and any overtemperature limit, nil when none was requested
	SetPoint *int32
	Command  domain.EmsCommand
	Warnings domain.ModeWarnings

	// PV charger limit to write this cycle, nil when not derating
	PvPowerLimit *int32
}

// RunDispatchCycle evaluates one control cycle: snapshot, envelope, warnings
// and the resulting inverter command. It performs no I/O.
func RunDispatchCycle(arbitrator port.DispatchArbitrator, in DispatchCycleInput) DispatchCycleResult {
	snapshot, envelope := SnapshotFromTelemetry(in.Telemetry, in.RatedPower, in.PidFilterEnabled)
	result := DispatchCycleResult{
		Snapshot: snapshot,
		Envelope: envelope,
		Command:  domain.EmsCommandAuto,
	}
	derating := in.OvertemperaturePowerLimit > 0 && snapshot.OvertemperatureDerating
	if derating {
		limit := in.OvertemperaturePowerLimit
		result.PvPowerLimit = &limit
	}
	if in.SetPoint == nil {
		result.Warnings = EvaluateModeCompatibility(in.Mode, snapshot.MeterCommunicateStatus, snapshot.IsPidFilterEnabled)
		return result
	}
	setPoint := ClampSetPoint(*in.SetPoint, envelope)
	if derating {
		setPoint = LimitSetPoint(setPoint, in.OvertemperaturePowerLimit)
	}
	result.SetPoint = &setPoint
	result.Command = arbitrator.Decide(setPoint, in.Mode, snapshot, in.SurplusPower)
	result.Warnings = arbitrator.Warnings()
	return result
}
