package service

import (
	"fmt"
	"math"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
)

// SumPvProduction adds the defined string readings. It returns nil when no
// string reported a value.
func SumPvProduction(readings []domain.PvStringReading) *int32 {
	var total int64
	defined := false
	for _, r := range readings {
		if r.ActualPower == nil {
			continue
		}
		total += int64(*r.ActualPower)
		defined = true
	}
	if !defined {
		return nil
	}
	sum := int32(clamp(total, math.MinInt32, math.MaxInt32))
	return &sum
}

func PvStringReadings(strings []deye_modbus.PvString) []domain.PvStringReading {
	readings := make([]domain.PvStringReading, 0, len(strings))
	for _, s := range strings {
		readings = append(readings, domain.PvStringReading{
			Id:          fmt.Sprintf("pv%d", s.Index),
			ActualPower: s.PowerWatt,
		})
	}
	return readings
}

func MeterStatusFromRegister(value *int32) domain.MeterCommunicateStatus {
	if value == nil {
		return domain.MeterStatusUndefined
	}
	switch *value {
	case int32(deye_modbus.METER_STATUS_OK):
		return domain.MeterStatusOk
	case int32(deye_modbus.METER_STATUS_NG):
		return domain.MeterStatusNotConnected
	default:
		return domain.MeterStatusUndefined
	}
}

// SnapshotFromTelemetry captures one cycle worth of telemetry. The envelope
// is computed here and fed back into the snapshot.
func SnapshotFromTelemetry(t *deye_modbus.Telemetry, ratedPower int32, pidFilterEnabled bool) (*domain.TelemetrySnapshot, *domain.AllowedEnvelope) {
	if t == nil {
		return &domain.TelemetrySnapshot{IsPidFilterEnabled: pidFilterEnabled}, nil
	}
	var pv int32
	if sum := SumPvProduction(PvStringReadings(t.PvStrings)); sum != nil {
		pv = max(0, *sum)
	}
	snapshot := &domain.TelemetrySnapshot{
		GridActivePower:         t.GridActivePowerWatt,
		EssActivePower:          t.EssActivePowerWatt,
		PvProduction:            pv,
		BmsChargeMaxCurrent:     t.BmsChargeMaxCurrent,
		BmsDischargeMaxCurrent:  t.BmsDischargeMaxCurrent,
		BusVoltage:              t.BusVoltage,
		MeterCommunicateStatus:  MeterStatusFromRegister(t.MeterCommunicateStatus),
		IsPidFilterEnabled:      pidFilterEnabled,
		OvertemperatureDerating: t.OvertemperatureDerating != nil && *t.OvertemperatureDerating != 0,
	}
	envelope := ComputeEnvelope(t.BmsChargeMaxCurrent, t.BmsDischargeMaxCurrent, t.BusVoltage, pv, ratedPower)
	if envelope != nil {
		snapshot.MaxAcImport = &envelope.MaxAcImport
		snapshot.MaxAcExport = &envelope.MaxAcExport
	}
	return snapshot, envelope
}
