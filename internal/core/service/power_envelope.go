package service

import (
	"github.com/berfenger/deye2mqtt/internal/core/domain"
)

// ComputeEnvelope returns nil when the BMS current limits or the bus voltage
// are unknown. A zero voltage is a reading, not an unknown.
func ComputeEnvelope(bmsChargeMaxCurrent, bmsDischargeMaxCurrent, busVoltage *int32, pvProduction, ratedPower int32) *domain.AllowedEnvelope {
	if bmsChargeMaxCurrent == nil || bmsDischargeMaxCurrent == nil || busVoltage == nil {
		return nil
	}
	voltage := int64(*busVoltage)
	pv := int64(max(0, pvProduction))
	rated := int64(max(0, ratedPower))

	maxDc := int64(*bmsChargeMaxCurrent) * voltage
	importRaw := maxDc - min(maxDc, pv)
	exportRaw := int64(*bmsDischargeMaxCurrent)*voltage + pv

	return &domain.AllowedEnvelope{
		MaxAcImport: int32(clamp(importRaw, 0, rated)),
		MaxAcExport: int32(clamp(exportRaw, 0, rated)),
	}
}

// ClampSetPoint keeps a set-point inside [-MaxAcImport, MaxAcExport].
func ClampSetPoint(setPoint int32, envelope *domain.AllowedEnvelope) int32 {
	if envelope == nil {
		return setPoint
	}
	return int32(clamp(int64(setPoint), -int64(envelope.MaxAcImport), int64(envelope.MaxAcExport)))
}

// LimitSetPoint keeps a set-point inside [-limit, limit].
func LimitSetPoint(setPoint, limit int32) int32 {
	l := int64(max(0, limit))
	return int32(clamp(int64(setPoint), -l, l))
}

func clamp(value, lower, upper int64) int64 {
	return max(lower, min(upper, value))
}
