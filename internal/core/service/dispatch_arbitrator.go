package service

import (
	"math"
	"sync"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// differences strictly inside this band are treated as rounding noise
const smartModeBalancingBand = 1

type DefaultDispatchArbitrator struct {
	Logger *zap.Logger

	mu       sync.Mutex
	warnings domain.ModeWarnings
}

func NewDispatchArbitrator(logger *zap.Logger) *DefaultDispatchArbitrator {
	return &DefaultDispatchArbitrator{
		Logger: logger,
	}
}

func (arb *DefaultDispatchArbitrator) Decide(setPoint int32, mode domain.ControlMode, telemetry *domain.TelemetrySnapshot, surplusPower *int32) domain.EmsCommand {
	arb.mu.Lock()
	defer arb.mu.Unlock()

	if telemetry != nil {
		arb.warnings = EvaluateModeCompatibility(mode, telemetry.MeterCommunicateStatus, telemetry.IsPidFilterEnabled)
	} else {
		arb.warnings = EvaluateModeCompatibility(mode, domain.MeterStatusUndefined, false)
	}

	cmd := decide(setPoint, mode, telemetry, surplusPower)
	if arb.Logger != nil {
		arb.Logger.Debug("dispatch decision",
			zap.Int32("set_point", setPoint),
			zap.Stringer("control_mode", mode),
			zap.Stringer("ems_mode", cmd.Mode),
			zap.Int32("magnitude", cmd.Magnitude))
	}
	return cmd
}

func (arb *DefaultDispatchArbitrator) Warnings() domain.ModeWarnings {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	return arb.warnings
}

func decide(setPoint int32, mode domain.ControlMode, telemetry *domain.TelemetrySnapshot, surplusPower *int32) domain.EmsCommand {
	if telemetry == nil || telemetry.GridActivePower == nil || telemetry.EssActivePower == nil ||
		telemetry.MaxAcImport == nil || telemetry.MaxAcExport == nil {
		return domain.EmsCommandAuto
	}
	pv := int64(max(0, telemetry.PvProduction))
	s := int64(setPoint)

	switch mode {
	case domain.ControlModeRemote:
		return remoteRule(s, pv)
	case domain.ControlModeSmart:
		diffBalancing := s - (int64(*telemetry.GridActivePower) + int64(*telemetry.EssActivePower))
		if withinBalancingBand(diffBalancing) {
			return domain.EmsCommandAuto
		}
		if diffSurplus, ok := surplusDifference(s, surplusPower); ok && withinBalancingBand(diffSurplus) {
			return domain.EmsCommandAuto
		}
		return remoteRule(s, pv)
	default:
		return domain.EmsCommandAuto
	}
}

// surplusDifference is only applicable with a positive surplus target and a non-zero set-point.
func surplusDifference(s int64, surplusPower *int32) (int64, bool) {
	if surplusPower == nil || *surplusPower <= 0 || s == 0 {
		return 0, false
	}
	return s - int64(*surplusPower), true
}

func withinBalancingBand(diff int64) bool {
	return diff > -smartModeBalancingBand && diff < smartModeBalancingBand
}

func remoteRule(s, pv int64) domain.EmsCommand {
	switch {
	case s < 0:
		return domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: saturateMagnitude(-s + pv)}
	case pv >= s:
		return domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: saturateMagnitude(pv - s)}
	default:
		return domain.EmsCommand{Mode: domain.EmsPowerModeDischargeBattery, Magnitude: saturateMagnitude(s - pv)}
	}
}

func saturateMagnitude(value int64) int32 {
	if value < 0 {
		return 0
	}
	if value > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(value)
}

// ensure interface compliance
var _ port.DispatchArbitrator = (*DefaultDispatchArbitrator)(nil)
