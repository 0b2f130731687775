package service

import (
	"github.com/berfenger/deye2mqtt/internal/core/domain"
)

// EvaluateModeCompatibility is level-triggered: it keeps no memory of previous cycles.
func EvaluateModeCompatibility(mode domain.ControlMode, meterStatus domain.MeterCommunicateStatus, isPidFilterEnabled bool) domain.ModeWarnings {
	return domain.ModeWarnings{
		SmartModeConflictsWithPidFilter: mode == domain.ControlModeSmart && isPidFilterEnabled,
		NoSmartMeterDetected:            meterStatus == domain.MeterStatusNotConnected && mode != domain.ControlModeRemote,
	}
}
