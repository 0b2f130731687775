package port

import (
	"github.com/berfenger/deye2mqtt/internal/core/domain"
)

type DispatchArbitrator interface {
	Decide(setPoint int32, mode domain.ControlMode, telemetry *domain.TelemetrySnapshot, surplusPower *int32) domain.EmsCommand
	Warnings() domain.ModeWarnings
}
