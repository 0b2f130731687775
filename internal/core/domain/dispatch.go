package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidControlMode = errors.New("invalid control mode")

// ControlMode selects the arbitration branch. It is configuration and
// never changes during a control cycle.
type ControlMode int

const (
	ControlModeInternal ControlMode = iota
	ControlModeSmart
	ControlModeRemote
)

func ParseControlMode(value string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "internal":
		return ControlModeInternal, nil
	case "smart":
		return ControlModeSmart, nil
	case "remote":
		return ControlModeRemote, nil
	}
	return ControlModeInternal, fmt.Errorf("%w: %q (expected internal, smart or remote)", ErrInvalidControlMode, value)
}

func (m ControlMode) String() string {
	switch m {
	case ControlModeInternal:
		return "internal"
	case ControlModeSmart:
		return "smart"
	case ControlModeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

type EmsPowerMode int

const (
	EmsPowerModeAuto EmsPowerMode = iota
	EmsPowerModeChargeBattery
	EmsPowerModeDischargeBattery
)

func (m EmsPowerMode) String() string {
	switch m {
	case EmsPowerModeAuto:
		return "auto"
	case EmsPowerModeChargeBattery:
		return "charge_battery"
	case EmsPowerModeDischargeBattery:
		return "discharge_battery"
	default:
		return "unknown"
	}
}

// EmsCommand is written to the inverter as (mode, magnitude). Magnitude is
// never negative; its direction is implied by Mode.
type EmsCommand struct {
	Mode      EmsPowerMode
	Magnitude int32
}

var EmsCommandAuto = EmsCommand{Mode: EmsPowerModeAuto, Magnitude: 0}

// SignedPower returns the command as AC power, discharge positive.
func (c EmsCommand) SignedPower() int32 {
	switch c.Mode {
	case EmsPowerModeChargeBattery:
		return -c.Magnitude
	case EmsPowerModeDischargeBattery:
		return c.Magnitude
	default:
		return 0
	}
}

// AllowedEnvelope is the instantaneous AC band. Both values are in
// [0, ratedPower] and carry no sign.
type AllowedEnvelope struct {
	MaxAcImport int32
	MaxAcExport int32
}

type ModeWarnings struct {
	SmartModeConflictsWithPidFilter bool
	NoSmartMeterDetected            bool
}
