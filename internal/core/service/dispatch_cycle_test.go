package service

import (
	"testing"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCycleWithoutSetPointIsAuto(t *testing.T) {

	require := require.New(t)

	telemetry := genTelemetry()
	telemetry.MeterCommunicateStatus = p(0)
	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		Mode:       domain.ControlModeSmart,
		RatedPower: 8000,
		Telemetry:  telemetry,
	})
	require.Equal(domain.EmsCommandAuto, r.Command)
	require.Nil(r.SetPoint)
	require.NotNil(r.Envelope)
	require.True(r.Warnings.NoSmartMeterDetected)
}

func TestCycleClipsSetPointToEnvelope(t *testing.T) {

	require := require.New(t)

	// envelope: import 800, export 4400
	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:   p(-6000),
		Mode:       domain.ControlModeRemote,
		RatedPower: 8000,
		Telemetry:  genTelemetry(),
	})
	require.EqualValues(-800, *r.SetPoint)
	require.Equal(domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 800 + 1800}, r.Command)

	r = RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:   p(9000),
		Mode:       domain.ControlModeRemote,
		RatedPower: 8000,
		Telemetry:  genTelemetry(),
	})
	require.EqualValues(4400, *r.SetPoint)
	require.Equal(domain.EmsCommand{Mode: domain.EmsPowerModeDischargeBattery, Magnitude: 4400 - 1800}, r.Command)
}

func TestCycleWithFailedTelemetryIsAuto(t *testing.T) {

	require := require.New(t)

	for _, mode := range allModes {
		r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
			SetPoint:   p(2000),
			Mode:       mode,
			RatedPower: 8000,
		})
		require.Equal(domain.EmsCommandAuto, r.Command)
		require.Nil(r.Envelope)
	}
}

func TestCycleSmartModeWarnings(t *testing.T) {

	require := require.New(t)

	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:         p(0),
		Mode:             domain.ControlModeSmart,
		RatedPower:       8000,
		PidFilterEnabled: true,
		Telemetry:        genTelemetry(),
	})
	require.True(r.Warnings.SmartModeConflictsWithPidFilter)
	require.False(r.Warnings.NoSmartMeterDetected)
}

func TestCycleWithUnknownBusVoltageIsAuto(t *testing.T) {

	require := require.New(t)

	// without a voltage the DC capability is unknown, PV alone must not open an envelope
	telemetry := genTelemetry()
	telemetry.BusVoltage = nil
	telemetry.PvStrings = []deye_modbus.PvString{{Index: 1, PowerWatt: p(1500)}}
	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:   p(0),
		Mode:       domain.ControlModeRemote,
		RatedPower: 8000,
		Telemetry:  telemetry,
	})
	require.Nil(r.Envelope)
	require.Nil(r.Snapshot.MaxAcImport)
	require.Nil(r.Snapshot.MaxAcExport)
	require.EqualValues(0, *r.SetPoint)
	require.Equal(domain.EmsCommandAuto, r.Command)
}

func TestCycleOvertemperatureLimit(t *testing.T) {

	require := require.New(t)

	telemetry := genTelemetry()
	telemetry.OvertemperatureDerating = p(0x0004)

	// envelope allows 3000 W export, derating caps it at 500 W
	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:                  p(3000),
		Mode:                      domain.ControlModeRemote,
		RatedPower:                8000,
		Telemetry:                 telemetry,
		OvertemperaturePowerLimit: 500,
	})
	require.True(r.Snapshot.OvertemperatureDerating)
	require.EqualValues(500, *r.SetPoint)
	require.Equal(domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 1800 - 500}, r.Command)
	require.NotNil(r.PvPowerLimit)
	require.EqualValues(500, *r.PvPowerLimit)

	// import is clipped by the envelope first, then by the limit
	r = RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:                  p(-2000),
		Mode:                      domain.ControlModeRemote,
		RatedPower:                8000,
		Telemetry:                 telemetry,
		OvertemperaturePowerLimit: 500,
	})
	require.EqualValues(-500, *r.SetPoint)
	require.Equal(domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 500 + 1800}, r.Command)

	// the PV limit is requested even without a set-point
	r = RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		Mode:                      domain.ControlModeRemote,
		RatedPower:                8000,
		Telemetry:                 telemetry,
		OvertemperaturePowerLimit: 500,
	})
	require.Equal(domain.EmsCommandAuto, r.Command)
	require.NotNil(r.PvPowerLimit)
}

func TestCycleOvertemperatureLimitInactive(t *testing.T) {

	require := require.New(t)

	// limit configured, inverter not derating
	r := RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:                  p(3000),
		Mode:                      domain.ControlModeRemote,
		RatedPower:                8000,
		Telemetry:                 genTelemetry(),
		OvertemperaturePowerLimit: 500,
	})
	require.EqualValues(3000, *r.SetPoint)
	require.Nil(r.PvPowerLimit)

	// derating, no limit configured
	telemetry := genTelemetry()
	telemetry.OvertemperatureDerating = p(1)
	r = RunDispatchCycle(NewDispatchArbitrator(zap.NewNop()), DispatchCycleInput{
		SetPoint:   p(3000),
		Mode:       domain.ControlModeRemote,
		RatedPower: 8000,
		Telemetry:  telemetry,
	})
	require.EqualValues(3000, *r.SetPoint)
	require.Nil(r.PvPowerLimit)
}

func genTelemetry() *deye_modbus.Telemetry {
	return &deye_modbus.Telemetry{
		GridActivePowerWatt:    p(350),
		EssActivePowerWatt:     p(-800),
		PvStrings:              []deye_modbus.PvString{{Index: 1, PowerWatt: p(1200)}, {Index: 2, PowerWatt: p(600)}},
		BmsChargeMaxCurrent:    p(50),
		BmsDischargeMaxCurrent: p(50),
		BusVoltage:             p(52),
		MeterCommunicateStatus: p(1),
	}
}
