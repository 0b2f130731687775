package service

import (
	"math"
	"testing"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var allModes = []domain.ControlMode{domain.ControlModeInternal, domain.ControlModeSmart, domain.ControlModeRemote}

func TestUndefinedTelemetryFallsBackToAuto(t *testing.T) {

	require := require.New(t)

	snapshots := []*domain.TelemetrySnapshot{
		nil,
		{EssActivePower: p(0), MaxAcImport: p(5000), MaxAcExport: p(5000), PvProduction: 800},
		{GridActivePower: p(0), MaxAcImport: p(5000), MaxAcExport: p(5000), PvProduction: 800},
		{GridActivePower: p(0), EssActivePower: p(0), MaxAcExport: p(5000), PvProduction: 800},
		{GridActivePower: p(0), EssActivePower: p(0), MaxAcImport: p(5000), PvProduction: 800},
	}
	for _, mode := range allModes {
		for i, snapshot := range snapshots {
			for _, s := range []int32{-3000, 0, 1, 2500} {
				cmd := arb.Decide(s, mode, snapshot, p(1000))
				require.Equal(domain.EmsCommandAuto, cmd, "mode %s snapshot %d set-point %d", mode, i, s)
			}
		}
	}
}

func TestInternalModeIsAlwaysAuto(t *testing.T) {

	require := require.New(t)

	for _, s := range []int32{math.MinInt32, -2000, 0, 2000, math.MaxInt32} {
		cmd := arb.Decide(s, domain.ControlModeInternal, snap(300, -200, 1500), nil)
		require.Equal(domain.EmsCommandAuto, cmd)
	}
}

func TestRemoteRule(t *testing.T) {

	assert := assert.New(t)

	// forced charge beyond PV
	assert.Equal(charge(3000+1200), arb.Decide(-3000, domain.ControlModeRemote, snap(0, 0, 1200), nil))
	// excess PV charges the battery
	assert.Equal(charge(700), arb.Decide(500, domain.ControlModeRemote, snap(0, 0, 1200), nil))
	// PV matches the set-point exactly
	assert.Equal(charge(0), arb.Decide(1200, domain.ControlModeRemote, snap(0, 0, 1200), nil))
	// PV insufficient
	assert.Equal(discharge(1800), arb.Decide(3000, domain.ControlModeRemote, snap(0, 0, 1200), nil))
	// negative PV readings are treated as zero
	assert.Equal(discharge(3000), arb.Decide(3000, domain.ControlModeRemote, snap(0, 0, -50), nil))
	assert.Equal(charge(0), arb.Decide(0, domain.ControlModeRemote, snap(0, 0, -50), nil))
}

func TestRemoteModeIgnoresSurplusAndBalancing(t *testing.T) {

	require := require.New(t)

	// grid + ess equals the set-point, which would trip the smart guard
	cmd := arb.Decide(300, domain.ControlModeRemote, snap(500, -200, 0), p(300))
	require.Equal(discharge(300), cmd)
}

func TestSmartModeBalancingGuard(t *testing.T) {

	require := require.New(t)

	cmd := arb.Decide(0, domain.ControlModeSmart, snap(500, -500, 0), nil)
	require.Equal(domain.EmsCommandAuto, cmd)

	// without the guard the remote rule would charge from PV
	cmd = arb.Decide(0, domain.ControlModeSmart, snap(500, -500, 900), nil)
	require.Equal(domain.EmsCommandAuto, cmd)

	// a difference of exactly one watt is not rounding noise
	cmd = arb.Decide(1, domain.ControlModeSmart, snap(500, -500, 0), nil)
	require.Equal(discharge(1), cmd)
}

func TestSmartModeSurplusGuard(t *testing.T) {

	require := require.New(t)

	// set-point equals the surplus target
	cmd := arb.Decide(1500, domain.ControlModeSmart, snap(200, 100, 2000), p(1500))
	require.Equal(domain.EmsCommandAuto, cmd)

	// surplus not positive: not applicable
	cmd = arb.Decide(1500, domain.ControlModeSmart, snap(200, 100, 2000), p(0))
	require.Equal(charge(500), cmd)
	cmd = arb.Decide(-1500, domain.ControlModeSmart, snap(200, 100, 2000), p(-1500))
	require.Equal(charge(3500), cmd)

	// undefined surplus: not applicable
	cmd = arb.Decide(1500, domain.ControlModeSmart, snap(200, 100, 2000), nil)
	require.Equal(charge(500), cmd)

	// surplus differs by more than the band
	cmd = arb.Decide(1500, domain.ControlModeSmart, snap(200, 100, 1000), p(1498))
	require.Equal(discharge(500), cmd)
}

func TestSmartModeZeroSetPointIgnoresSurplus(t *testing.T) {

	require := require.New(t)

	// surplus 0 < s is required; s == 0 never matches the surplus guard
	cmd := arb.Decide(0, domain.ControlModeSmart, snap(400, 100, 300), p(1))
	require.Equal(charge(300), cmd)
}

func TestDecideSaturatesMagnitude(t *testing.T) {

	require := require.New(t)

	cmd := arb.Decide(math.MinInt32, domain.ControlModeRemote, snap(0, 0, math.MaxInt32), nil)
	require.Equal(charge(math.MaxInt32), cmd)

	cmd = arb.Decide(math.MaxInt32, domain.ControlModeRemote, snap(0, 0, 0), nil)
	require.Equal(discharge(math.MaxInt32), cmd)

	// extreme grid + ess values must not overflow the balancing difference
	cmd = arb.Decide(math.MinInt32, domain.ControlModeSmart, snap(math.MaxInt32, math.MaxInt32, 0), nil)
	require.Equal(charge(math.MaxInt32), cmd)
}

func TestDecideIsIdempotent(t *testing.T) {

	require := require.New(t)

	snapshot := snap(350, -800, 1800)
	for _, mode := range allModes {
		for _, s := range []int32{-4000, -1, 0, 1, 1800, 6000} {
			first := arb.Decide(s, mode, snapshot, p(1200))
			second := arb.Decide(s, mode, snapshot, p(1200))
			require.Equal(first, second)
			require.GreaterOrEqual(first.Magnitude, int32(0))
		}
	}
}

func TestDecideUpdatesWarnings(t *testing.T) {

	require := require.New(t)

	a := NewDispatchArbitrator(zap.NewNop())
	snapshot := snap(0, 0, 0)
	snapshot.IsPidFilterEnabled = true
	snapshot.MeterCommunicateStatus = domain.MeterStatusNotConnected

	cmd := a.Decide(100, domain.ControlModeSmart, snapshot, nil)
	require.Equal(discharge(100), cmd)
	require.Equal(domain.ModeWarnings{SmartModeConflictsWithPidFilter: true, NoSmartMeterDetected: true}, a.Warnings())

	// warnings never influence the command
	snapshot.IsPidFilterEnabled = false
	snapshot.MeterCommunicateStatus = domain.MeterStatusOk
	require.Equal(cmd, a.Decide(100, domain.ControlModeSmart, snapshot, nil))
	require.Equal(domain.ModeWarnings{}, a.Warnings())

	// remote mode does not need a meter
	snapshot.MeterCommunicateStatus = domain.MeterStatusNotConnected
	a.Decide(100, domain.ControlModeRemote, snapshot, nil)
	require.False(a.Warnings().NoSmartMeterDetected)
}

func TestSignedPowerMatchesSetPoint(t *testing.T) {

	require := require.New(t)

	// with no PV the written power equals the requested set-point
	for _, s := range []int32{-2500, -1, 0, 1, 4200} {
		cmd := arb.Decide(s, domain.ControlModeRemote, snap(0, 0, 0), nil)
		require.Equal(s, cmd.SignedPower())
	}
}

func genSnapshot(grid, ess, pv int32) *domain.TelemetrySnapshot {
	return &domain.TelemetrySnapshot{
		GridActivePower:        &grid,
		EssActivePower:         &ess,
		MaxAcImport:            p(10000),
		MaxAcExport:            p(10000),
		PvProduction:           pv,
		MeterCommunicateStatus: domain.MeterStatusOk,
	}
}

func genCommand(mode domain.EmsPowerMode) func(int32) domain.EmsCommand {
	return func(magnitude int32) domain.EmsCommand {
		return domain.EmsCommand{Mode: mode, Magnitude: magnitude}
	}
}

func int32Ptr(v int32) *int32 {
	return &v
}

var arb port.DispatchArbitrator = NewDispatchArbitrator(zap.Must(zap.NewDevelopment()))

var snap = genSnapshot
var charge = genCommand(domain.EmsPowerModeChargeBattery)
var discharge = genCommand(domain.EmsPowerModeDischargeBattery)
var p = int32Ptr
