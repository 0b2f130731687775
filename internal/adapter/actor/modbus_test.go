package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/observability"
	"github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) Open() error {
	return m.Called().Error(0)
}

func (m *mockReader) Close() error {
	return m.Called().Error(0)
}

func (m *mockReader) GetInfo() (*deye_modbus.DeviceInfo, error) {
	args := m.Called()
	info, _ := args.Get(0).(*deye_modbus.DeviceInfo)
	return info, args.Error(1)
}

func (m *mockReader) GetTelemetry() (*deye_modbus.Telemetry, error) {
	args := m.Called()
	t, _ := args.Get(0).(*deye_modbus.Telemetry)
	return t, args.Error(1)
}

func (m *mockReader) SetEmsPower(mode uint16, magnitude uint16) error {
	return m.Called(mode, magnitude).Error(0)
}

func (m *mockReader) SetWorkState(state uint16) error {
	return m.Called(state).Error(0)
}

func (m *mockReader) SetPvPowerLimit(watts uint16) error {
	return m.Called(watts).Error(0)
}

func spawnModbusActor(t *testing.T, reader deye_modbus.DeyeModbusReader) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	metrics := observability.NewMetrics()
	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(reader, metrics, logger) })
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func TestGetDevicesInfoModbusActor(t *testing.T) {
	assert := assert.New(t)

	inv := deye_modbus.NewTestDeyeModbusReader()
	as, pid := spawnModbusActor(t, inv)

	result, err := as.Root.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetDevicesInfoResponse)

	assert.False(resp.HasResponseError())
	assert.Equal("Deye", resp.Inverter.Manufacturer)
	assert.Equal("SUN-6K-SG03LP1", resp.Inverter.Model)
	assert.Equal(int32(6000), resp.Inverter.MaxApparentPowerWatt)
}

func TestGetTelemetryModbusActor(t *testing.T) {
	assert := assert.New(t)

	inv := deye_modbus.NewTestDeyeModbusReader()
	as, pid := spawnModbusActor(t, inv)

	result, err := as.Root.RequestFuture(pid, domain.GetTelemetryRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetTelemetryResponse)

	assert.False(resp.HasResponseError())
	require.NotNil(t, resp.Telemetry)
	assert.Equal(int32(350), *resp.Telemetry.GridActivePowerWatt)
	assert.Len(resp.Telemetry.PvStrings, 2)
}

func TestWriteEmsCommandModbusActor(t *testing.T) {
	assert := assert.New(t)

	inv := deye_modbus.NewTestDeyeModbusReader()
	as, pid := spawnModbusActor(t, inv)

	commands := []domain.EmsCommand{
		{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 1500},
		{Mode: domain.EmsPowerModeDischargeBattery, Magnitude: 700},
		domain.EmsCommandAuto,
	}
	for _, cmd := range commands {
		result, err := as.Root.RequestFuture(pid, domain.WriteEmsCommandRequest{Command: cmd}, 5*time.Second).Result()
		require.NoError(t, err)
		resp := result.(domain.WriteEmsCommandResponse)
		assert.False(resp.HasResponseError())
		assert.Equal(cmd, resp.Command)
	}

	assert.Equal([][2]uint16{
		{deye_modbus.EMS_MODE_CHARGE_BAT, 1500},
		{deye_modbus.EMS_MODE_DISCHARGE_BAT, 700},
		{deye_modbus.EMS_MODE_AUTO, 0},
	}, inv.EmsWrites())
}

func TestSetWorkStateModbusActor(t *testing.T) {
	inv := deye_modbus.NewTestDeyeModbusReader()
	as, pid := spawnModbusActor(t, inv)

	result, err := as.Root.RequestFuture(pid, domain.SetWorkStateRequest{State: deye_modbus.WORK_STATE_START}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetWorkStateResponse)

	assert.False(t, resp.HasResponseError())
	assert.Equal(t, []uint16{deye_modbus.WORK_STATE_START}, inv.WorkStates())
}

func TestSetPvPowerLimitModbusActor(t *testing.T) {
	assert := assert.New(t)

	inv := deye_modbus.NewTestDeyeModbusReader()
	as, pid := spawnModbusActor(t, inv)

	result, err := as.Root.RequestFuture(pid, domain.SetPvPowerLimitRequest{Limit: 2500}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetPvPowerLimitResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(int32(2500), resp.Limit)
	assert.Equal([]uint16{2500}, inv.PvPowerLimits())
}

func TestModbusActorReportsUnmappedPvPowerLimit(t *testing.T) {
	assert := assert.New(t)

	reader := &mockReader{}
	reader.On("Open").Return(nil)
	reader.On("Close").Return(nil).Maybe()
	reader.On("SetPvPowerLimit", uint16(2500)).Return(deye_modbus.ErrRegisterNotMapped)

	as, pid := spawnModbusActor(t, reader)

	result, err := as.Root.RequestFuture(pid, domain.SetPvPowerLimitRequest{Limit: 2500}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetPvPowerLimitResponse)
	assert.True(resp.HasResponseError())
	assert.ErrorIs(resp.GetResponseError(), deye_modbus.ErrRegisterNotMapped)

	reader.AssertExpectations(t)
}

func TestModbusActorReportsReaderErrors(t *testing.T) {
	assert := assert.New(t)

	reader := &mockReader{}
	reader.On("Open").Return(nil)
	reader.On("Close").Return(nil).Maybe()
	reader.On("GetTelemetry").Return(nil, errors.New("timeout"))
	reader.On("SetEmsPower", deye_modbus.EMS_MODE_CHARGE_BAT, uint16(200)).Return(errors.New("illegal data value"))

	as, pid := spawnModbusActor(t, reader)

	result, err := as.Root.RequestFuture(pid, domain.GetTelemetryRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	telemetry := result.(domain.GetTelemetryResponse)
	assert.True(telemetry.HasResponseError())
	assert.Nil(telemetry.Telemetry)

	cmd := domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 200}
	result, err = as.Root.RequestFuture(pid, domain.WriteEmsCommandRequest{Command: cmd}, 5*time.Second).Result()
	require.NoError(t, err)
	write := result.(domain.WriteEmsCommandResponse)
	assert.True(write.HasResponseError())
	assert.ErrorContains(write.GetResponseError(), "illegal data value")
	assert.Equal(cmd, write.Command)

	reader.AssertExpectations(t)
}

func TestEmsCommandToRegisters(t *testing.T) {
	cases := []struct {
		cmd       domain.EmsCommand
		mode      uint16
		magnitude uint16
	}{
		{domain.EmsCommandAuto, deye_modbus.EMS_MODE_AUTO, 0},
		{domain.EmsCommand{Mode: domain.EmsPowerModeAuto, Magnitude: 50}, deye_modbus.EMS_MODE_AUTO, 0},
		{domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: 3000}, deye_modbus.EMS_MODE_CHARGE_BAT, 3000},
		{domain.EmsCommand{Mode: domain.EmsPowerModeDischargeBattery, Magnitude: 100000}, deye_modbus.EMS_MODE_DISCHARGE_BAT, 65535},
		{domain.EmsCommand{Mode: domain.EmsPowerModeChargeBattery, Magnitude: -5}, deye_modbus.EMS_MODE_CHARGE_BAT, 0},
	}
	for _, c := range cases {
		mode, magnitude := EmsCommandToRegisters(c.cmd)
		assert.Equal(t, c.mode, mode)
		assert.Equal(t, c.magnitude, magnitude)
	}
}
