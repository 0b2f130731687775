package deye_modbus

import "sync"

func CreateTestDeyeModbusReader() (*TestDeyeModbusReader, error) {
	return NewTestDeyeModbusReader(), nil
}

// TestDeyeModbusReader is an in-memory reader that records writes.
type TestDeyeModbusReader struct {
	mu         sync.Mutex
	telemetry  Telemetry
	emsWrites  [][2]uint16
	workStates []uint16
	pvLimits   []uint16
	WriteError error
}

func NewTestDeyeModbusReader() *TestDeyeModbusReader {
	return &TestDeyeModbusReader{
		telemetry: Telemetry{
			GridActivePowerWatt: int32Ptr(350),
			EssActivePowerWatt:  int32Ptr(-800),
			PvStrings: []PvString{
				{Index: 1, PowerWatt: int32Ptr(1200)},
				{Index: 2, PowerWatt: int32Ptr(600)},
			},
			BmsChargeMaxCurrent:    int32Ptr(50),
			BmsDischargeMaxCurrent: int32Ptr(50),
			BusVoltage:             int32Ptr(52),
			MeterCommunicateStatus: int32Ptr(int32(METER_STATUS_OK)),
			RunState:               int32Ptr(2),
			BatterySoc:             int32Ptr(64),
			DiagStatusH:            uint32Ptr(0xC0000001),
			DiagStatusL:            uint32Ptr(0),
			BmsStatus:              uint32Ptr(0),
		},
	}
}

func (inv *TestDeyeModbusReader) Open() error {
	return nil
}

func (inv *TestDeyeModbusReader) Close() error {
	return nil
}

func (inv *TestDeyeModbusReader) GetInfo() (*DeviceInfo, error) {
	return &DeviceInfo{
		Manufacturer:         "Deye",
		Model:                "SUN-6K-SG03LP1",
		Serial:               "2209181234",
		Version:              "1170",
		MaxApparentPowerWatt: 6000,
		PvStrings:            2,
	}, nil
}

func (inv *TestDeyeModbusReader) GetTelemetry() (*Telemetry, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	t := inv.telemetry
	t.PvStrings = append([]PvString(nil), inv.telemetry.PvStrings...)
	return &t, nil
}

func (inv *TestDeyeModbusReader) SetTelemetry(t Telemetry) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.telemetry = t
}

func (inv *TestDeyeModbusReader) SetEmsPower(mode uint16, magnitude uint16) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.WriteError != nil {
		return inv.WriteError
	}
	inv.emsWrites = append(inv.emsWrites, [2]uint16{mode, magnitude})
	return nil
}

func (inv *TestDeyeModbusReader) SetWorkState(state uint16) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.WriteError != nil {
		return inv.WriteError
	}
	inv.workStates = append(inv.workStates, state)
	return nil
}

func (inv *TestDeyeModbusReader) SetPvPowerLimit(watts uint16) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.WriteError != nil {
		return inv.WriteError
	}
	inv.pvLimits = append(inv.pvLimits, watts)
	return nil
}

func (inv *TestDeyeModbusReader) EmsWrites() [][2]uint16 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([][2]uint16(nil), inv.emsWrites...)
}

func (inv *TestDeyeModbusReader) WorkStates() []uint16 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]uint16(nil), inv.workStates...)
}

func (inv *TestDeyeModbusReader) PvPowerLimits() []uint16 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([]uint16(nil), inv.pvLimits...)
}

func int32Ptr(v int32) *int32 {
	return &v
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

var _ DeyeModbusReader = (*TestDeyeModbusReader)(nil)
