package deye_modbus

type DeviceInfo struct {
	Manufacturer         string
	Model                string
	Serial               string
	Version              string
	MaxApparentPowerWatt int32
	PvStrings            int
}

type PvString struct {
	Index     int
	PowerWatt *int32
}

// Telemetry is one atomic capture of the live registers. Fields are nil
// when the device reports them as not available.
type Telemetry struct {
	GridActivePowerWatt    *int32
	EssActivePowerWatt     *int32
	PvStrings              []PvString
	BmsChargeMaxCurrent    *int32
	BmsDischargeMaxCurrent *int32
	BusVoltage             *int32
	MeterCommunicateStatus *int32
	RunState               *int32
	BatterySoc             *int32
	DiagStatusH            *uint32
	DiagStatusL            *uint32
	BmsStatus              *uint32

	// non-zero while the inverter reduces power because of overtemperature
	OvertemperatureDerating *int32
}

type DeyeModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*DeviceInfo, error)
	GetTelemetry() (*Telemetry, error)
	SetEmsPower(mode uint16, magnitude uint16) error
	SetWorkState(state uint16) error
	SetPvPowerLimit(watts uint16) error
}

func RunStateToString(state int32) string {
	switch state {
	case 0:
		return "standby"
	case 1:
		return "self_check"
	case 2:
		return "normal"
	case 3:
		return "alarm"
	case 4:
		return "fault"
	case 5:
		return "activating"
	default:
		return "undefined"
	}
}
