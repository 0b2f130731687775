package domain

type MeterCommunicateStatus int

const (
	MeterStatusUndefined MeterCommunicateStatus = iota
	MeterStatusOk
	MeterStatusNotConnected
)

func (s MeterCommunicateStatus) String() string {
	switch s {
	case MeterStatusOk:
		return "ok"
	case MeterStatusNotConnected:
		return "not_connected"
	default:
		return "undefined"
	}
}

// TelemetrySnapshot is captured once per control cycle and never mutated
// afterwards. Nil pointers are values the device did not report.
type TelemetrySnapshot struct {
	GridActivePower        *int32
	EssActivePower         *int32
	MaxAcImport            *int32
	MaxAcExport            *int32
	PvProduction           int32
	BmsChargeMaxCurrent    *int32
	BmsDischargeMaxCurrent *int32
	BusVoltage             *int32
	MeterCommunicateStatus MeterCommunicateStatus
	IsPidFilterEnabled     bool

	// inverter reports power reduction caused by overtemperature
	OvertemperatureDerating bool
}

// PvStringReading is one charger (MPPT string) power reading.
type PvStringReading struct {
	Id          string
	ActualPower *int32
}

// DiagnosticFlags holds one entry per condition of a decoding table.
type DiagnosticFlags map[string]bool
