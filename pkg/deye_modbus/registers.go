package deye_modbus

// RegisterMap holds the holding-register addresses used by the reader.
// Multi-word values are read high word first. Address 0 leaves an optional
// register unmapped.
type RegisterMap struct {
	MaxApparentPower       uint16   `mapstructure:"max_apparent_power"`
	SerialNumber           uint16   `mapstructure:"serial_number"`
	ModelName              uint16   `mapstructure:"model_name"`
	FirmwareVersion        uint16   `mapstructure:"firmware_version"`
	PvPower                []uint16 `mapstructure:"pv_power"`
	EssActivePower         uint16   `mapstructure:"ess_active_power"`
	BusVoltage             uint16   `mapstructure:"bus_voltage"`
	RunState               uint16   `mapstructure:"run_state"`
	DiagStatusH            uint16   `mapstructure:"diag_status_h"`
	DiagStatusL            uint16   `mapstructure:"diag_status_l"`
	MeterCommunicateStatus uint16   `mapstructure:"meter_communicate_status"`
	GridActivePower        uint16   `mapstructure:"grid_active_power"`
	BmsStatus              uint16   `mapstructure:"bms_status"`
	BmsChargeMaxCurrent    uint16   `mapstructure:"bms_charge_max_current"`
	BmsDischargeMaxCurrent uint16   `mapstructure:"bms_discharge_max_current"`
	BatterySoc             uint16   `mapstructure:"battery_soc"`
	SetWorkState           uint16   `mapstructure:"set_work_state"`
	EmsPowerMode           uint16   `mapstructure:"ems_power_mode"`

	// optional, not present on every firmware
	OvertemperatureDerating uint16 `mapstructure:"overtemperature_derating"`
	PvPowerLimit            uint16 `mapstructure:"pv_power_limit"`
}

const (
	serialNumberLength = 8
	modelNameLength    = 5
)

// EMS power mode register values
const (
	EMS_MODE_AUTO          uint16 = 1
	EMS_MODE_CHARGE_PV     uint16 = 2
	EMS_MODE_DISCHARGE_PV  uint16 = 3
	EMS_MODE_IMPORT_AC     uint16 = 4
	EMS_MODE_EXPORT_AC     uint16 = 5
	EMS_MODE_CONSERVE      uint16 = 6
	EMS_MODE_OFF_GRID      uint16 = 7
	EMS_MODE_BATT_STANDBY  uint16 = 8
	EMS_MODE_BUY_POWER     uint16 = 9
	EMS_MODE_SELL_POWER    uint16 = 10
	EMS_MODE_CHARGE_BAT    uint16 = 11
	EMS_MODE_DISCHARGE_BAT uint16 = 12
	EMS_MODE_STOPPED       uint16 = 255
)

// work state commands
const (
	WORK_STATE_LOCAL_CONTROL uint16 = 0
	WORK_STATE_STOP          uint16 = 4
	WORK_STATE_STANDBY       uint16 = 32
	WORK_STATE_START         uint16 = 64
)

// meter communication status values
const (
	METER_STATUS_NG uint16 = 0
	METER_STATUS_OK uint16 = 1
)

func DefaultRegisterMap() RegisterMap {
	return RegisterMap{
		MaxApparentPower:       35001,
		SerialNumber:           35003,
		ModelName:              35011,
		FirmwareVersion:        35016,
		PvPower:                []uint16{35105, 35109, 35113, 35117},
		EssActivePower:         35139,
		BusVoltage:             35178,
		RunState:               35187,
		DiagStatusH:            35188,
		DiagStatusL:            35190,
		MeterCommunicateStatus: 36004,
		GridActivePower:        36025,
		BmsStatus:              37002,
		BmsChargeMaxCurrent:    37004,
		BmsDischargeMaxCurrent: 37005,
		BatterySoc:             37007,
		SetWorkState:           0x0500,
		EmsPowerMode:           47511,
	}
}

func EmsModeToString(mode uint16) string {
	switch mode {
	case EMS_MODE_AUTO:
		return "auto"
	case EMS_MODE_CHARGE_PV:
		return "charge_pv"
	case EMS_MODE_DISCHARGE_PV:
		return "discharge_pv"
	case EMS_MODE_IMPORT_AC:
		return "import_ac"
	case EMS_MODE_EXPORT_AC:
		return "export_ac"
	case EMS_MODE_CONSERVE:
		return "conserve"
	case EMS_MODE_OFF_GRID:
		return "off_grid"
	case EMS_MODE_BATT_STANDBY:
		return "battery_standby"
	case EMS_MODE_BUY_POWER:
		return "buy_power"
	case EMS_MODE_SELL_POWER:
		return "sell_power"
	case EMS_MODE_CHARGE_BAT:
		return "charge_battery"
	case EMS_MODE_DISCHARGE_BAT:
		return "discharge_battery"
	case EMS_MODE_STOPPED:
		return "stopped"
	default:
		return "unknown"
	}
}
