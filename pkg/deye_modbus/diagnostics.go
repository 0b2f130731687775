package deye_modbus

// DiagnosticBit maps one bit-mask of a status word to a condition id.
type DiagnosticBit struct {
	Mask uint32
	Id   string
}

const (
	DIAG_PRECHARGE_RELAY_OFF        = "precharge_relay_off"
	DIAG_BYPASS_RELAY_STICK         = "bypass_relay_stick"
	DIAG_METER_VOLTAGE_SAMPLE_FAULT = "meter_voltage_sample_fault"
	DIAG_EXTERNAL_STOP_MODE_ENABLE  = "external_stop_mode_enable"
	DIAG_OFFGRID_DOD                = "offgrid_dod"
	DIAG_SOC_ADJUST_ENABLE          = "soc_adjust_enable"
)

// DiagStatusHTable decodes DIAG_STATUS_H.
var DiagStatusHTable = []DiagnosticBit{
	{Mask: 0x00000001, Id: DIAG_PRECHARGE_RELAY_OFF},
	{Mask: 0x00000002, Id: DIAG_BYPASS_RELAY_STICK},
	{Mask: 0x10000000, Id: DIAG_METER_VOLTAGE_SAMPLE_FAULT},
	{Mask: 0x20000000, Id: DIAG_EXTERNAL_STOP_MODE_ENABLE},
	{Mask: 0x40000000, Id: DIAG_OFFGRID_DOD},
	{Mask: 0x80000000, Id: DIAG_SOC_ADJUST_ENABLE},
}

// DiagStatusLTable decodes DIAG_STATUS_L.
var DiagStatusLTable = []DiagnosticBit{
	{Mask: 1 << 0, Id: "battery_volt_low"},
	{Mask: 1 << 1, Id: "battery_soc_low"},
	{Mask: 1 << 2, Id: "battery_soc_in_back"},
	{Mask: 1 << 3, Id: "bms_discharge_disable"},
	{Mask: 1 << 4, Id: "discharge_time_on"},
	{Mask: 1 << 5, Id: "charge_time_on"},
	{Mask: 1 << 6, Id: "discharge_drive_on"},
	{Mask: 1 << 7, Id: "bms_discharge_current_low"},
	{Mask: 1 << 8, Id: "discharge_current_low"},
	{Mask: 1 << 9, Id: "meter_comm_loss"},
	{Mask: 1 << 10, Id: "meter_connect_reverse"},
	{Mask: 1 << 11, Id: "self_use_load_light"},
	{Mask: 1 << 12, Id: "ems_discharge_izero"},
	{Mask: 1 << 13, Id: "discharge_bus_high"},
	{Mask: 1 << 14, Id: "battery_disconnect"},
	{Mask: 1 << 15, Id: "battery_overcharge"},
}

// BmsStatusTable decodes the BMS status word. Bit 11 is reserved.
var BmsStatusTable = []DiagnosticBit{
	{Mask: 1 << 0, Id: "bms_over_temperature"},
	{Mask: 1 << 1, Id: "bms_overcharge"},
	{Mask: 1 << 2, Id: "bms_charge_disable"},
	{Mask: 1 << 3, Id: "self_use_off"},
	{Mask: 1 << 4, Id: "soc_delta_over_range"},
	{Mask: 1 << 5, Id: "battery_self_discharge"},
	{Mask: 1 << 6, Id: "offgrid_soc_low"},
	{Mask: 1 << 7, Id: "grid_wave_unstable"},
	{Mask: 1 << 8, Id: "feed_power_limit"},
	{Mask: 1 << 9, Id: "pf_value_set"},
	{Mask: 1 << 10, Id: "real_power_limit"},
	{Mask: 1 << 12, Id: "soc_protect_off"},
}
