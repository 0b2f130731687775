package deye_modbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type ReaderConfig struct {
	URL       string
	Speed     uint
	UnitId    uint8
	Timeout   time.Duration
	Registers RegisterMap
}

type DeyeHybridModbusReader struct {
	ModbusClient

	cfg    *modbus.ClientConfiguration
	unitId uint8
	regs   RegisterMap
	logger *zap.Logger
}

func CreateDeyeModbusReader(cfg ReaderConfig, logger *zap.Logger, instrumentation *ModbusInstrument) (DeyeModbusReader, error) {
	clientCfg := &modbus.ClientConfiguration{
		URL:     cfg.URL,
		Timeout: cfg.Timeout,
	}
	if strings.HasPrefix(cfg.URL, "rtu://") {
		clientCfg.Speed = cfg.Speed
		clientCfg.DataBits = 8
		clientCfg.Parity = modbus.PARITY_NONE
		clientCfg.StopBits = 1
	}
	client, err := modbus.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "inverter"), zap.Uint8("unit", cfg.UnitId)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	// set unit id
	if cfg.UnitId > 0 {
		err = client.SetUnitId(cfg.UnitId)
		if err != nil {
			return nil, err
		}
	}

	return &DeyeHybridModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		cfg:    clientCfg,
		unitId: cfg.UnitId,
		regs:   cfg.Registers,
		logger: logger,
	}, nil
}

func (inv *DeyeHybridModbusReader) Open() error {
	return inv.client.Open()
}

func (inv *DeyeHybridModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *DeyeHybridModbusReader) GetInfo() (*DeviceInfo, error) {
	serial, err := inv.readString(inv.regs.SerialNumber, serialNumberLength)
	if err != nil {
		return nil, fmt.Errorf("read serial: %w", err)
	}
	model, err := inv.readString(inv.regs.ModelName, modelNameLength)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	version, err := inv.readRegister(inv.regs.FirmwareVersion)
	if err != nil {
		return nil, fmt.Errorf("read firmware version: %w", err)
	}
	maxPower, err := inv.readRegister(inv.regs.MaxApparentPower)
	if err != nil {
		return nil, fmt.Errorf("read max apparent power: %w", err)
	}
	return &DeviceInfo{
		Manufacturer:         "Deye",
		Model:                model,
		Serial:               serial,
		Version:              fmt.Sprintf("%d", version),
		MaxApparentPowerWatt: int32(maxPower),
		PvStrings:            len(inv.regs.PvPower),
	}, nil
}

func (inv *DeyeHybridModbusReader) GetTelemetry() (*Telemetry, error) {
	var t Telemetry
	var err error

	if t.GridActivePowerWatt, err = inv.readOptionalInt32(inv.regs.GridActivePower); err != nil {
		return nil, fmt.Errorf("read grid active power: %w", err)
	}
	if t.EssActivePowerWatt, err = inv.readOptionalInt32(inv.regs.EssActivePower); err != nil {
		return nil, fmt.Errorf("read ess active power: %w", err)
	}
	t.PvStrings = make([]PvString, 0, len(inv.regs.PvPower))
	for i, addr := range inv.regs.PvPower {
		power, err := inv.readOptionalInt32(addr)
		if err != nil {
			return nil, fmt.Errorf("read pv%d power: %w", i+1, err)
		}
		t.PvStrings = append(t.PvStrings, PvString{Index: i + 1, PowerWatt: power})
	}
	if t.BmsChargeMaxCurrent, err = inv.readOptionalUint16(inv.regs.BmsChargeMaxCurrent); err != nil {
		return nil, fmt.Errorf("read bms charge max current: %w", err)
	}
	if t.BmsDischargeMaxCurrent, err = inv.readOptionalUint16(inv.regs.BmsDischargeMaxCurrent); err != nil {
		return nil, fmt.Errorf("read bms discharge max current: %w", err)
	}
	busVoltage, err := inv.readOptionalUint16(inv.regs.BusVoltage)
	if err != nil {
		return nil, fmt.Errorf("read bus voltage: %w", err)
	}
	t.BusVoltage = applyScale(busVoltage, -1)
	if t.MeterCommunicateStatus, err = inv.readOptionalUint16(inv.regs.MeterCommunicateStatus); err != nil {
		return nil, fmt.Errorf("read meter status: %w", err)
	}
	if t.RunState, err = inv.readOptionalInt16(inv.regs.RunState); err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	if t.BatterySoc, err = inv.readOptionalUint16(inv.regs.BatterySoc); err != nil {
		return nil, fmt.Errorf("read battery soc: %w", err)
	}
	if t.DiagStatusH, err = inv.readOptionalUint32(inv.regs.DiagStatusH); err != nil {
		return nil, fmt.Errorf("read diag status h: %w", err)
	}
	if t.DiagStatusL, err = inv.readOptionalUint32(inv.regs.DiagStatusL); err != nil {
		return nil, fmt.Errorf("read diag status l: %w", err)
	}
	if t.BmsStatus, err = inv.readOptionalUint32(inv.regs.BmsStatus); err != nil {
		return nil, fmt.Errorf("read bms status: %w", err)
	}
	if inv.regs.OvertemperatureDerating != 0 {
		if t.OvertemperatureDerating, err = inv.readOptionalUint16(inv.regs.OvertemperatureDerating); err != nil {
			return nil, fmt.Errorf("read overtemperature derating: %w", err)
		}
	}
	return &t, nil
}

// SetEmsPower writes mode and magnitude in a single FC16 request.
func (inv *DeyeHybridModbusReader) SetEmsPower(mode uint16, magnitude uint16) error {
	return inv.writeRegisters(inv.regs.EmsPowerMode, []uint16{mode, magnitude})
}

func (inv *DeyeHybridModbusReader) SetWorkState(state uint16) error {
	return inv.writeRegister(inv.regs.SetWorkState, state)
}

// SetPvPowerLimit caps the power drawn from the PV chargers.
func (inv *DeyeHybridModbusReader) SetPvPowerLimit(watts uint16) error {
	if inv.regs.PvPowerLimit == 0 {
		return fmt.Errorf("%w: pv_power_limit", ErrRegisterNotMapped)
	}
	return inv.writeRegister(inv.regs.PvPowerLimit, watts)
}

var _ DeyeModbusReader = (*DeyeHybridModbusReader)(nil)
