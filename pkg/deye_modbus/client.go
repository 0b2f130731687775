package deye_modbus

import (
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

var (
	ErrNotOpen           = errors.New("deye_modbus: client not open")
	ErrRegisterNotMapped = errors.New("deye_modbus: register not mapped")
)

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		bytes = bytes[:f]
	}
	return strings.TrimSpace(string(bytes)), nil
}

func (reader ModbusClient) readRegister(addr uint16) (uint16, error) {
	if reader.client == nil {
		return 0, ErrNotOpen
	}
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (reader ModbusClient) readUint32(addr uint16) (uint32, error) {
	if reader.client == nil {
		return 0, ErrNotOpen
	}
	defer RecordTimer("ReadUint32", reader.instrument)()
	return reader.client.ReadUint32(addr, modbus.HOLDING_REGISTER)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	if reader.client == nil {
		return nil, ErrNotOpen
	}
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

func (reader ModbusClient) writeRegister(addr uint16, value uint16) error {
	if reader.client == nil {
		return ErrNotOpen
	}
	defer RecordTimer("WriteRegister", reader.instrument)()
	return reader.client.WriteRegister(addr, value)
}

func (reader ModbusClient) writeRegisters(addr uint16, values []uint16) error {
	if reader.client == nil {
		return ErrNotOpen
	}
	defer RecordTimer("WriteRegisters", reader.instrument)()
	return reader.client.WriteRegisters(addr, values)
}

// optional readers map the device "not available" markers to nil

func (reader ModbusClient) readOptionalUint16(addr uint16) (*int32, error) {
	value, err := reader.readRegister(addr)
	if err != nil {
		return nil, err
	}
	if value == math.MaxUint16 {
		return nil, nil
	}
	v := int32(value)
	return &v, nil
}

func (reader ModbusClient) readOptionalInt16(addr uint16) (*int32, error) {
	value, err := reader.readRegister(addr)
	if err != nil {
		return nil, err
	}
	if value == math.MaxInt16 {
		return nil, nil
	}
	v := int32(int16(value))
	return &v, nil
}

func (reader ModbusClient) readOptionalInt32(addr uint16) (*int32, error) {
	value, err := reader.readUint32(addr)
	if err != nil {
		return nil, err
	}
	if value == math.MaxInt32 {
		return nil, nil
	}
	v := int32(value)
	return &v, nil
}

func (reader ModbusClient) readOptionalUint32(addr uint16) (*uint32, error) {
	value, err := reader.readUint32(addr)
	if err != nil {
		return nil, err
	}
	if value == math.MaxUint32 {
		return nil, nil
	}
	return &value, nil
}

func applyScale(value *int32, sf int) *int32 {
	if value == nil {
		return nil
	}
	scaled := int32(math.Round(float64(*value) * math.Pow(10, float64(sf))))
	return &scaled
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			if instrument[i].RecordTime != nil {
				instrument[i].RecordTime(name, duration)
			}
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if logger == nil {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
