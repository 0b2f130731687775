package main

import (
	"testing"

	"github.com/berfenger/deye2mqtt/internal/config"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadRegisterMapDefaults(t *testing.T) {

	require := require.New(t)

	regs, err := loadRegisterMap(viper.New())
	require.NoError(err)
	require.Equal(deye_modbus.DefaultRegisterMap(), regs)
}

func TestLoadRegisterMapOverrides(t *testing.T) {

	require := require.New(t)

	v := viper.New()
	v.Set("inverter_modbus.registers.bus_voltage", 1234)
	v.Set("inverter_modbus.registers.overtemperature_derating", 0xA101)
	v.Set("inverter_modbus.registers.pv_power_limit", 0xA102)
	v.Set("inverter_modbus.registers.pv_power", []int{35105, 35109})

	regs, err := loadRegisterMap(v)
	require.NoError(err)
	require.Equal(uint16(1234), regs.BusVoltage)
	require.Equal(uint16(0xA101), regs.OvertemperatureDerating)
	require.Equal(uint16(0xA102), regs.PvPowerLimit)
	require.Equal([]uint16{35105, 35109}, regs.PvPower)

	// untouched keys keep the default address
	defaults := deye_modbus.DefaultRegisterMap()
	require.Equal(defaults.EmsPowerMode, regs.EmsPowerMode)
	require.Equal(defaults.GridActivePower, regs.GridActivePower)
}

func TestLoadRegisterMapRejectsEmptyPvList(t *testing.T) {

	require := require.New(t)

	v := viper.New()
	v.Set("inverter_modbus.registers.pv_power", []int{})

	_, err := loadRegisterMap(v)
	require.ErrorIs(err, config.ErrInvalidConfig)
}
