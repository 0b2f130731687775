package domain

import "github.com/berfenger/deye2mqtt/pkg/deye_modbus"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_TELEMETRY    = "telemetry"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_DISPATCH     = "dispatch"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	Inverter *deye_modbus.DeviceInfo
}

type GetTelemetryRequest struct {
	ActorRequestMixIn
}

type GetTelemetryResponse struct {
	ActorResponseMixIn
	Telemetry *deye_modbus.Telemetry
}

type WriteEmsCommandRequest struct {
	ActorRequestMixIn
	Command EmsCommand
}

type WriteEmsCommandResponse struct {
	ActorResponseMixIn
	Command EmsCommand
}

type SetWorkStateRequest struct {
	ActorRequestMixIn
	State uint16
}

type SetWorkStateResponse struct {
	ActorResponseMixIn
}

type SetPvPowerLimitRequest struct {
	ActorRequestMixIn
	Limit int32
}

type SetPvPowerLimitResponse struct {
	ActorResponseMixIn
	Limit int32
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
