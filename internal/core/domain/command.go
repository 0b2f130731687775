package domain

import "fmt"

// DispatchControlRequest

type DispatchControlRequest interface {
	ActorRequest
	DispatchControlCommand() string
}

type DispatchControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r DispatchControlRequestMixIn) DispatchControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// DispatchControl commands

type SetActivePowerSetPointRequest struct {
	DispatchControlRequestMixIn
	SetPoint int32
}

// SetSurplusPowerRequest carries the surplus feed-in target. A nil value
// clears it.
type SetSurplusPowerRequest struct {
	DispatchControlRequestMixIn
	SurplusPower *int32
}

type SetReadOnlyModeRequest struct {
	DispatchControlRequestMixIn
	Enable bool
}

type GetDispatchStateRequest struct {
	DispatchControlRequestMixIn
}

type GetDispatchStateResponse struct {
	ActorResponseMixIn
	SetPoint     *int32
	SurplusPower *int32
	ReadOnly     bool
	LastCommand  *EmsCommand
	Envelope     *AllowedEnvelope
	Warnings     ModeWarnings
}

// ensure interface compliance
var _ DispatchControlRequest = (*SetActivePowerSetPointRequest)(nil)
var _ DispatchControlRequest = (*SetSurplusPowerRequest)(nil)
var _ DispatchControlRequest = (*SetReadOnlyModeRequest)(nil)
var _ DispatchControlRequest = (*GetDispatchStateRequest)(nil)
