package actor

import (
	"fmt"
	"math"
	"time"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/observability"
	"github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	MODBUS_TASK_TIMEOUT = 2 * time.Second
)

type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	inverter deye_modbus.DeyeModbusReader
	metrics  *observability.Metrics
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(inverter deye_modbus.DeyeModbusReader, metrics *observability.Metrics, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		inverter: inverter,
		metrics:  metrics,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.inverter.Open(); err != nil {
			state.logger.Error("modbus@starting open error", zap.Error(err))
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default: GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		runModbusTask(ctx, sender, state.getDevicesInfo, func(err error) domain.GetDevicesInfoResponse {
			state.metrics.ModbusError("GetDevicesInfoRequest")
			return domain.GetDevicesInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetTelemetryRequest:
		state.logger.Debug("modbus@default: GetTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		runModbusTask(ctx, sender, state.getTelemetry, func(err error) domain.GetTelemetryResponse {
			state.metrics.ModbusError("GetTelemetryRequest")
			return domain.GetTelemetryResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.WriteEmsCommandRequest:
		state.logger.Debug("modbus@default: WriteEmsCommandRequest", zap.Stringer("mode", msg.Command.Mode), zap.Int32("magnitude", msg.Command.Magnitude))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		cmd := msg.Command
		runModbusTask(ctx, sender, func() (*domain.WriteEmsCommandResponse, error) {
			return state.writeEmsCommand(cmd)
		}, func(err error) domain.WriteEmsCommandResponse {
			state.metrics.ModbusError("WriteEmsCommandRequest")
			return domain.WriteEmsCommandResponse{ActorResponseMixIn: domain.ErrorResponse(err), Command: cmd}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetWorkStateRequest:
		state.logger.Debug("modbus@default: SetWorkStateRequest", zap.Uint16("state", msg.State))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		workState := msg.State
		runModbusTask(ctx, sender, func() (*domain.SetWorkStateResponse, error) {
			if err := state.inverter.SetWorkState(workState); err != nil {
				return nil, fmt.Errorf("set work state: %w", err)
			}
			return &domain.SetWorkStateResponse{}, nil
		}, func(err error) domain.SetWorkStateResponse {
			state.metrics.ModbusError("SetWorkStateRequest")
			return domain.SetWorkStateResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetPvPowerLimitRequest:
		state.logger.Debug("modbus@default: SetPvPowerLimitRequest", zap.Int32("limit", msg.Limit))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		limit := msg.Limit
		runModbusTask(ctx, sender, func() (*domain.SetPvPowerLimitResponse, error) {
			watts := uint16(max(0, min(int64(limit), math.MaxUint16)))
			if err := state.inverter.SetPvPowerLimit(watts); err != nil {
				return nil, fmt.Errorf("set pv power limit: %w", err)
			}
			return &domain.SetPvPowerLimitResponse{Limit: limit}, nil
		}, func(err error) domain.SetPvPowerLimitResponse {
			state.metrics.ModbusError("SetPvPowerLimitRequest")
			return domain.SetPvPowerLimitResponse{ActorResponseMixIn: domain.ErrorResponse(err), Limit: limit}
		})
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.inverter.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) getDevicesInfo() (*domain.GetDevicesInfoResponse, error) {
	info, err := a.inverter.GetInfo()
	if err != nil {
		a.logger.Error("modbus@task GetInfo error", zap.Error(err))
		return nil, err
	}
	return &domain.GetDevicesInfoResponse{
		Inverter: info,
	}, nil
}

func (a *ModbusActor) getTelemetry() (*domain.GetTelemetryResponse, error) {
	telemetry, err := a.inverter.GetTelemetry()
	if err != nil {
		a.logger.Error("modbus@task GetTelemetry error", zap.Error(err))
		return nil, err
	}
	return &domain.GetTelemetryResponse{
		Telemetry: telemetry,
	}, nil
}

func (a *ModbusActor) writeEmsCommand(cmd domain.EmsCommand) (*domain.WriteEmsCommandResponse, error) {
	mode, magnitude := EmsCommandToRegisters(cmd)
	if err := a.inverter.SetEmsPower(mode, magnitude); err != nil {
		a.logger.Error("modbus@task SetEmsPower error", zap.Error(err))
		return nil, fmt.Errorf("write ems command %s: %w", cmd.Mode, err)
	}
	return &domain.WriteEmsCommandResponse{
		Command: cmd,
	}, nil
}

// EmsCommandToRegisters encodes a command as (EMS_POWER_MODE, EMS_POWER_SET).
func EmsCommandToRegisters(cmd domain.EmsCommand) (uint16, uint16) {
	magnitude := uint16(max(0, min(int64(cmd.Magnitude), math.MaxUint16)))
	switch cmd.Mode {
	case domain.EmsPowerModeChargeBattery:
		return deye_modbus.EMS_MODE_CHARGE_BAT, magnitude
	case domain.EmsPowerModeDischargeBattery:
		return deye_modbus.EMS_MODE_DISCHARGE_BAT, magnitude
	default:
		return deye_modbus.EMS_MODE_AUTO, 0
	}
}

func runModbusTask[T any](ctx actor.Context, sender *actor.PID, fn func() (*T, error), recoverFn func(error) T) {
	actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, fn),
		mapTaskResult[T](sender)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: recoverFn(err),
			replyTo: sender,
		}
	}).WithTimeout(MODBUS_TASK_TIMEOUT).PipeTo(ctx.Self())
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
