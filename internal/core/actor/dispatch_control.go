package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/deye2mqtt/internal/config"
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/core/events"
	"github.com/berfenger/deye2mqtt/internal/core/port"
	"github.com/berfenger/deye2mqtt/internal/core/service"
	"github.com/berfenger/deye2mqtt/internal/observability"
	. "github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	DISPATCH_REQUEST_TIMEOUT = 3 * time.Second
	KEEPALIVE_JOB_KEY        = "work_state_keepalive"
)

var ErrRatedPowerUnknown = errors.New("rated power is not configured and could not be read from the inverter")

// DispatchControlActor runs the control cycle: read telemetry, arbitrate,
// write the EMS command, publish the outcome.
type DispatchControlActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	keepAlive   quartz.Scheduler
	stash       *Stash
	modbusActor *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	arbitrator  port.DispatchArbitrator
	metrics     *observability.Metrics

	mode         domain.ControlMode
	ratedPower   int32
	readOnly     bool
	setPoint     *int32
	surplusPower *int32
	lastResult   *service.DispatchCycleResult

	logger *zap.Logger
}

type dispatchControlTick struct {
}

type workStateKeepAliveTick struct {
}

func NewDispatchControlActor(config *config.Config, modbusActor *actor.PID, eventStream *eventstream.EventStream,
	metrics *observability.Metrics, logger *zap.Logger) *DispatchControlActor {
	act := &DispatchControlActor{
		config:      config,
		modbusActor: modbusActor,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_DISPATCH, logger),
		eventStream: eventStream,
		metrics:     metrics,
		mode:        config.DispatchConfig.Mode(),
		ratedPower:  config.DispatchConfig.RatedPower,
		readOnly:    config.DispatchConfig.ReadOnlyMode,
		setPoint:    config.DispatchConfig.InitialSetPoint,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.arbitrator = service.NewDispatchArbitrator(act.logger)
	act.Become(DCStartingState{
		actor: act,
	})
	return act
}

func (state *DispatchControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type DCStartingState struct {
	ActorState
	actor *DispatchControlActor
}

func (state DCStartingState) Name() string {
	return "starting"
}

func (state DCStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("dispatch@starting started", zap.Stringer("mode", state.actor.mode), zap.Bool("read_only", state.actor.readOnly))

		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.GetDevicesInfoRequest{}, DISPATCH_REQUEST_TIMEOUT), func(err error) any {
			return domain.GetDevicesInfoResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.actor.Become(DCWaitingInfoState{
			actor: state.actor,
		})
	case *actor.Restarting:
		state.actor.stopKeepAlive()
	default:
		state.actor.logger.Debug("dispatch@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting info state

type DCWaitingInfoState struct {
	ActorState
	actor *DispatchControlActor
}

func (state DCWaitingInfoState) Name() string {
	return "waitingInfo"
}

func (state DCWaitingInfoState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesInfoResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("dispatch@waitingInfo GetDevicesInfoResponse error", zap.Error(msg.GetResponseError()))
			if state.actor.ratedPower <= 0 {
				panic(fmt.Errorf("%w: %w", ErrRatedPowerUnknown, msg.GetResponseError()))
			}
		} else if state.actor.ratedPower <= 0 && msg.Inverter != nil {
			state.actor.logger.Sugar().Infof("dispatch.rated_power not defined. assuming max apparent power of inverter = %d", msg.Inverter.MaxApparentPowerWatt)
			state.actor.ratedPower = msg.Inverter.MaxApparentPowerWatt
		}
		if state.actor.ratedPower <= 0 {
			panic(ErrRatedPowerUnknown)
		}
		state.actor.Become(DCControllingState{
			actor: state.actor,
		}.OnEnter(ctx))
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.actor.stopKeepAlive()
	default:
		state.actor.logger.Debug("dispatch@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Controlling state

type DCControllingState struct {
	ActorState
	actor *DispatchControlActor
}

func (state DCControllingState) Name() string {
	return "controlling"
}

func (state DCControllingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("dispatch@controlling: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DISPATCH,
			Healthy: true,
			State:   state.Name(),
		})
	case dispatchControlTick:
		state.actor.logger.Debug("dispatch@controlling dispatchControlTick")
		state.actor.BecomeStacked(DCAwaitTelemetryResponseState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case domain.GetTelemetryResponse:
		if msg.HasResponseError() {
			state.actor.logger.Warn("dispatch@controlling GetTelemetryResponse error, falling back to auto", zap.Error(msg.GetResponseError()))
		}
		state.runCycle(ctx, msg.Telemetry)
		state.actor.scheduleTick(ctx)
	case domain.WriteEmsCommandResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("dispatch@controlling WriteEmsCommandResponse error", zap.Error(msg.GetResponseError()), zap.Stringer("mode", msg.Command.Mode))
			state.actor.metrics.EmsWriteError()
			state.actor.eventStream.Publish(events.EmsWriteErrorUpdateEvent(true))
		} else {
			state.actor.logger.Debug("dispatch@controlling WriteEmsCommandResponse", zap.Stringer("mode", msg.Command.Mode), zap.Int32("magnitude", msg.Command.Magnitude))
			state.actor.eventStream.Publish(events.EmsWriteErrorUpdateEvent(false))
		}
	case workStateKeepAliveTick:
		if state.actor.readOnly {
			state.actor.logger.Debug("dispatch@controlling keep-alive skipped, read-only mode")
			return
		}
		state.actor.logger.Debug("dispatch@controlling keep-alive")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
			domain.SetWorkStateRequest{State: deye_modbus.WORK_STATE_START}, DISPATCH_REQUEST_TIMEOUT),
			func(err error) any {
				return domain.SetWorkStateResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
	case domain.SetWorkStateResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("dispatch@controlling SetWorkStateResponse error", zap.Error(msg.GetResponseError()))
		}
	case domain.SetPvPowerLimitResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("dispatch@controlling SetPvPowerLimitResponse error", zap.Error(msg.GetResponseError()), zap.Int32("limit", msg.Limit))
		}
	case domain.DispatchControlRequest:
		state.actor.handleCommand(ctx, msg)
	case *actor.Stopping:
		state.actor.stopKeepAlive()
	case *actor.Restarting:
		state.actor.stopKeepAlive()
	default:
		state.actor.logger.Debug("dispatch@controlling: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state DCControllingState) OnEnter(ctx actor.Context) DCControllingState {
	state.actor.logger.Info("dispatch@controlling enter",
		zap.Stringer("mode", state.actor.mode),
		zap.Int32("rated_power", state.actor.ratedPower),
		zap.Bool("read_only", state.actor.readOnly))
	state.actor.eventStream.Publish(events.ReadOnlyModeSwitchUpdateEvent(state.actor.readOnly))
	for _, ev := range events.SetPointUpdateEvents(state.actor.setPoint, state.actor.surplusPower) {
		state.actor.eventStream.Publish(ev)
	}
	state.actor.startKeepAlive(ctx)
	ctx.Send(ctx.Self(), dispatchControlTick{})
	return state
}

func (state DCControllingState) runCycle(ctx actor.Context, telemetry *deye_modbus.Telemetry) {
	act := state.actor
	result := service.RunDispatchCycle(act.arbitrator, service.DispatchCycleInput{
		SetPoint:                  act.setPoint,
		SurplusPower:              act.surplusPower,
		Mode:                      act.mode,
		RatedPower:                act.ratedPower,
		PidFilterEnabled:          act.config.DispatchConfig.PidFilterEnabled,
		Telemetry:                 telemetry,
		OvertemperaturePowerLimit: act.config.DispatchConfig.OvertemperaturePowerLimit,
	})
	act.lastResult = &result
	act.metrics.DispatchCycle(result.Command, result.SetPoint, result.Envelope, result.Warnings)

	act.logger.Debug("dispatch@controlling cycle",
		zap.Stringer("command", result.Command.Mode),
		zap.Int32("magnitude", result.Command.Magnitude),
		zap.Any("envelope", result.Envelope),
		zap.Any("warnings", result.Warnings))
	if result.PvPowerLimit != nil {
		act.logger.Warn("dispatch@controlling inverter derating for overtemperature, limiting power",
			zap.Int32("limit", *result.PvPowerLimit))
	}

	evs := events.EnvelopeToUpdateEvents(result.Envelope)
	evs = append(evs, events.EmsCommandToUpdateEvents(result.Command)...)
	evs = append(evs, events.ModeWarningsToUpdateEvents(result.Warnings)...)
	for _, ev := range evs {
		act.eventStream.Publish(ev)
	}

	if act.readOnly {
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(act.modbusActor,
		domain.WriteEmsCommandRequest{Command: result.Command}, DISPATCH_REQUEST_TIMEOUT),
		func(err error) any {
			return domain.WriteEmsCommandResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Command:            result.Command,
			}
		})
	if result.PvPowerLimit != nil {
		limit := *result.PvPowerLimit
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(act.modbusActor,
			domain.SetPvPowerLimitRequest{Limit: limit}, DISPATCH_REQUEST_TIMEOUT),
			func(err error) any {
				return domain.SetPvPowerLimitResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
					Limit:              limit,
				}
			})
	}
}

// Await telemetry response state

type DCAwaitTelemetryResponseState struct {
	ActorState
	actor *DispatchControlActor
}

func (state DCAwaitTelemetryResponseState) Name() string {
	return "awaitTelemetry"
}

func (state DCAwaitTelemetryResponseState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetryResponse:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Debug("dispatch@awaitTelemetry: GetTelemetryResponse", zap.Bool("error", msg.HasResponseError()))
		ctx.RequestWithCustomSender(ctx.Self(), msg, ctx.Sender())
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.logger.Debug("dispatch@awaitTelemetry: ReceiveTimeout")
		ctx.RequestWithCustomSender(ctx.Self(), domain.GetTelemetryResponse{
			ActorResponseMixIn: domain.ErrorResponse(errors.New("receive timeout")),
		}, ctx.Sender())
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.actor.stopKeepAlive()
	default:
		state.actor.logger.Debug("dispatch@awaitTelemetry: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state DCAwaitTelemetryResponseState) OnEnterAction(ctx actor.Context) DCAwaitTelemetryResponseState {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor,
		domain.GetTelemetryRequest{}, DISPATCH_REQUEST_TIMEOUT),
		func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
	ctx.SetReceiveTimeout(DISPATCH_REQUEST_TIMEOUT + time.Second)
	return state
}

// Other actor function helpers

func (state *DispatchControlActor) handleCommand(ctx actor.Context, msg domain.DispatchControlRequest) {
	switch cmd := msg.(type) {
	case domain.SetActivePowerSetPointRequest:
		state.logger.Sugar().Debugf("dispatch@controlling: cmd setPoint %d", cmd.SetPoint)
		setPoint := cmd.SetPoint
		state.setPoint = &setPoint
		state.publishSetPoints()
	case domain.SetSurplusPowerRequest:
		if cmd.SurplusPower != nil {
			state.logger.Sugar().Debugf("dispatch@controlling: cmd surplusPower %d", *cmd.SurplusPower)
		} else {
			state.logger.Debug("dispatch@controlling: cmd surplusPower cleared")
		}
		state.surplusPower = cmd.SurplusPower
		state.publishSetPoints()
	case domain.SetReadOnlyModeRequest:
		state.logger.Sugar().Debugf("dispatch@controlling: cmd readOnly %t", cmd.Enable)
		state.readOnly = cmd.Enable
		state.eventStream.Publish(events.ReadOnlyModeSwitchUpdateEvent(cmd.Enable))
	case domain.GetDispatchStateRequest:
		resp := domain.GetDispatchStateResponse{
			SetPoint:     state.setPoint,
			SurplusPower: state.surplusPower,
			ReadOnly:     state.readOnly,
		}
		if state.lastResult != nil {
			command := state.lastResult.Command
			resp.LastCommand = &command
			resp.Envelope = state.lastResult.Envelope
			resp.Warnings = state.lastResult.Warnings
		}
		ForRequest(cmd).Respond(ctx, resp)
	}
}

func (state *DispatchControlActor) publishSetPoints() {
	for _, ev := range events.SetPointUpdateEvents(state.setPoint, state.surplusPower) {
		state.eventStream.Publish(ev)
	}
}

func (state *DispatchControlActor) scheduleTick(ctx actor.Context) {
	interval := time.Duration(state.config.DispatchConfig.ControlIntervalMillis) * time.Millisecond
	state.scheduler.RequestOnce(interval, ctx.Self(), dispatchControlTick{})
}

// startKeepAlive registers a quartz job that periodically asks this actor to
// rewrite SET_WORK_STATE.
func (state *DispatchControlActor) startKeepAlive(ctx actor.Context) {
	period := time.Duration(state.config.DispatchConfig.WorkStateKeepAliveSeconds) * time.Second
	if period <= 0 || state.keepAlive != nil {
		return
	}
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		state.logger.Error("dispatch@keepalive could not create scheduler", zap.Error(err))
		return
	}
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	keepAliveJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, workStateKeepAliveTick{})
		return true, nil
	})
	sched.Start(context.Background())
	err = sched.ScheduleJob(quartz.NewJobDetail(keepAliveJob, quartz.NewJobKey(KEEPALIVE_JOB_KEY)), quartz.NewSimpleTrigger(period))
	if err != nil {
		state.logger.Error("dispatch@keepalive could not schedule job", zap.Error(err))
		sched.Stop()
		return
	}
	state.keepAlive = sched
}

func (state *DispatchControlActor) stopKeepAlive() {
	if state.keepAlive != nil {
		state.keepAlive.Stop()
		state.keepAlive = nil
	}
}
