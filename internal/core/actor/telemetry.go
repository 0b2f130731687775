package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/deye2mqtt/internal/config"
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/core/events"
	"github.com/berfenger/deye2mqtt/internal/core/service"
	. "github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// TelemetryActor polls the inverter and publishes measurements and decoded
// diagnostics to the event stream.
type TelemetryActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream
	pollErrors  uint

	logger *zap.Logger
}

type telemetryTick struct {
}

func NewTelemetryActor(config *config.Config, modbusActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		config:      config,
		modbusActor: modbusActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			ctx.Send(ctx.Self(), telemetryTick{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("telemetry@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: state.healthy(),
			State:   "idle",
		})
	case telemetryTick:
		state.logger.Debug("telemetry@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetTelemetryRequest{}, 3*time.Second), func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})

		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), telemetryTick{})
		state.behavior.BecomeStacked(state.WaitingTelemetryReceive)
	default:
		state.logger.Debug("telemetry@default: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *TelemetryActor) WaitingTelemetryReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetryResponse:
		if msg.HasResponseError() || msg.Telemetry == nil {
			state.pollErrors++
			state.logger.Error("telemetry@waiting GetTelemetryResponse error", zap.Error(msg.GetResponseError()), zap.Uint("errors", state.pollErrors))
		} else {
			state.logger.Debug("telemetry@waiting GetTelemetryResponse")
			state.pollErrors = 0
			for _, ev := range TelemetryEvents(msg.Telemetry) {
				state.eventStream.Publish(ev)
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case telemetryTick:
		// a poll is already in flight, skip this one
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), telemetryTick{})
	default:
		state.logger.Debug("telemetry@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) pollInterval() time.Duration {
	return time.Duration(state.config.MonitorConfig.PollIntervalMillis) * time.Millisecond
}

// healthy is false after three consecutive failed polls.
func (state *TelemetryActor) healthy() bool {
	return state.pollErrors < 3
}

// TelemetryEvents lists every sensor update derived from one telemetry block.
func TelemetryEvents(t *deye_modbus.Telemetry) []any {
	pv := service.SumPvProduction(service.PvStringReadings(t.PvStrings))
	pvProduction := int32(0)
	if pv != nil {
		pvProduction = max(0, *pv)
	}

	evs := events.TelemetryToUpdateEvents(t, pvProduction)
	evs = append(evs, events.MeterStatusUpdateEvents(service.MeterStatusFromRegister(t.MeterCommunicateStatus))...)
	evs = append(evs, events.DiagnosticFlagsToUpdateEvents(service.DecodeDiagnostics(t.DiagStatusH, deye_modbus.DiagStatusHTable))...)
	evs = append(evs, events.DiagnosticFlagsToUpdateEvents(service.DecodeDiagnostics(t.DiagStatusL, deye_modbus.DiagStatusLTable))...)
	evs = append(evs, events.DiagnosticFlagsToUpdateEvents(service.DecodeDiagnostics(t.BmsStatus, deye_modbus.BmsStatusTable))...)
	return evs
}
