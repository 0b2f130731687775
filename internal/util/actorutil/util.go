package actorutil

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel, zap.PanicLevel, zap.FatalLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an MQTT command to a dispatch request.
// Unknown entities return (nil, nil).
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch cmd.DeviceId {
	case domain.SWITCH_ID_READ_ONLY_MODE:
		return domain.SetReadOnlyModeRequest{
			Enable: cmd.Payload == mqtt.MQTT_PAYLOAD_ON,
		}, nil
	case domain.INPUT_NUMBER_ID_ACTIVE_POWER_SETPOINT:
		value, err := parseWatts(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetActivePowerSetPointRequest{
			SetPoint: value,
		}, nil
	case domain.INPUT_NUMBER_ID_SURPLUS_POWER:
		payload := strings.TrimSpace(strings.ToLower(cmd.Payload))
		if payload == "" || payload == mqtt.MQTT_PAYLOAD_NONE {
			return domain.SetSurplusPowerRequest{}, nil
		}
		value, err := parseWatts(payload)
		if err != nil {
			return nil, err
		}
		return domain.SetSurplusPowerRequest{
			SurplusPower: &value,
		}, nil
	}
	return nil, nil
}

func parseWatts(payload string) (int32, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid power value %q: %w", payload, err)
	}
	if math.IsNaN(value) || value > math.MaxInt32 || value < math.MinInt32 {
		return 0, fmt.Errorf("power value out of range: %q", payload)
	}
	return int32(math.Round(value)), nil
}
