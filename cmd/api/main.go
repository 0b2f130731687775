package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/deye2mqtt/internal/adapter/actor"
	"github.com/berfenger/deye2mqtt/internal/config"
	"github.com/berfenger/deye2mqtt/internal/core/actor"
	"github.com/berfenger/deye2mqtt/internal/observability"
	"github.com/berfenger/deye2mqtt/internal/server"
	"github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const REGISTERS_CONFIG_KEY = "inverter_modbus.registers"

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting deye2mqtt", zap.String("version", versioninfo.Short()),
		zap.String("control_mode", cfg.DispatchConfig.Mode().String()),
		zap.Bool("read_only", cfg.DispatchConfig.ReadOnlyMode))

	metrics := observability.NewMetrics()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("modbus reader error", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, mqttActorProvider(cfg, logger), metrics, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("master actor spawn error", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, metrics)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => DEYE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("DEYE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("deye")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// optional keys have no default and are read explicitly
	if viper.IsSet("dispatch.initial_set_point") {
		setPoint := viper.GetInt32("dispatch.initial_set_point")
		cfg.DispatchConfig.InitialSetPoint = &setPoint
	}

	cfg.InverterModbus.Registers, err = loadRegisterMap(viper.GetViper())
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	url, err := cfg.InverterModbus.ModbusURL()
	if err != nil {
		return nil, err
	}

	inv, err := deye_modbus.CreateDeyeModbusReader(deye_modbus.ReaderConfig{
		URL:       url,
		Speed:     cfg.InverterModbus.BaudRate,
		UnitId:    uint8(cfg.InverterModbus.UnitId),
		Timeout:   time.Duration(cfg.InverterModbus.TimeoutMillis) * time.Millisecond,
		Registers: cfg.InverterModbus.Registers,
	}, logger, metrics.ModbusInstrument())
	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(inv, metrics, logger)
	}, nil
}

// loadRegisterMap applies the configured register addresses on top of the
// default map. Unset keys keep their default address.
func loadRegisterMap(v *viper.Viper) (deye_modbus.RegisterMap, error) {
	regs := deye_modbus.DefaultRegisterMap()
	if !v.IsSet(REGISTERS_CONFIG_KEY) {
		return regs, nil
	}
	// a configured list replaces the default one instead of merging into it
	if v.IsSet(REGISTERS_CONFIG_KEY + ".pv_power") {
		regs.PvPower = nil
	}
	if err := v.UnmarshalKey(REGISTERS_CONFIG_KEY, &regs); err != nil {
		return regs, fmt.Errorf("%w: %s: %w", config.ErrInvalidConfig, REGISTERS_CONFIG_KEY, err)
	}
	if len(regs.PvPower) == 0 {
		return regs, fmt.Errorf("%w: %s.pv_power should list at least one register", config.ErrInvalidConfig, REGISTERS_CONFIG_KEY)
	}
	return regs, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("inverter_modbus.transport", config.TRANSPORT_TCP)
	viper.SetDefault("inverter_modbus.host", "")
	viper.SetDefault("inverter_modbus.port", 502)
	viper.SetDefault("inverter_modbus.device", "")
	viper.SetDefault("inverter_modbus.baud_rate", 9600)
	viper.SetDefault("inverter_modbus.unit_id", 1)
	viper.SetDefault("inverter_modbus.timeout_millis", 1000)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "deye")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("dispatch.control_mode", "internal")
	viper.SetDefault("dispatch.control_interval_millis", 5000)
	viper.SetDefault("dispatch.rated_power", 0)
	viper.SetDefault("dispatch.read_only_mode", false)
	viper.SetDefault("dispatch.pid_filter_enabled", false)
	viper.SetDefault("dispatch.work_state_keepalive_seconds", 60)
	viper.SetDefault("dispatch.overtemperature_power_limit", 0)
	viper.SetDefault("monitor.poll_interval_millis", 5000)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
