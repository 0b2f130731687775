package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/deye2mqtt/internal/adapter/actor"
	coreactor "github.com/berfenger/deye2mqtt/internal/core/actor"
	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/internal/observability"
	"github.com/berfenger/deye2mqtt/internal/util"
	"github.com/berfenger/deye2mqtt/internal/util/actorutil"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := util.LoadTestConfig()
	cfg.DispatchConfig.WorkStateKeepAliveSeconds = 0
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	inv := deye_modbus.NewTestDeyeModbusReader()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(inv, metrics, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, metrics, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})

	s := &Server{
		rootContext: as.Root,
		masterActor: pid,
		metrics:     metrics,
	}
	return s.RegisterRoutes()
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	assert := assert.New(t)
	handler := newTestServer(t)

	assert.Eventually(func() bool {
		return get(handler, "/healthcheck").Code == http.StatusOK
	}, 10*time.Second, 500*time.Millisecond)

	var state dispatchStateView
	assert.Eventually(func() bool {
		rec := get(handler, "/dispatch")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
			return false
		}
		return state.Command != nil && state.Envelope != nil
	}, 5*time.Second, 100*time.Millisecond)
	assert.Nil(state.SetPoint)
	assert.Equal("auto", state.Command.Mode)
	assert.Equal(int32(800), state.Envelope.MaxAcImport)
	assert.Equal(int32(4400), state.Envelope.MaxAcExport)
	assert.Contains(state.Warnings, domain.SENSOR_ID_WARN_NO_SMART_METER_DETECTED)

	rec := get(handler, "/metrics")
	assert.Equal(http.StatusOK, rec.Code)
	assert.True(strings.Contains(rec.Body.String(), "deye2mqtt_dispatch_cycles_total"))
}
