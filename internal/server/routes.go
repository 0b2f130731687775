package server

import (
	"net/http"
	"time"

	"github.com/berfenger/deye2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const requestTimeout = 10 * time.Second

type dispatchStateView struct {
	SetPoint     *int32          `json:"set_point"`
	SurplusPower *int32          `json:"surplus_power"`
	ReadOnly     bool            `json:"read_only"`
	Command      *emsCommandView `json:"command,omitempty"`
	Envelope     *envelopeView   `json:"envelope,omitempty"`
	Warnings     map[string]bool `json:"warnings"`
}

type emsCommandView struct {
	Mode      string `json:"mode"`
	Magnitude int32  `json:"magnitude"`
}

type envelopeView struct {
	MaxAcImport int32 `json:"max_ac_import"`
	MaxAcExport int32 `json:"max_ac_export"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/dispatch", s.DispatchStateHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DispatchStateHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetDispatchStateRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetDispatchStateResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected dispatch response")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, dispatchStateToView(response))
}

func dispatchStateToView(resp domain.GetDispatchStateResponse) dispatchStateView {
	view := dispatchStateView{
		SetPoint:     resp.SetPoint,
		SurplusPower: resp.SurplusPower,
		ReadOnly:     resp.ReadOnly,
		Warnings: map[string]bool{
			domain.SENSOR_ID_WARN_SMART_MODE_PID_FILTER:   resp.Warnings.SmartModeConflictsWithPidFilter,
			domain.SENSOR_ID_WARN_NO_SMART_METER_DETECTED: resp.Warnings.NoSmartMeterDetected,
		},
	}
	if resp.LastCommand != nil {
		view.Command = &emsCommandView{
			Mode:      resp.LastCommand.Mode.String(),
			Magnitude: resp.LastCommand.Magnitude,
		}
	}
	if resp.Envelope != nil {
		view.Envelope = &envelopeView{
			MaxAcImport: resp.Envelope.MaxAcImport,
			MaxAcExport: resp.Envelope.MaxAcExport,
		}
	}
	return view
}
