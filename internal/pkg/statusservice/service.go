package statusservice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/airenas/tflow/internal/pkg/batch"
	"github.com/airenas/tflow/internal/pkg/monitor"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MonitorView provides job state and user actions
type MonitorView interface {
	Snapshot() monitor.Snapshot
	Reset() bool
	ClearAll(ctx context.Context) error
}

// BatchView provides batch items
type BatchView interface {
	Items() []batch.ItemResult
}

// WSConnHandler WwbSocketConnection wrapper
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(topic string) ([]WsConn, bool)
}

// Data keeps data required for service work
type Data struct {
	Port    int
	Monitor MonitorView
	// Batch is optional
	Batch     BatchView
	WSHandler WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP status service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 10 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("tflow_status", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/live", live(data))
	e.GET("/status", statusHandler(data))
	e.GET("/batch", batchHandler(data))
	e.POST("/reset", resetHandler(data))
	e.POST("/clear", clearHandler(data))
	e.GET("/subscribe", subscribeHandler(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func statusHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("status method")()
		return c.JSON(http.StatusOK, data.Monitor.Snapshot())
	}
}

type batchResult struct {
	Items     []batch.ItemResult `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Pending   int                `json:"pending"`
	Total     int                `json:"total"`
}

func batchHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if data.Batch == nil {
			return echo.NewHTTPError(http.StatusNotFound, "No batch")
		}
		res := batchResult{Items: data.Batch.Items()}
		for _, it := range res.Items {
			switch it.Status {
			case batch.Success:
				res.Succeeded++
			case batch.Failed:
				res.Failed++
			default:
				res.Pending++
			}
		}
		res.Total = len(res.Items)
		return c.JSON(http.StatusOK, res)
	}
}

type resetResult struct {
	Reset       bool   `json:"reset"`
	ServerError string `json:"serverError,omitempty"`
}

func resetHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, resetResult{Reset: data.Monitor.Reset()})
	}
}

func clearHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		res := resetResult{Reset: true}
		if err := data.Monitor.ClearAll(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			res.ServerError = "Server clear failed"
		}
		return c.JSON(http.StatusOK, res)
	}
}

func validate(data *Data) error {
	if data.Monitor == nil {
		return fmt.Errorf("no Monitor")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
