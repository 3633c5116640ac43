package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"

	_ "net/http/pprof"
)

// RunPerfEndpoint serves pprof handlers on debug port until ctx is done.
// Does nothing if port <= 0
func RunPerfEndpoint(ctx context.Context, port int) {
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port provided - skip perf")
		return
	}
	goapp.Log.Info().Msgf("Starting Debug http endpoint at [::]:%d", port)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: http.DefaultServeMux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxInt, cf := context.WithTimeout(context.Background(), time.Second)
		defer cf()
		_ = srv.Shutdown(ctxInt)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		goapp.Log.Error().Err(err).Msg("can't start Debug endpoint")
	}
}
