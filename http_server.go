package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ochinchina/stackpanel/config"
	"github.com/ochinchina/stackpanel/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const shutdownTimeout = 10 * time.Second

// HTTPServer serves the REST API and the metrics
type HTTPServer struct {
	settings config.PanelSettings
	handler  http.Handler
}

// NewHTTPServer creates the server for panel
func NewHTTPServer(settings config.PanelSettings, panel *Panel) *HTTPServer {
	prometheus.MustRegister(status.NewStackCollector(panel.Store, afero.NewOsFs(), panel.Settings.Stack.Dir, panel.Accounts))
	return &HTTPServer{settings: settings, handler: createHandler(settings, panel, promhttp.Handler())}
}

func createHandler(settings config.PanelSettings, panel *Panel, metrics http.Handler) http.Handler {
	router := mux.NewRouter()
	NewPanelRestful(panel).Register(router.PathPrefix("/api").Subrouter())
	router.Handle("/metrics", metrics).Methods("GET")
	return NewHttpBasicAuth(settings.Username, settings.Password, router)
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully. Requests in flight run to completion.
func (s *HTTPServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.settings.Listen)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"addr": s.settings.Listen}).Info("success to listen on address")

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(listener)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	log.Info("receive a signal to stop, shutting down the http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
