package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Nedlloyd1990/filesync-pro/internal/server"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.Info("Starting FileSync relay")

	// Defaults, optional YAML file, then environment overrides.
	config, err := server.LoadConfig(os.Getenv("FILESYNC_CONFIG"))
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to load configuration")
	}
	server.SetConfig(config)

	// Identity and connection persistence are collaborators; the default
	// wiring runs self-contained with config-seeded tokens and an
	// in-memory connection store.
	identity := server.NewStaticTokenIdentity(config.Auth.Tokens)
	store := server.NewMemoryConnectionStore()
	server.SetBroker(server.NewBroker(identity, store))

	server.StartHub()

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("error", err).Fatal("Server failed")
		}
	case sig := <-stop:
		logrus.WithField("signal", sig).Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
		logrus.WithField("error", err).Warn("HTTP shutdown incomplete")
	}
	if err := server.GetHub().Shutdown(10 * time.Second); err != nil {
		logrus.WithField("error", err).Warn("Hub shutdown incomplete")
	}
}
