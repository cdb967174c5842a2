package main

import (
	"context"
	"expvar"
	"log"
	"net/http"

	"github.com/pkg/errors"

	dig_container "github.com/trezcool/mahudhurio/apps/api/di/dig"
	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core"
)

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(conf *core.Config, logger core.Logger, dbp dig_container.DBLoggerParam, closeDB dig_container.DBCloser, server *echoapi.Server) {
	logger.Info("starting " + conf.String())
	defer logger.Info("stopped")
	defer func() {
		if err := closeDB(); err != nil {
			dbp.Logger.Error("closing database", err)
		}
	}()

	serveDebugVars(conf, logger)
	go server.Start()

	select {
	case err := <-server.Errors():
		logger.Fatal("server failed", err)

	case sig := <-server.ShutdownSignal():
		logger.Info("shutting down on " + sig.String())
		if err := shutdown(conf, server); err != nil {
			logger.Error("shutdown", err)
		}
	}
}

// serveDebugVars exposes expvar's /debug/vars on server.debugHost.
func serveDebugVars(conf *core.Config, logger core.Logger) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Warn("debug server closed", err)
		}
	}()
}

// shutdown lets in-flight requests finish within server.shutdownTimeout, then closes the listener for good.
func shutdown(conf *core.Config, server *echoapi.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		if cerr := server.Close(); cerr != nil {
			return errors.Wrap(cerr, "forcing server close")
		}
		return errors.Wrap(err, "graceful shutdown")
	}
	return nil
}
