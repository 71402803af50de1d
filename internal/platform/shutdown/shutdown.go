package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

const forcedExitCode = 130

// NotifyContext returns a context cancelled on the first SIGINT or SIGTERM.
// A second signal while roles are still draining exits the process at once.
func NotifyContext(parent context.Context, log *logger.Logger) (context.Context, context.CancelFunc) {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			log.Info("shutdown requested, draining", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigs)
			return
		}
		sig := <-sigs
		log.Warn("second signal, exiting without drain", "signal", sig.String())
		os.Exit(forcedExitCode)
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
