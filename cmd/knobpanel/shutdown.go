package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// shutdownFlag is the process-wide stop request. It is set once by the signal
// trap in main and polled by every long-running loop. It never goes back to
// false.
type shutdownFlag struct {
	requested atomic.Bool
}

// Request sets the flag and reports whether this call was the one that set it.
func (f *shutdownFlag) Request() bool {
	return f.requested.CompareAndSwap(false, true)
}

// Requested reports whether shutdown has been requested.
func (f *shutdownFlag) Requested() bool {
	return f.requested.Load()
}

// trapSignals installs the SIGINT/SIGTERM handler.
//
// The first signal requests a graceful shutdown: it sets flag and cancels the
// service context. A second signal means the operator does not want to wait,
// so exit is called immediately.
//
// The returned func uninstalls the handler.
func trapSignals(flag *shutdownFlag, cancel context.CancelFunc, exit func(code int), logger *slog.Logger) (stop func()) {
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigc:
				handleSignal(sig, flag, cancel, exit, logger)
			}
		}
	}()

	return func() {
		signal.Stop(sigc)
		close(done)
	}
}

func handleSignal(sig os.Signal, flag *shutdownFlag, cancel context.CancelFunc, exit func(code int), logger *slog.Logger) {
	if flag.Request() {
		logger.Info("shutting down", "signal", sig.String())
		if cancel != nil {
			cancel()
		}
		return
	}
	logger.Warn("second signal, exiting immediately", "signal", sig.String())
	exit(1)
}
