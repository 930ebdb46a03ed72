// Command dcabot runs the BTC spot DCA bot.
//
// Usage:
//
//	dcabot tick                       # one tick, then exit
//	dcabot serve --interval 1h        # tick loop plus the HTTP status API
//	dcabot report [--send]            # render or deliver a report now
//	dcabot state show                 # print the stored state
//	dcabot state reset-trailing       # clear the trailing-stop sub-state
//
// Exit codes: 0 success, 75 transient venue failure, 1 other failure, 2 bad configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"btc-dca-agent/internal/config"
	"btc-dca-agent/internal/venue"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitConfig   = 2
	exitTempFail = 75 // EX_TEMPFAIL
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	case venue.IsTransient(err):
		return exitTempFail
	default:
		return exitFailure
	}
}
