// Package main is the entry point for the eSignet binding service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosip/esignet-binding/cmd/esignet-binding/app"
	"github.com/mosip/esignet-binding/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
