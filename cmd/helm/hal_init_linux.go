//go:build linux
// +build linux

package main

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/martinmarsh/helm/internal/hal"
	"github.com/martinmarsh/helm/internal/logger"
)

func initHAL() {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		rpiHAL, err := hal.NewRaspberryPiHAL()
		if err != nil {
			logger.Get().Warn("rpi hal init failed, falling back to mock hal", zap.Error(err))
			hal.SetGlobalHAL(hal.NewMockHAL())
			return
		}
		logger.Get().Info("raspberry pi hal initialized",
			zap.String("board", rpiHAL.Info().Name), zap.String("gpio_chip", rpiHAL.Info().GPIOChip))
		hal.SetGlobalHAL(rpiHAL)
	} else {
		logger.Get().Info("non-arm platform detected, using mock hal")
		hal.SetGlobalHAL(hal.NewMockHAL())
	}
}
