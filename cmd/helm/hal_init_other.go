//go:build !linux
// +build !linux

package main

import (
	"github.com/martinmarsh/helm/internal/hal"
	"github.com/martinmarsh/helm/internal/logger"
)

func initHAL() {
	logger.Info("non-linux platform detected, using mock hal")
	hal.SetGlobalHAL(hal.NewMockHAL())
}
