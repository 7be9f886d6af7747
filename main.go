/*
This is an example of application that will use the
engine package to record a synthetic scan
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/anima-scan/engine"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/platform"
	"github.com/spaghettifunk/anima-scan/testbed"
)

const configPath = "scanner.toml"

func loadConfig() (*engine.ApplicationConfig, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return engine.DefaultApplicationConfig(), nil
	}
	return engine.LoadApplicationConfig(configPath)
}

func main() {
	config, err := loadConfig()
	if err != nil {
		core.LogFatal("unable to load %s: %s", configPath, err)
	}

	tb := testbed.NewScanGame(config)
	session := testbed.NewSyntheticSession(50 * time.Millisecond)

	e, err := engine.New(tb.Game, session, platform.StaticPermissionGate{Status: platform.PermissionGranted})
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// the scripted capture quits the engine once it is done
	go func() {
		if err := testbed.RunCapture(ctx, e, 3*time.Second); err != nil && !errors.Is(err, context.Canceled) {
			core.LogError("capture failed: %s", err)
		}
		e.Quit()
	}()

	// run engine
	if err := e.Run(ctx); err != nil {
		core.LogError(err.Error())
	}
	if err := e.Shutdown(); err != nil {
		panic(err)
	}
}
