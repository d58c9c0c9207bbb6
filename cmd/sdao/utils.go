// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stackingdao/core/config"
	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/log"
)

func fatal(args ...interface{}) {
	fmt.Fprint(os.Stderr, "Fatal: ")
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sdao")
}

func initLogger(ctx *cli.Context) {
	level := log.LevelInfo
	switch ctx.Int(verbosityFlag.Name) {
	case 0:
		level = log.LevelCrit
	case 1:
		level = log.LevelError
	case 2:
		level = log.LevelWarn
	case 3:
		level = log.LevelInfo
	case 4:
		level = log.LevelDebug
	default:
		level = log.LevelTrace
	}
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor)))
}

// openState returns the backing store: in-memory unless persist is
// requested, then a leveldb instance under data-dir.
func openState(ctx *cli.Context) (kv.GetPutCloser, error) {
	if !ctx.Bool(persistFlag.Name) {
		return kv.NewMem(), nil
	}
	dir := ctx.String(dataDirFlag.Name)
	if dir == "" {
		return nil, fmt.Errorf("no data directory available, set --%s", dataDirFlag.Name)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return kv.New(filepath.Join(dir, "state.db"), kv.Options{
		CacheSize:              128,
		OpenFilesCacheCapacity: 64,
	})
}

// loadConfig reads the config flag, falling back to the built-in solo
// deployment when unset.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	if path := ctx.String(configFlag.Name); path != "" {
		return config.Load(path)
	}
	return config.Parse([]byte(soloConfig))
}

func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		log.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}
