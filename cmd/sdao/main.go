// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"os"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/stackingdao/core/config"
	"github.com/stackingdao/core/log"
)

var (
	version   string
	gitCommit string
	gitTag    string
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "sdao",
		Usage:     "StackingDAO liquid stacking core",
		Copyright: "2024 The StackingDAO developers",
		Commands: []cli.Command{
			{
				Name:  "solo",
				Usage: "run the protocol against the built-in pox simulator",
				Flags: []cli.Flag{
					configFlag,
					dataDirFlag,
					persistFlag,
					apiAddrFlag,
					apiCorsFlag,
					enableAPILogsFlag,
					enableMetricsFlag,
					metricsAddrFlag,
					pprofFlag,
					verbosityFlag,
					blockTimeFlag,
				},
				Action: soloAction,
			},
			{
				Name:  "check-config",
				Usage: "validate a deployment config file",
				Flags: []cli.Flag{
					configFlag,
					verbosityFlag,
				},
				Action: checkConfigAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkConfigAction(ctx *cli.Context) error {
	initLogger(ctx)

	path := ctx.String(configFlag.Name)
	if path == "" {
		return fmt.Errorf("no config file given, set --%s", configFlag.Name)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	params := cfg.PoxParams()
	log.Info("config is valid",
		"pools", len(cfg.Pools),
		"standardCommissionBps", cfg.StandardCommissionBps,
		"cycleLength", params.CycleLength,
	)
	return nil
}
