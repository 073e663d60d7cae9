package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"riskpilot/cmd/runner"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Riskpilot CMD"
	app.Usage = "The riskpilot command line interface"

	app.Commands = []cli.Command{
		runCMD,
		paperCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the lifecycle engine",
		Action:      runAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the engine against the live execution service`,
	}
	paperCMD = cli.Command{
		Name:        "paper",
		Usage:       "run the lifecycle engine in paper mode",
		Action:      paperAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the engine with simulated execution`,
	}
)

func runAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")
	logrus.WithField("cmd", "run")

	r := &runner.Runner{}
	err := r.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func paperAction(_ *cli.Context) error {

	logrus.Info("Starting paper engine CMD")
	logrus.WithField("cmd", "paper")

	r := &runner.Runner{Paper: true}
	err := r.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
