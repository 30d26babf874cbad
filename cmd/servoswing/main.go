package main

import (
	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
)

// Global is shared with every command.
type Global struct {
	Logger *logrus.Logger
}

type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"servoswing.yaml"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Angle    AngleCmd    `cmd:"" help:"Move the servo to an angle"`
	Swing    SwingCmd    `cmd:"" help:"Swing the servo between two angles until stopped"`
	Demo     DemoCmd     `cmd:"" help:"Swing PWM0 between 0 and 180 degrees for a minute"`
	Hardware HardwareCmd `cmd:"" help:"Show or save the stored hardware config"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("servoswing"),
		kong.Description("Drive an SG90 servo over PWM."),
		kong.UsageOnError(),
	)

	logger := logrus.New()
	if cli.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	err := ctx.Run(&Global{Logger: logger}, &cli)
	if err != nil {
		logger.WithError(err).WithField("command", ctx.Command()).Error("command failed")
	}
	ctx.FatalIfErrorf(err)
}
