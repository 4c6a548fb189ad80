package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/logger"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "sentinel",
		Short:         "Threshold alerting, actuation and repeat detection for warehouse sensors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to config file (default ./config.yaml or /etc/sentinel/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "override main.log_level")
	_ = opts.v.BindPFlag("main.log_level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(
		newServeCommand(opts),
		newCorrelateCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// load reads settings and builds the process logger.
func (o *rootOptions) load() (*conf.Settings, logger.Logger, error) {
	settings, err := conf.LoadWith(o.v, o.configFile)
	if err != nil {
		return nil, nil, err
	}
	level := logger.ParseLevel(settings.Main.LogLevel)
	loc := settings.Main.Location()

	var log logger.Logger
	if settings.Main.LogFormat == "text" {
		log = logger.NewTextLogger(os.Stdout, level, loc)
	} else {
		log = logger.NewSlogLogger(os.Stdout, level, loc)
	}
	return settings, log.With(logger.String("service", settings.Main.Name)), nil
}
