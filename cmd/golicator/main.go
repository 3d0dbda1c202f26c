// Command golicator is a UDP trap exploder: it accepts inbound SNMP trap
// datagrams, matches each sender against a set of subnet-keyed forwarding
// rules, and replicates the payload to every destination the matched rules
// enumerate.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ruilisi/golicator/internal/config"
	"github.com/ruilisi/golicator/internal/dispatch"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var confPath string

var rootCmd = &cobra.Command{
	Use:   "golicator",
	Short: "Forward SNMP traps to subnet-keyed destination sets",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&confPath, "conf-path", "c", "",
		fmt.Sprintf("configuration file or directory (default %q)", config.DefaultConfigFilename))
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	bs, generated, err := config.Run(confPath)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if generated {
		logrus.Info("wrote default configuration, exiting")
		return nil
	}

	for _, w := range bs.Warnings {
		logrus.Warn(w)
	}

	bs.Sink.WriteControl("starting", fmt.Sprintf(
		"listen_port=%d spoof_src=%v log_traps=%v log_bytes=%v",
		bs.Settings.ListenPort, bs.Settings.SpoofSrc, bs.Settings.LogTraps, bs.Settings.LogBytes))
	for _, r := range bs.Table.Rules() {
		bs.Sink.WriteControl("rule", r)
	}

	d := dispatch.New(dispatch.Config{
		ListenPort: bs.Settings.ListenPort,
		LogTraps:   bs.Settings.LogTraps,
		LogBytes:   bs.Settings.LogBytes,
		SpoofSrc:   bs.Settings.SpoofSrc,
	}, bs.Table, bs.Sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.WithField("listen_port", bs.Settings.ListenPort).Info("serving")
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}
