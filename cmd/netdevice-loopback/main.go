// Command netdevice-loopback is a small demo: it wires up a Device
// over the loopback example implementation, opens one primary session,
// and runs it until interrupted, so a reader can see the
// session/VMO/queue machinery work end to end without any real hardware.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-netdevice/netdevice"
	"github.com/go-netdevice/netdevice/examples/loopback"
	"github.com/go-netdevice/netdevice/internal/constants"
	"github.com/go-netdevice/netdevice/internal/logging"
)

var (
	verbose         bool
	sessionName     string
	descriptorCount uint16
)

var rootCmd = &cobra.Command{
	Use:   "netdevice-loopback",
	Short: "Run a loopback network-device session",
	Long: `netdevice-loopback opens a single primary session against an
in-process loopback device implementation: every transmitted frame is
reflected straight back as a received frame, which is enough to drive
the full open/start/teardown lifecycle without real hardware.

Examples:
  # Run with the default session name and descriptor count
  netdevice-loopback run

  # Run with a larger ring and verbose logging
  netdevice-loopback run --descriptors 64 -v`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a session and run until interrupted",
	RunE:  runLoopback,
}

func init() {
	runCmd.Flags().StringVar(&sessionName, "session-name", "demo", "Name reported by the opened session")
	runCmd.Flags().Uint16Var(&descriptorCount, "descriptors", 16, "Descriptor ring size for the demo session")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLoopback(cmd *cobra.Command, args []string) error {
	logConfig := logging.DefaultConfig()
	if verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	impl := loopback.New()
	dev, err := netdevice.New(impl, netdevice.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	defer dev.Close()

	logger.Info("opening session", "name", sessionName, "descriptors", descriptorCount)
	handle, err := dev.OpenSession(netdevice.SessionParams{
		Name:              sessionName,
		DescriptorCount:   descriptorCount,
		DescriptorLength:  32,
		DescriptorVersion: constants.DescriptorVersion,
		Primary:           true,
	})
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	logger.Info("session open", "status", dev.Status(), "vmo_id", handle.VMOID)
	fmt.Printf("session %q open, device status %s\n", sessionName, dev.Status())
	fmt.Println("press Ctrl+C to tear down...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	done := make(chan struct{})
	dev.Teardown(func() { close(done) })

	select {
	case <-done:
		logger.Info("teardown complete")
	case <-time.After(5 * time.Second):
		logger.Warn("teardown timed out, exiting anyway")
	}

	return nil
}
