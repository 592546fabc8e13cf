// cmd/proctap/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/config"
)

func durationFromMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

var rootCmd = &cobra.Command{
	Use:   "proctap",
	Short: "Capture the audio output of a single process",
	Long:  `proctap captures the audio a single process renders and streams it to stdout as linear PCM.`,
	RunE:  runCapture,
}

// runCapture is the main entry point that wires the coordinator to stdout.
func runCapture(_ *cobra.Command, _ []string) error {
	settings, err := config.Get()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pid := viper.GetInt("pid")
	if pid <= 0 {
		return fmt.Errorf("--pid is required and must be a positive process id")
	}

	if settings.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("starting capture", "pid", pid, "target", settings.TargetFormat(), "quality", settings.Quality())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	out := os.Stdout
	coordinator := proctap.New(pid, settings.TargetFormat(), settings.Quality(), nil)

	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer func() {
		if err := coordinator.Stop(); err != nil {
			log.Error("stop capture", "err", err)
		}
	}()

	log.Info("capture started", "pid", pid)

	readTimeoutMs := settings.ReadTimeoutMs

	for {
		select {
		case <-ctx.Done():
			log.Info("capture stopped")
			return nil
		default:
		}

		chunk := coordinator.Read(65536, durationFromMs(readTimeoutMs))
		if len(chunk) == 0 {
			continue
		}
		if _, err := out.Write(chunk); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().IntP("pid", "p", 0, "target process id to capture (required)")
	rootCmd.PersistentFlags().IntP("rate", "r", 48000, "target sample rate in Hz")
	rootCmd.PersistentFlags().IntP("channels", "c", 2, "target channel count")
	rootCmd.PersistentFlags().StringP("encoding", "e", "int16", "target sample encoding (int16, int24-packed, int24-in-32, int32, float32)")
	rootCmd.PersistentFlags().StringP("quality", "q", "low-latency", "resample quality (low-latency, high-quality)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug logging")

	cobra.CheckErr(viper.BindPFlag("pid", rootCmd.PersistentFlags().Lookup("pid")))
	cobra.CheckErr(viper.BindPFlag("target_sample_rate", rootCmd.PersistentFlags().Lookup("rate")))
	cobra.CheckErr(viper.BindPFlag("target_channels", rootCmd.PersistentFlags().Lookup("channels")))
	cobra.CheckErr(viper.BindPFlag("target_encoding", rootCmd.PersistentFlags().Lookup("encoding")))
	cobra.CheckErr(viper.BindPFlag("resample_quality", rootCmd.PersistentFlags().Lookup("quality")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

func initConfig() {
	if err := config.Init(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
