package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LynnColeArt/levmarq"
)

// New returns the root levmarq command
func New() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "levmarq",
		Short: "Batched Levenberg-Marquardt waveform fitting",
		Long: `Fit a parametric model to every waveform of a raw int16 sample file,
or of a synthetic stream, one independent Levenberg-Marquardt solve per event.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			logrus.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.AddCommand(fitCmd(), configCmd(), deviceCmd(), versionCmd())
	return cmd
}

func configCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "YAML configuration file")
	return cmd
}

func deviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Describe the host the kernels run on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := levmarq.NewDevice(0)
			defer dev.Close()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Device:   %s\n", dev.Name)
			fmt.Fprintf(w, "Cores:    %d\n", dev.NumCores)
			fmt.Fprintf(w, "Workers:  %d\n", dev.Workers())
			fmt.Fprintf(w, "Threads:  up to %d per event\n", dev.MaxThreads)
			fmt.Fprintf(w, "Features: %s\n", dev.Features)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the levmarq version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v, sum := levmarq.Version()
			if v == "" {
				v = "unknown"
			}
			if sum != "" {
				v += " " + sum
			}
			fmt.Fprintln(cmd.OutOrStdout(), "levmarq", v)
		},
	}
}

func loadConfig(path string) (levmarq.Config, error) {
	if path == "" {
		return levmarq.DefaultConfig(), nil
	}
	return levmarq.LoadConfig(path)
}
