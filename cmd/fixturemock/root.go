package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sophialabs/fixturemock/internal/app"
)

// errSuiteFailed is returned when the run completed but some fixture failed
// or some definition was never invoked. The report has already been printed.
type errSuiteFailed struct {
	failed, uncovered int
}

func (e errSuiteFailed) Error() string {
	return fmt.Sprintf("%d fixtures failed, %d definitions uncovered", e.failed, e.uncovered)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "fixturemock",
		Short: "Replay HTTP fixtures against a service and mock its dependencies",
		Long: `fixturemock sends the requests recorded in fixture files to a service under
test and compares its answers with the recorded responses. Provider blocks in
the fixtures stand up a mock endpoint the service can call while it works.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newRunCmd(stdout, stderr))
	root.AddCommand(newServeCmd(stderr))
	return root
}

// loadConfig starts from the defaults, overlays the --config file when set,
// and leaves flag overrides to the caller.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	cfg := app.DefaultConfig()
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return cfg, nil
	}
	if err := app.LoadFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		fixtures   string
		targetURL  string
		mockPort   int
		watch      bool
		logLevel   string
		rate       float64
		timeout    time.Duration
		targetWait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every fixture against the service under test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("fixtures") {
				cfg.FixturesDir = fixtures
			}
			if flags.Changed("target") {
				cfg.TargetURL = targetURL
			}
			if flags.Changed("mock-port") {
				cfg.MockPort = mockPort
			}
			if flags.Changed("watch") {
				cfg.Watch = watch
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("rate") {
				cfg.RequestRate = rate
			}
			if flags.Changed("timeout") {
				cfg.RequestTimeout = timeout
			}
			if flags.Changed("target-wait") {
				cfg.TargetWait = targetWait
			}

			a, err := app.New(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			report, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			if !report.Passed() {
				return errSuiteFailed{failed: len(report.Failed()), uncovered: len(report.Uncovered)}
			}
			return nil
		},
	}

	defaults := app.DefaultConfig()
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().StringVar(&fixtures, "fixtures", defaults.FixturesDir, "directory containing fixture files")
	cmd.Flags().StringVar(&targetURL, "target", defaults.TargetURL, "base URL of the service under test")
	cmd.Flags().IntVar(&mockPort, "mock-port", defaults.MockPort, "mock endpoint port for provider blocks without one")
	cmd.Flags().BoolVar(&watch, "watch", false, "rerun the suite when fixture files change")
	cmd.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().Float64Var(&rate, "rate", defaults.RequestRate, "maximum requests per second to the target (0 = unlimited)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaults.RequestTimeout, "timeout of a single request to the target")
	cmd.Flags().DurationVar(&targetWait, "target-wait", defaults.TargetWait, "wait this long for the target to accept connections (0 = no wait)")
	return cmd
}

func newServeCmd(stderr io.Writer) *cobra.Command {
	var (
		defsPath string
		host     string
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve provider definitions from a file until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.MockPort = port
			}
			if flags.Changed("host") {
				cfg.MockHost = host
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			a, err := app.NewMockOnly(cfg, stderr)
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context(), defsPath, cfg.MockPort)
		},
	}

	defaults := app.DefaultConfig()
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().StringVar(&defsPath, "defs", "", "fixture or definitions file to serve")
	cmd.Flags().StringVar(&host, "host", defaults.MockHost, "interface to listen on")
	cmd.Flags().IntVar(&port, "port", defaults.MockPort, "port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("defs")
	return cmd
}
