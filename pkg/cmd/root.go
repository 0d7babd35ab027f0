package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/mailtask/pkg/config"
	"github.com/telekom/mailtask/pkg/system"
)

// Environment fallbacks for the persistent flags.
const (
	EnvSecrets = "MAILTASK_SECRETS"
	EnvDebug   = "MAILTASK_DEBUG"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// Logger replaces the logger built from --debug and logging.debug. Tests use it.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath  string
	secretsSpec string
	debug       bool
	writer      io.Writer

	cfg    config.Config
	logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{OutputWriter: os.Stdout}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{configPath: cfg.ConfigPath, writer: cfg.OutputWriter, logger: cfg.Logger}

	root := &cobra.Command{
		Use:           "mailtask",
		Short:         "Run workflow mail tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = cmd.OutOrStdout()
			}
			if rt.secretsSpec == "" {
				rt.secretsSpec = os.Getenv(EnvSecrets)
			}
			if !rt.debug {
				rt.debug = strings.EqualFold(os.Getenv(EnvDebug), "true")
			}
			if cmd.Name() == "version" {
				return nil
			}
			return rt.load()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to the system config file (default $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&rt.secretsSpec, "secrets", "", "Secrets backend: file:<path>, env or keyring:<service>")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		NewSendCommand(rt),
		NewCheckConfigCommand(rt),
		NewVersionCommand(),
	)
	return root
}

// load reads, defaults and validates the system config and sets up logging.
func (rt *runtimeState) load() error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Defaults(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt.cfg = cfg

	if rt.logger == nil {
		logger, err := system.NewLogger(rt.debug || cfg.Logging.Debug)
		if err != nil {
			return err
		}
		rt.logger = logger
	}
	return nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}
