package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/compozy/productgen/pkg/config"
	"github.com/compozy/productgen/pkg/logger"
)

const (
	defaultConfigFile = "productgen.yaml"
	defaultEnvFile    = ".env"
)

type sourcesKey struct{}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "productgen",
		Short:         "Compile product schemas and generate catalog records from unstructured text",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the configuration file")
	flags.String("env-file", defaultEnvFile, "Path to the environment file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.String("schema", "", "Base schema file (defaults to the bundled schema)")
	flags.String("instructions", "", "Instruction file applied to the base schema")
	flags.Bool("strict", true, "Compile in strict mode")

	root.AddCommand(
		SchemaCmd(),
		GenerateCmd(),
		ImportCmd(),
		ValidateCmd(),
		ConfigCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return run(ctx, RootCmd(), args, os.Stderr)
}

func run(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	code := ExitFatal
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	if exitErr == nil || exitErr.Err != nil {
		fmt.Fprintln(stderr, newStyles(stderr).failed.Render("Error:"), err)
	}
	return code
}

// SetupGlobalConfig loads .env, the YAML file, the environment and the
// changed flags, then attaches the configuration and logger to the command
// context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return fatal(err)
	}
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	flags, err := changedFlags(cmd)
	if err != nil {
		return err
	}
	svc := config.NewService()
	cfg, err := svc.Load(ctx, config.NewYAMLProvider(cfgFile), config.NewCLIProvider(flags))
	if err != nil {
		return fatal(fmt.Errorf("failed to load configuration: %w", err))
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = context.WithValue(ctx, sourcesKey{}, svc.Sources())
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "config_file", cfgFile, "provider", cfg.LLM.Provider, "sink", cfg.Sink.Kind)
	return nil
}

func sourcesFrom(ctx context.Context) map[string]config.SourceType {
	if s, ok := ctx.Value(sourcesKey{}).(map[string]config.SourceType); ok {
		return s
	}
	return nil
}

// changedFlags returns the typed values of the flags set on the command line
// that map to configuration paths.
func changedFlags(cmd *cobra.Command) (map[string]any, error) {
	out := map[string]any{}
	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil || !f.Changed {
			return
		}
		if _, ok := config.CLIFlagPaths[f.Name]; !ok {
			return
		}
		var value any
		var err error
		switch f.Value.Type() {
		case "bool":
			value, err = cmd.Flags().GetBool(f.Name)
		case "int":
			value, err = cmd.Flags().GetInt(f.Name)
		case "duration":
			value, err = cmd.Flags().GetDuration(f.Name)
		default:
			value = f.Value.String()
		}
		if err != nil {
			firstErr = fmt.Errorf("invalid --%s: %w", f.Name, err)
			return
		}
		out[f.Name] = value
	})
	return out, firstErr
}
