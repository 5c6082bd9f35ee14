// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
	"github.com/xkilldash9x/applicant-courier/internal/observability"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

// app carries what every subcommand shares. Each root command gets its own, so tests can
// build commands side by side.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config
	logger  *zap.Logger

	// launch opens the browser the automation drives. Tests substitute an in-memory page.
	launch Launcher
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{launch: launchSession})
}

func newRootCommand(a *app) *cobra.Command {
	a.v = viper.New()

	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Courier messages job applicants from the hiring dashboard, one at a time.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(cmd); err != nil {
				return err
			}
			observability.InitializeLogger(a.cfg.Logger())
			a.logger = observability.GetLogger()
			a.logger.Debug("Starting courier", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml, then ~/.courier/config.yaml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	pf.String("store", "", "state backend: badger, postgres, redis or memory")
	pf.String("log-level", "", "log level override")

	rootCmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newStateCmd(a),
		newResetCmd(a),
		newDedupCmd(a),
	)
	return rootCmd
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig layers defaults, the config file, COURIER_* environment variables and
// flags, in increasing precedence.
func (a *app) initializeConfig(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading env file %s: %w", a.envFile, err)
		}
	}

	v := a.v
	config.SetDefaults(v)
	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Expand("~/.courier"); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("COURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"store.backend": "store",
		"logger.level":  "log-level",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// openStore opens the configured state backend.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Store(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return st, nil
}
