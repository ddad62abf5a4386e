package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"github.com/go-edhoc/edhoc-oscore/internal/config"
)

var (
	cfgFile  string
	debug    bool
	logLevel slog.LevelVar
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	Use:   "edhoc-oscore",
	Short: "EDHOC handshake and OSCORE protection for constrained CoAP devices",
	Long: `A command-line collaborator around the edhoc-oscore core library.
It drives EDHOC handshakes and OSCORE request/response protection; it
never implements protocol logic itself.
`,
}

// Execute adds all child commands to the root command. Called once by
// main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print debug logging")
	rootCmd.PersistentFlags().String("db", "", "credential store DSN")
	rootCmd.PersistentFlags().String("db-type", "sqlite", "credential store driver (sqlite|postgres)")

	cobra.OnInitialize(initConfig)
}

// initConfig loads the configuration file (if any) and binds flags.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			slog.Info("loaded configuration file", "path", cfgFile)
		}
	}
	viper.SetEnvPrefix("EDHOC_OSCORE")
	viper.AutomaticEnv()

	_ = viper.BindPFlag("db.dsn", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("db.type", rootCmd.PersistentFlags().Lookup("db-type"))

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to decode configuration", "error", err)
		os.Exit(1)
	}

	if debug {
		logLevel.Set(slog.LevelDebug)
	}

	// Have viper re-read the config file when it changes. cfg is decoded
	// once above and is not refreshed, nor is the credential store opened
	// from it.
	if cfgFile != "" {
		viper.WatchConfig()
	}
}
