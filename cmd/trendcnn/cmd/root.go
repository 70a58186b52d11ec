// Package cmd implements the trendcnn command line.
package cmd

import (
	"strings"

	"github.com/ldsec/trendCNN/config"
	libunlynx "github.com/ldsec/unlynx/lib"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.dedis.ch/onet/v3/log"
)

var rootCmd = &cobra.Command{
	Use:           "trendcnn",
	Short:         "train, evaluate and serve the 1-D CNN trend classifier",
	SilenceUsage:  true,
	SilenceErrors: true,
	// flags are bound per invocation, several commands share flag names
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
}

// Execute runs the command selected on the command line
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "toml configuration file, flags and TRENDCNN_* variables override it")
	flags.Int("debug", defaults.Debug, "log level, from 0 (warnings only) to 5")
	flags.Bool("timing", false, "print the duration of every phase")

	rootCmd.AddCommand(trainCmd, evaluateCmd, predictCmd, summaryCmd, serveCmd, generateCmd)
}

func initViper() {
	viper.SetEnvPrefix("TRENDCNN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig layers the config file, the environment and the flags
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	applyOverrides(v, &cfg)
	log.SetDebugVisible(cfg.Debug)
	libunlynx.TIME = v.GetBool("timing")
	return cfg, cfg.Validate()
}

var overrides = map[string]func(v *viper.Viper, c *config.Config){
	"debug":            func(v *viper.Viper, c *config.Config) { c.Debug = v.GetInt("debug") },
	"data":             func(v *viper.Viper, c *config.Config) { c.Data.Path = v.GetString("data") },
	"x-key":            func(v *viper.Viper, c *config.Config) { c.Data.XKey = v.GetString("x-key") },
	"y-key":            func(v *viper.Viper, c *config.Config) { c.Data.YKey = v.GetString("y-key") },
	"model":            func(v *viper.Viper, c *config.Config) { c.Output.ModelFile = v.GetString("model") },
	"export-dir":       func(v *viper.Viper, c *config.Config) { c.Output.ExportDir = v.GetString("export-dir") },
	"plot":             func(v *viper.Viper, c *config.Config) { c.Output.PlotFile = v.GetString("plot") },
	"epochs":           func(v *viper.Viper, c *config.Config) { c.Train.Epochs = v.GetInt("epochs") },
	"batch-size":       func(v *viper.Viper, c *config.Config) { c.Train.BatchSize = v.GetInt("batch-size") },
	"validation-split": func(v *viper.Viper, c *config.Config) { c.Train.ValidationSplit = v.GetFloat64("validation-split") },
	"optimizer":        func(v *viper.Viper, c *config.Config) { c.Train.Optimizer = v.GetString("optimizer") },
	"learn-rate":       func(v *viper.Viper, c *config.Config) { c.Train.LearnRate = v.GetFloat64("learn-rate") },
	"momentum":         func(v *viper.Viper, c *config.Config) { c.Train.Momentum = v.GetFloat64("momentum") },
	"seed":             func(v *viper.Viper, c *config.Config) { c.Train.Seed = v.GetInt64("seed") },
	"shuffle":          func(v *viper.Viper, c *config.Config) { c.Train.Shuffle = v.GetBool("shuffle") },
	"verbose":          func(v *viper.Viper, c *config.Config) { c.Train.Verbose = v.GetBool("verbose") },
	"storage":          func(v *viper.Viper, c *config.Config) { c.Storage.Backend = v.GetString("storage") },
	"storage-root":     func(v *viper.Viper, c *config.Config) { c.Storage.Root = v.GetString("storage-root") },
	"storage-prefix":   func(v *viper.Viper, c *config.Config) { c.Storage.Prefix = v.GetString("storage-prefix") },
	"minio-endpoint":   func(v *viper.Viper, c *config.Config) { c.Storage.Endpoint = v.GetString("minio-endpoint") },
	"minio-bucket":     func(v *viper.Viper, c *config.Config) { c.Storage.Bucket = v.GetString("minio-bucket") },
	"minio-access-key": func(v *viper.Viper, c *config.Config) { c.Storage.AccessKey = v.GetString("minio-access-key") },
	"minio-secret-key": func(v *viper.Viper, c *config.Config) { c.Storage.SecretKey = v.GetString("minio-secret-key") },
	"minio-region":     func(v *viper.Viper, c *config.Config) { c.Storage.Region = v.GetString("minio-region") },
	"minio-ssl":        func(v *viper.Viper, c *config.Config) { c.Storage.UseSSL = v.GetBool("minio-ssl") },
	"addr":             func(v *viper.Viper, c *config.Config) { c.Server.Addr = v.GetString("addr") },
}

func applyOverrides(v *viper.Viper, cfg *config.Config) {
	for key, apply := range overrides {
		if v.IsSet(key) {
			apply(v, cfg)
		}
	}
}

func dataFlags(flags *pflag.FlagSet, defaults config.Config) {
	flags.StringP("data", "d", defaults.Data.Path, "npz file with the windows and the labels")
	flags.String("x-key", defaults.Data.XKey, "name of the windows array")
	flags.String("y-key", defaults.Data.YKey, "name of the labels array")
}

func modelFlag(flags *pflag.FlagSet, defaults config.Config) {
	flags.StringP("model", "m", defaults.Output.ModelFile, "model archive")
}
