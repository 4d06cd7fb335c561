// Command pikavd runs a pikav publisher node, or issues a one-shot publish
// against a running node's cluster RPC. Subcommand split mirrors upstream's
// cmd/main.rs (clap "serve"/"publish" subcommands).
package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	rootCmd := &cobra.Command{
		Use:   "pikavd",
		Short: "pikav publish/subscribe event bus node",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPublishCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("pikavd: fatal")
	}
}

// bindConfigFlag registers the -c/--config flag. loadConfigFile then reads
// that file as an optional source beneath environment variables, mirroring
// config::Config::builder().add_source(File(path)).add_source(Environment).
func bindConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to a YAML config file")
}

func loadConfigFile(cmd *cobra.Command) error {
	viper.SetEnvPrefix("PIKAV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}
