package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vektordb/vektor"
	"github.com/vektordb/vektor/model"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vektor",
	Short: "Vektor - local vector database with approximate nearest-neighbor search",
	Long: `Vektor manages a local vector database directory: durable record storage
in SQLite with an HNSW index for approximate nearest-neighbor search.

Records carry a caller-chosen external id, a float32 vector, and optional
JSON metadata. Vectors are unit-normalized on write; similarity is cosine.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vektor.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "./vektor-data", "database directory")
	rootCmd.PersistentFlags().Int("dimension", 384, "vector dimension")
	rootCmd.PersistentFlags().Int("m", 0, "HNSW connectivity (0 = default)")
	rootCmd.PersistentFlags().Int("ef-construction", 0, "HNSW construction breadth (0 = default)")
	rootCmd.PersistentFlags().Int("breadth", 0, "default search breadth (0 = default)")
	rootCmd.PersistentFlags().Int("max-capacity", 0, "index capacity bound (0 = unbounded)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log operations to stderr")

	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("dimension", rootCmd.PersistentFlags().Lookup("dimension"))
	viper.BindPFlag("m", rootCmd.PersistentFlags().Lookup("m"))
	viper.BindPFlag("ef_construction", rootCmd.PersistentFlags().Lookup("ef-construction"))
	viper.BindPFlag("breadth", rootCmd.PersistentFlags().Lookup("breadth"))
	viper.BindPFlag("max_capacity", rootCmd.PersistentFlags().Lookup("max-capacity"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vektor")
	}

	viper.SetEnvPrefix("VEKTOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openDB opens the configured database directory.
func openDB(ctx context.Context) (*vektor.DB, error) {
	logger := vektor.NoopLogger()
	if viper.GetBool("verbose") {
		logger = vektor.NewTextLogger(slog.LevelDebug)
	}

	return vektor.Open(ctx, viper.GetInt("dimension"),
		vektor.WithDataDir(viper.GetString("data_dir")),
		vektor.WithM(viper.GetInt("m")),
		vektor.WithEFConstruction(viper.GetInt("ef_construction")),
		vektor.WithSearchBreadth(viper.GetInt("breadth")),
		vektor.WithMaxCapacity(viper.GetInt("max_capacity")),
		vektor.WithLogger(logger),
	)
}

// parseVector decodes a JSON array of numbers, e.g. "[0.1, 0.2, 0.3]".
func parseVector(s string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("invalid vector %q: %w", s, err)
	}
	return vec, nil
}

// parseMetadata decodes a JSON object of scalar values.
func parseMetadata(s string) (model.Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var meta model.Metadata
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata %q: %w", s, err)
	}
	return meta, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
