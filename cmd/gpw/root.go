package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// NewRootCmd returns the root command for the gpw tool
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gpw",
		Short:         "Hex-indexed world population pipeline",
		Long:          "gpw tessellates GPW raster grids into H3 records, combines them into a compacted population index, and serves point lookups over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gpw/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(newTessellateCmd())
	rootCmd.AddCommand(newCombineCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.gpw")
			viper.SetConfigName("config")
		}
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GPW")
	viper.AutomaticEnv()

	// Ignore missing config
	_ = viper.ReadInConfig()

	if verbose {
		_ = os.Setenv("LOG_LEVEL", "debug")
	}
}
