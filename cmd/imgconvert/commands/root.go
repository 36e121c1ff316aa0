package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/local/imgconvert/internal/config"
	"github.com/local/imgconvert/internal/logger"
)

var (
	cfgFile string
	debug   bool
	noColor bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imgconvert",
	Short: "Convert images, PDFs and PSDs to JPEG, PNG, ICO, AVIF or PDF",
	Long: `imgconvert converts raster images, multi-page PDFs and layered PSD files
into JPEG, PNG, ICO, AVIF or PDF output, with optional resizing, size targeting
and background removal. Run it once with "convert" or as an HTTP service with "serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadDotEnv()
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if debug {
			cfg.Logging.Level = "debug"
		}
		if noColor {
			color.NoColor = true
		}
		return logger.Init(logger.Options{
			Level:        cfg.Logging.Level,
			Pretty:       cfg.Logging.Pretty,
			File:         cfg.Logging.File,
			MaxSizeMB:    cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAgeDays:   cfg.Logging.MaxAgeDays,
			Compress:     cfg.Logging.Compress,
			SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
			AxiomAPIKey:  cfg.Axiom.APIKey,
			AxiomOrgID:   cfg.Axiom.OrgID,
			AxiomDataset: cfg.Axiom.Dataset,
			AxiomFlush:   cfg.Axiom.FlushInterval,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and flushes the logger.
func Execute() error {
	defer logger.Close()
	return rootCmd.Execute()
}
