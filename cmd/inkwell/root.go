package main

import (
	"github.com/spf13/cobra"

	"github.com/inkwell-scan/inkwell/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Scanned-document to typeset LaTeX conversion pipeline",
	Long: `Inkwell converts scanned or handwritten documents into typeset LaTeX
output using a vision model for transcription.

The pipeline includes:
  - Page rasterization and transcription with placeholder markers
  - User-declared segmentation of tables and diagrams
  - Optional AI redrawing of segmented regions
  - Final two-pass LaTeX compilation to PDF`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.inkwell/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "inkwell home directory (default: ~/.inkwell)",
	)

	rootCmd.AddCommand(versionCmd)
}
