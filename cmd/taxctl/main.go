package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

var rootCmd = &cobra.Command{
	Use:   "taxctl",
	Short: "Offline payroll and income tax calculator",
	Long: "Runs the HRMS tax engine against a YAML settings file: monthly payroll,\n" +
		"income tax on an annual amount, annual reconciliation, and payload checks.",
	SilenceUsage: true,
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taxctl %s (commit %s)\n", version, commit)
			if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
				fmt.Fprintln(cmd.OutOrStdout(), bi.Main.Version)
			}
		},
	}
}

func init() {
	rootCmd.PersistentFlags().String("settings", "configs/tax_settings.yaml", "Path to the YAML settings file")
	rootCmd.PersistentFlags().Int("year", 0, "Tax year (default: current year)")
	rootCmd.PersistentFlags().StringP("format", "f", "table", "Output format (table, json)")

	rootCmd.AddCommand(payrollCmd)
	rootCmd.AddCommand(incomeTaxCmd)
	rootCmd.AddCommand(annualCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
