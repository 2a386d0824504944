package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citycab/dispatch/config"
	"github.com/citycab/dispatch/core/pool"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "Fleet related commands",
}

var driversLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the configured fleet roster",
	RunE:  runDriversLs,
}

func init() {
	driversCmd.AddCommand(driversLsCmd)
	rootCmd.AddCommand(driversCmd)
}

func runDriversLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	p, err := pool.New(cfg.Roster())
	if err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	for _, d := range p.Snapshot() {
		fmt.Printf("%s\t%s\t%s\n", d.ID, d.Label(), d.Status)
	}
	return nil
}
