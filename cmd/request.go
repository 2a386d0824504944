package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/citycab/dispatch/app"
	"github.com/citycab/dispatch/config"
	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/core/ridelog"
	"github.com/citycab/dispatch/infra/logger"
)

var (
	reqPickup  string
	reqDropoff string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Inject a test ride request and wait for its completion",
	RunE:  submitRequest,
}

func init() {
	requestCmd.Flags().StringVar(&reqPickup, "pickup", "Main St", "pickup location")
	requestCmd.Flags().StringVar(&reqDropoff, "dropoff", "Oak Ave", "dropoff location")
	rootCmd.AddCommand(requestCmd)
}

func submitRequest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New("request-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	// Subscribe before submitting so the completion entry cannot be missed.
	entries := svc.Audit.Subscribe()
	defer svc.Audit.Unsubscribe(entries)

	out, err := svc.Manager.SubmitRequest(reqPickup, reqDropoff)
	if err != nil {
		return err
	}
	if out.Ride.Status != model.RideAssigned {
		fmt.Printf("no driver available for %s -> %s\n", reqPickup, reqDropoff)
		return nil
	}
	fmt.Printf("ride %s assigned to %s\n", out.Ride.ID, out.DriverLabel)

	deadline := time.After(cfg.Completion.MaxDelay + 5*time.Second)
	for {
		select {
		case e := <-entries:
			if e.Kind == ridelog.RideCompleted && e.RideID == out.Ride.ID {
				fmt.Printf("ride %s completed, driver %s released\n", e.RideID, e.DriverID)
				return nil
			}
		case <-deadline:
			return fmt.Errorf("ride %s did not complete in time", out.Ride.ID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
