package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/client/syncer"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()
	c.io.Println("Starting sync cycle...")

	result, err := c.coordinator.ForceSync(ctx)
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInFlight) {
			c.io.Println("A sync cycle is already running.")
			return nil
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Sync cycle completed!")
	c.io.Println()
	c.io.Printf("Confirmed by server: %d operation(s)\n", result.Processed)
	c.io.Printf("Pulled changes:      %d record(s)\n", result.Pulled)
	if result.Failed > 0 {
		c.io.Printf("Failed (will retry): %d operation(s)\n", result.Failed)
	}
	if result.DeadLettered > 0 {
		c.io.Printf("Abandoned:           %d operation(s), see 'deadletter'\n", result.DeadLettered)
	}
	if result.Pending > 0 {
		c.io.Printf("Still pending:       %d operation(s)\n", result.Pending)
	}

	return nil
}
