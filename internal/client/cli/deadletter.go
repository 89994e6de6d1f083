package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runDeadletter(ctx context.Context) error {
	letters, err := c.queue.ListDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	if len(letters) == 0 {
		c.io.Println("No abandoned operations.")
		return nil
	}

	c.io.Printf("=== Abandoned operations (%d) ===\n", len(letters))
	c.io.Println()
	for _, letter := range letters {
		op := letter.Operation
		c.io.Printf("%s  %s %s/%s\n", op.ID, op.Kind, op.TableName, op.RecordID)
		c.io.Printf("  reason:    %s\n", letter.Reason)
		c.io.Printf("  failed at: %s\n", letter.FailedAt.Format(time.RFC3339))
		if len(op.Payload) > 0 {
			c.io.Printf("  payload:   %s\n", compactJSON(op.Payload))
		}
		c.io.Println()
	}

	return nil
}
