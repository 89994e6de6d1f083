package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fieldsync-agent delete <table> <id>")
	}
	table, recordID := args[0], args[1]

	receipt, err := c.dataService.Delete(ctx, table, recordID)
	if err != nil {
		return err
	}

	c.io.Printf("Record %s/%s %s\n", table, recordID, receipt.Status)
	c.printWriteWarnings(receipt)
	return nil
}
