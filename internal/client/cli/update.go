package cli

import (
	"context"
	"encoding/json"
	"fmt"
)

func (c *Cli) runUpdate(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: fieldsync-agent update <table> <id> <json>")
	}
	table, recordID, patch := args[0], args[1], args[2]

	if !json.Valid([]byte(patch)) {
		return fmt.Errorf("patch is not valid JSON")
	}

	receipt, err := c.dataService.Update(ctx, table, recordID, json.RawMessage(patch))
	if err != nil {
		return err
	}

	c.io.Printf("Record %s/%s %s\n", table, recordID, receipt.Status)
	c.printWriteWarnings(receipt)
	return nil
}
