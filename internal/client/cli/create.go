package cli

import (
	"context"
	"encoding/json"
	"fmt"
)

func (c *Cli) runCreate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fieldsync-agent create <table> <json>")
	}
	table, payload := args[0], args[1]

	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	receipt, err := c.dataService.Create(ctx, table, json.RawMessage(payload))
	if err != nil {
		return err
	}

	c.io.Printf("Record %s/%s %s\n", table, receipt.RecordID, receipt.Status)
	c.printWriteWarnings(receipt)
	return nil
}
