package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/fieldsync/internal/client/storage"
)

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fieldsync-agent get <table> <id>")
	}
	table, recordID := args[0], args[1]

	record, err := c.dataService.Get(ctx, table, recordID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record not found: %s/%s", table, recordID)
		}
		return err
	}

	return c.printJSON(record)
}
