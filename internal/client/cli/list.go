package cli

import (
	"context"
	"fmt"
	"sort"
)

func (c *Cli) runList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fieldsync-agent list <table>")
	}
	table := args[0]

	records, err := c.dataService.List(ctx, table)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		c.io.Printf("No records in %s\n", table)
		return nil
	}

	// Стабильный порядок вывода
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.io.Printf("=== %s (%d records) ===\n", table, len(records))
	for _, id := range ids {
		c.io.Printf("%s\t%s\n", id, compactJSON(records[id]))
	}

	return nil
}
