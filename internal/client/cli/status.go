package cli

import (
	"context"
	"fmt"
	"sort"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Sync Status ===")
	c.io.Println()

	clientID, err := c.metadata.ClientID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client id: %w", err)
	}

	c.io.Printf("Client ID:  %s\n", clientID)
	c.io.Printf("Sync state: %s\n", c.coordinator.State())

	lastSync, err := c.metadata.GetLastSyncTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last sync timestamp: %w", err)
	}
	if lastSync == 0 {
		c.io.Println("Last sync:  never")
	} else {
		c.io.Printf("Last sync:  cursor %d\n", lastSync)
	}

	counts, err := c.queue.CountPendingByTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending operations: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	c.io.Println()
	if total == 0 {
		c.io.Println("✓ All local changes synchronized")
	} else {
		c.io.Printf("⚠️  Pending sync: %d operation(s)\n", total)
		tables := make([]string, 0, len(counts))
		for table := range counts {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			c.io.Printf("  %s: %d\n", table, counts[table])
		}
		c.io.Println("Run 'fieldsync-agent sync' to synchronize with server.")
	}

	letters, err := c.queue.ListDeadLetters(ctx)
	if err == nil && len(letters) > 0 {
		c.io.Println()
		c.io.Printf("⚠️  %d abandoned operation(s), see 'deadletter'\n", len(letters))
	}

	// Состояние на стороне сервера - best effort, offline это не ошибка
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	serverStatus, err := c.apiClient.Status(sctx, clientID)
	if err != nil {
		c.io.Println()
		c.io.Printf("Server unreachable: %v\n", err)
		return nil
	}

	c.io.Println()
	c.io.Printf("Server status:  %s\n", serverStatus.Status)
	if serverStatus.LastSync > 0 {
		c.io.Printf("Server cursor:  %d\n", serverStatus.LastSync)
	}
	if serverStatus.LastError != "" {
		c.io.Printf("Last error:     %s\n", serverStatus.LastError)
	}

	return nil
}
