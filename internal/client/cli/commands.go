package cli

import (
	"context"
	"fmt"
	"os"
)

func (c *Cli) Run(ctx context.Context, command string, args []string) {
	var err error

	switch command {
	case "create":
		err = c.runCreate(ctx, args)
	case "update":
		err = c.runUpdate(ctx, args)
	case "delete":
		err = c.runDelete(ctx, args)
	case "get":
		err = c.runGet(ctx, args)
	case "list":
		err = c.runList(ctx, args)
	case "sync":
		err = c.runSync(ctx)
	case "status":
		err = c.runStatus(ctx)
	case "deadletter":
		err = c.runDeadletter(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
