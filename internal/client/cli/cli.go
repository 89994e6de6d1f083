// Package cli is the field-agent command surface: offline-first CRUD over the
// local cache plus explicit sync, status and dead-letter inspection commands.
package cli

import (
	"context"
	"fmt"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/data"
	"github.com/iudanet/fieldsync/internal/client/iocli"
	"github.com/iudanet/fieldsync/internal/client/storage"
	"github.com/iudanet/fieldsync/internal/client/syncer"
)

// SyncTrigger is the slice of the coordinator the CLI needs: run a cycle now
// and report the current state.
type SyncTrigger interface {
	ForceSync(ctx context.Context) (*syncer.CycleResult, error)
	State() syncer.State
}

type Cli struct {
	io          iocli.IO
	apiClient   httpclient.ClientAPI
	dataService data.Service
	coordinator SyncTrigger
	queue       storage.QueueStorage
	metadata    storage.MetadataStorage
}

func New(
	io iocli.IO,
	apiClient httpclient.ClientAPI,
	dataService data.Service,
	coordinator SyncTrigger,
	queue storage.QueueStorage,
	metadata storage.MetadataStorage,
) *Cli {
	return &Cli{
		io:          io,
		apiClient:   apiClient,
		dataService: dataService,
		coordinator: coordinator,
		queue:       queue,
		metadata:    metadata,
	}
}

func PrintUsage() {
	fmt.Println("FieldSync Agent")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  fieldsync-agent [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version        Show version information")
	fmt.Println("  --server URL     Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH        Path to local database (default: fieldsync-agent.db)")
	fmt.Println("  --token TOKEN    Device auth token (optional)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create <table> <json>        Create a record")
	fmt.Println("  update <table> <id> <json>   Apply a partial update to a record")
	fmt.Println("  delete <table> <id>          Delete a record")
	fmt.Println("  get <table> <id>             Show the local projection of a record")
	fmt.Println("  list <table>                 List local projections of a table")
	fmt.Println("  sync                         Run one sync cycle now")
	fmt.Println("  run                          Run as a daemon: periodic sync + connectivity wakeup")
	fmt.Println("  status                       Show queue and sync state")
	fmt.Println("  deadletter                   Show permanently failed operations")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  fieldsync-agent create work_orders '{\"title\":\"Replace bearing\",\"status\":\"OPEN\"}'")
	fmt.Println("  fieldsync-agent update work_orders WO-1001 '{\"status\":\"COMPLETED\"}'")
	fmt.Println("  fieldsync-agent list work_orders")
	fmt.Println("  fieldsync-agent sync")
	fmt.Println("  fieldsync-agent --server https://cmms.example.com status")
}
