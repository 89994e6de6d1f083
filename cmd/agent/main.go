package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpclient "github.com/iudanet/fieldsync/internal/client/api"
	"github.com/iudanet/fieldsync/internal/client/cli"
	"github.com/iudanet/fieldsync/internal/client/data"
	"github.com/iudanet/fieldsync/internal/client/intercept"
	"github.com/iudanet/fieldsync/internal/client/iocli"
	"github.com/iudanet/fieldsync/internal/client/storage/boltdb"
	"github.com/iudanet/fieldsync/internal/client/syncer"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "fieldsync-agent.db", "Path to local database")
	token := flag.String("token", "", "Device auth token (optional)")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	ctx := context.Background()

	// Логи агента идут в stderr, чтобы не мешать выводу команд
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var opts []httpclient.Option
	if *token != "" {
		opts = append(opts, httpclient.WithAuthToken(*token))
	}
	apiClient := httpclient.NewClient(*serverURL, opts...)

	// Перехватчик пишет сквозь сеть, а при недоступности сервера кладет
	// операцию в очередь и обновляет локальную проекцию
	interceptor := intercept.New(apiClient, boltStorage, boltStorage, boltStorage, logger)
	dataService := data.NewService(interceptor, boltStorage, boltStorage)

	coordinator := syncer.New(apiClient, boltStorage, boltStorage, boltStorage, logger, syncer.DefaultConfig())
	interceptor.SetResumeHook(coordinator.ResumeSync)

	if command == "run" {
		runDaemon(ctx, logger, apiClient, boltStorage, coordinator)
		return
	}

	c := cli.New(iocli.NewStdio(), apiClient, dataService, coordinator, boltStorage, boltStorage)
	c.Run(ctx, command, args[1:])
}

// runDaemon держит агент в фоне: периодический цикл плюс пробуждение при
// восстановлении связи. Останавливается по SIGINT/SIGTERM.
func runDaemon(
	ctx context.Context,
	logger *slog.Logger,
	apiClient httpclient.ClientAPI,
	boltStorage *boltdb.Storage,
	coordinator *syncer.Coordinator,
) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator.Start(ctx)
	defer coordinator.Stop()

	wakeup := syncer.NewEagerWakeup(apiClient, boltStorage, logger, 0)
	wakeup.Start(coordinator.ResumeSync)
	defer wakeup.Stop()

	fmt.Println("FieldSync agent running, Ctrl+C to stop")
	<-ctx.Done()
	fmt.Println("Stopping")
}

func printVersion() {
	fmt.Printf("FieldSync Agent\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
