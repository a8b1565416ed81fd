package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/pos_billing_server/config"
	"github.com/qs3c/pos_billing_server/internal/database"
	"github.com/qs3c/pos_billing_server/internal/gateway"
	"github.com/qs3c/pos_billing_server/internal/pkg/lock"
	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/repository"
	"github.com/qs3c/pos_billing_server/internal/worker"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to config file")
	tenantID   = flag.String("tenant", "", "Only process this tenant (default: all tenants)")
	dryRun     = flag.Bool("dry-run", false, "Dry run mode, don't charge or write anything")
)

func main() {
	flag.Parse()

	log.Println("Starting billing run...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dryRun {
		cfg.Billing.DryRun = true
	}
	log.Printf("Mode: dry-run=%v tenant=%q", cfg.Billing.DryRun, *tenantID)

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	// Redis 可选：有则与 worker 共享订阅锁并推送事件
	var (
		locker    lock.Locker
		publisher worker.EventPublisher
	)
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: redis unavailable, using in-process locks: %v", err)
		locker = lock.NewMemoryLocker()
	} else {
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		publisher = pubsub.NewPublisher(rdb)
	}

	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Billing.WithDefaults().GatewayTimeout())
	processor := worker.NewProcessor(
		repository.NewSubscriptionRepository(db),
		repository.NewPaymentLogRepository(db),
		repository.NewCustomerRepository(db),
		repository.NewTenantRepository(db),
		gw,
		locker,
		publisher,
		cfg,
	)

	var archive worker.ReportArchive
	if cfg.Report.Enabled {
		archive = worker.NewLocalArchive(cfg.Report.LocalDir)
	}
	runner := worker.NewRunner(processor, archive, publisher)

	// Ctrl-C 停止领取新订阅，已开始的扣款会完成
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *worker.ProcessingResult
	if *tenantID != "" {
		result, err = runner.RunTenant(ctx, *tenantID, worker.TriggerCLI)
	} else {
		result, err = runner.RunAll(ctx)
	}
	if err != nil {
		log.Fatalf("Billing run failed: %v", err)
	}

	printSummary(result)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func printSummary(result *worker.ProcessingResult) {
	fmt.Println("\n========================================")
	fmt.Printf("Run %s\n", result.RunID)
	fmt.Println(result.Summary())
	for _, r := range result.Results {
		if r.Status == worker.ResultSuccess {
			fmt.Printf("  [%s] %s customer=%s txn=%s\n", r.Status, r.SubscriptionID, r.CustomerID, r.TransactionID)
			continue
		}
		fmt.Printf("  [%s] %s customer=%s reason=%s\n", r.Status, r.SubscriptionID, r.CustomerID, r.Error)
	}
	fmt.Println("========================================")
}
