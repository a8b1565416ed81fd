package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/qs3c/pos_billing_server/config"
	"github.com/qs3c/pos_billing_server/internal/database"
	"github.com/qs3c/pos_billing_server/internal/gateway"
	"github.com/qs3c/pos_billing_server/internal/pkg/cron"
	"github.com/qs3c/pos_billing_server/internal/pkg/lock"
	"github.com/qs3c/pos_billing_server/internal/pkg/oss"
	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/pkg/queue"
	"github.com/qs3c/pos_billing_server/internal/repository"
	"github.com/qs3c/pos_billing_server/internal/worker"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 报告归档（可选）：优先 OSS，失败时落本地，后台补传
	var archive worker.ReportArchive
	if cfg.Report.Enabled {
		local := worker.NewLocalArchive(cfg.Report.LocalDir)
		archive = local
		if oss.Configured(&cfg.OSS) {
			ossClient, err := oss.NewClient(&cfg.OSS)
			if err != nil {
				log.Printf("Warning: Failed to init OSS client: %v", err)
			} else {
				log.Println("OSS client initialized")
				archive = worker.NewFallbackArchive(worker.NewOSSArchive(ossClient), local)
				go worker.NewReuploader(cfg.Report.LocalDir, ossClient).Start(ctx)
			}
		}
	}

	// 初始化 Queue、Pub/Sub 和分布式锁
	runQueue := queue.NewQueue(rdb, cfg.Queue.BillingRunQueue)
	publisher := pubsub.NewPublisher(rdb)
	locker := lock.NewRedisLocker(rdb)

	// 初始化 Repository
	subRepo := repository.NewSubscriptionRepository(db)
	logRepo := repository.NewPaymentLogRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	tenantRepo := repository.NewTenantRepository(db)

	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Billing.WithDefaults().GatewayTimeout())

	// 创建扣款处理器
	processor := worker.NewProcessor(subRepo, logRepo, customerRepo, tenantRepo, gw, locker, publisher, cfg)
	runner := worker.NewRunner(processor, archive, publisher)

	// 定时扣款
	cronService := cron.NewService(runner, cfg.Billing.WithDefaults().RunInterval())
	cronService.Start()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	log.Printf("Worker started, queue consumers: %d, dry-run: %v", maxWorkers, processor.DryRun())

	// 消费手动触发的扣款批次
	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					msg, err := runQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop run: %v", workerID, err)
						continue
					}

					if msg == nil {
						continue // 超时，继续等待
					}

					log.Printf("Worker %d: processing run %s (tenant=%q)", workerID, msg.RunID, msg.TenantID)
					if _, err := runner.HandleRunMessage(ctx, msg); err != nil {
						log.Printf("Worker %d: run %s failed: %v", workerID, msg.RunID, err)
					}
				}
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	cronService.Stop()
	wg.Wait()
	rdb.Close()
	log.Println("Worker shutdown complete")
}
