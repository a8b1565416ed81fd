package main

import (
	"context"
	"fmt"
	"log"

	"github.com/qs3c/pos_billing_server/config"
	"github.com/qs3c/pos_billing_server/internal/api"
	"github.com/qs3c/pos_billing_server/internal/api/handler"
	"github.com/qs3c/pos_billing_server/internal/database"
	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/pkg/queue"
	"github.com/qs3c/pos_billing_server/internal/pkg/ws"
	"github.com/qs3c/pos_billing_server/internal/repository"
	"github.com/qs3c/pos_billing_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
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

	// 初始化 Queue
	runQueue := queue.NewQueue(rdb, cfg.Queue.BillingRunQueue)

	// 初始化 WebSocket Hub，订阅 worker 发布的扣款事件
	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		if err := subscriber.Subscribe(context.Background(), wsHub.ForwardBillingEvent); err != nil {
			log.Printf("Billing event subscription stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 初始化 Repository
	subRepo := repository.NewSubscriptionRepository(db)
	logRepo := repository.NewPaymentLogRepository(db)
	tenantRepo := repository.NewTenantRepository(db)

	// 初始化 Service
	billingService := service.NewBillingService(subRepo, logRepo, tenantRepo, runQueue)

	// 初始化 Handler
	billingHandler := handler.NewBillingHandler(billingService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins)

	// 初始化 Router
	router := api.NewRouter(billingHandler, websocketHandler, cfg)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
