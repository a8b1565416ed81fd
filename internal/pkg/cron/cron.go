package cron

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qs3c/pos_billing_server/internal/worker"
)

// ErrPassInProgress 上一轮扣款尚未结束
var ErrPassInProgress = errors.New("billing pass already in progress")

// BillingRunner 执行一轮全量扣款
type BillingRunner interface {
	RunAll(ctx context.Context) (*worker.ProcessingResult, error)
}

type Service struct {
	runner   BillingRunner
	interval time.Duration
	running  atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewService(runner BillingRunner, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		runner:   runner,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动定时扣款任务
func (s *Service) Start() {
	s.wg.Add(1)
	go s.loop()
	log.Printf("[Cron] billing service started, interval=%s", s.interval)
}

// Stop 停止定时任务，等待进行中的一轮结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		log.Println("[Cron] billing service stopped")
	})
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunNow(s.ctx); err != nil {
				if errors.Is(err, ErrPassInProgress) {
					log.Println("[Cron] previous pass still running, tick skipped")
					continue
				}
				log.Printf("[Cron] billing pass failed: %v", err)
			}
		}
	}
}

// RunNow 立即执行一轮扣款；已有一轮在执行时返回 ErrPassInProgress
func (s *Service) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	defer s.running.Store(false)

	result, err := s.runner.RunAll(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Cron] %s", result.Summary())
	return nil
}

// Running 当前是否有一轮正在执行
func (s *Service) Running() bool {
	return s.running.Load()
}
