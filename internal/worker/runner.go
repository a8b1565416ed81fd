package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/pkg/queue"
)

// 触发来源
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Runner 在处理器外包一层：分配 run id、归档报告、发布完成事件
type Runner struct {
	processor *Processor
	archive   ReportArchive
	publisher EventPublisher
}

// NewRunner archive 和 publisher 都可以为 nil
func NewRunner(processor *Processor, archive ReportArchive, publisher EventPublisher) *Runner {
	return &Runner{
		processor: processor,
		archive:   archive,
		publisher: publisher,
	}
}

type runReport struct {
	Trigger     string `json:"trigger"`
	RequestedBy string `json:"requested_by,omitempty"`
	*ProcessingResult
}

// RunAll 处理所有租户
func (r *Runner) RunAll(ctx context.Context) (*ProcessingResult, error) {
	return r.run(ctx, uuid.NewString(), "", TriggerSchedule, "")
}

// RunTenant 处理单个租户
func (r *Runner) RunTenant(ctx context.Context, tenantID, trigger string) (*ProcessingResult, error) {
	return r.run(ctx, uuid.NewString(), tenantID, trigger, "")
}

// HandleRunMessage 处理队列中的手动触发请求
func (r *Runner) HandleRunMessage(ctx context.Context, msg *queue.RunMessage) (*ProcessingResult, error) {
	runID := msg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return r.run(ctx, runID, msg.TenantID, TriggerManual, msg.RequestedBy)
}

func (r *Runner) run(ctx context.Context, runID, tenantID, trigger, requestedBy string) (*ProcessingResult, error) {
	log.Printf("[Worker] run %s started (trigger=%s tenant=%q)", runID, trigger, tenantID)

	var (
		result *ProcessingResult
		err    error
	)
	if tenantID == "" {
		result, err = r.processor.ProcessAllDueSubscriptions(ctx)
	} else {
		result, err = r.processor.ProcessTenantSubscriptions(ctx, tenantID)
	}
	if err != nil {
		log.Printf("[Worker] run %s aborted: %v", runID, err)
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	result.RunID = runID

	log.Printf("[Worker] run %s finished: %s", runID, result.Summary())

	r.saveReport(&runReport{Trigger: trigger, RequestedBy: requestedBy, ProcessingResult: result})
	r.publishCompleted(ctx, result)

	return result, nil
}

// ReportKey 报告对象路径，按日期分目录
func ReportKey(result *ProcessingResult) string {
	return fmt.Sprintf("billing-reports/%s/%s.json", result.StartedAt.Format("2006/01/02"), result.RunID)
}

func (r *Runner) saveReport(report *runReport) {
	if r.archive == nil || report.TotalProcessed == 0 {
		return
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("[Worker] run %s: failed to marshal report: %v", report.RunID, err)
		return
	}

	location, err := r.archive.Save(ReportKey(report.ProcessingResult), data)
	if err != nil {
		log.Printf("[Worker] run %s: failed to archive report: %v", report.RunID, err)
		return
	}
	log.Printf("[Worker] run %s: report archived to %s", report.RunID, location)
}

func (r *Runner) publishCompleted(ctx context.Context, result *ProcessingResult) {
	if r.publisher == nil || result.DryRun || !r.processor.billing.EnableNotifications {
		return
	}

	err := r.publisher.Publish(context.WithoutCancel(ctx), &pubsub.BillingEvent{
		Type:       pubsub.EventRunCompleted,
		TenantID:   result.TenantID,
		Successful: result.Successful,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		OccurredAt: result.FinishedAt,
	})
	if err != nil {
		log.Printf("[Worker] run %s: failed to publish completion: %v", result.RunID, err)
	}
}
