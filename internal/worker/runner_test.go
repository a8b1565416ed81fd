package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/internal/pkg/pubsub"
	"github.com/qs3c/pos_billing_server/internal/pkg/queue"
)

type memoryArchive struct {
	saved map[string][]byte
	err   error
}

func (a *memoryArchive) Save(key string, data []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.saved == nil {
		a.saved = map[string][]byte{}
	}
	a.saved[key] = data
	return "mem://" + key, nil
}

type fakeUploader struct {
	key         string
	contentType string
}

func (u *fakeUploader) UploadFile(objectKey string, data []byte, contentType string) (string, error) {
	u.key = objectKey
	u.contentType = contentType
	return "https://bucket.example.com/" + objectKey, nil
}

func TestRunner_RunAllArchivesReport(t *testing.T) {
	env := newTestEnv(t)
	sub := env.dueSubscription(t)
	archive := &memoryArchive{}
	runner := NewRunner(env.processor(approvingGateway("TX1")), archive, env.publisher)

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.Successful)

	key := ReportKey(result)
	assert.True(t, strings.HasPrefix(key, "billing-reports/2024/03/10/"))
	require.Contains(t, archive.saved, key)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(archive.saved[key], &report))
	assert.Equal(t, TriggerSchedule, report["trigger"])
	assert.Equal(t, result.RunID, report["run_id"])
	assert.EqualValues(t, 1, report["successful"])
	results, ok := report["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, sub.ID, results[0].(map[string]interface{})["subscription_id"])

	assert.Equal(t, []string{pubsub.EventChargeSucceeded, pubsub.EventRunCompleted}, env.publisher.types())
}

func TestRunner_EmptyPassSkipsArchive(t *testing.T) {
	env := newTestEnv(t)
	archive := &memoryArchive{}
	runner := NewRunner(env.processor(approvingGateway("TX1")), archive, nil)

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalProcessed)
	assert.Empty(t, archive.saved)
}

func TestRunner_ArchiveFailureDoesNotFailRun(t *testing.T) {
	env := newTestEnv(t)
	env.dueSubscription(t)
	runner := NewRunner(env.processor(approvingGateway("TX1")), &memoryArchive{err: errors.New("bucket gone")}, nil)

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
}

func TestRunner_HandleRunMessage(t *testing.T) {
	env := newTestEnv(t)
	mine := env.dueSubscription(t)
	env.dueSubscription(t)
	archive := &memoryArchive{}
	runner := NewRunner(env.processor(approvingGateway("TX1")), archive, nil)

	result, err := runner.HandleRunMessage(context.Background(), &queue.RunMessage{
		RunID:       "run-42",
		TenantID:    mine.TenantID,
		RequestedBy: "ops",
		RequestedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, mine.TenantID, result.TenantID)
	assert.Equal(t, 1, result.TotalProcessed)

	data := archive.saved[ReportKey(result)]
	require.NotNil(t, data)
	assert.Contains(t, string(data), `"requested_by": "ops"`)
	assert.Contains(t, string(data), `"trigger": "manual"`)
}

func TestRunner_SystemicFailure(t *testing.T) {
	env := newTestEnv(t)
	p := NewProcessor(&failingListStore{env.subs}, env.logs, env.customers, env.tenants,
		approvingGateway("TX1"), env.locker, nil, env.cfg)
	runner := NewRunner(p, &memoryArchive{}, nil)

	_, err := runner.RunAll(context.Background())
	assert.Error(t, err)
}

func TestRunner_DryRunDoesNotPublish(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Billing.DryRun = true
	env.dueSubscription(t)
	runner := NewRunner(env.processor(approvingGateway("TX1")), nil, env.publisher)

	result, err := runner.RunAll(context.Background())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Empty(t, env.publisher.types())
}

func TestLocalArchive_Save(t *testing.T) {
	dir := t.TempDir()
	archive := NewLocalArchive(dir)

	location, err := archive.Save("billing-reports/2024/03/10/run.json", []byte(`{"ok":true}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "local://"))

	data, err := os.ReadFile(filepath.Join(dir, "billing-reports", "2024", "03", "10", "run.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestOSSArchive_Save(t *testing.T) {
	uploader := &fakeUploader{}
	archive := NewOSSArchive(uploader)

	location, err := archive.Save("billing-reports/x.json", []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "billing-reports/x.json", uploader.key)
	assert.Equal(t, "application/json", uploader.contentType)
	assert.Equal(t, "https://bucket.example.com/billing-reports/x.json", location)
}
