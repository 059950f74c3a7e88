package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiff(t *testing.T) {
	before := map[string]interface{}{
		"status":  "PENDING",
		"amount":  int64(15000),
		"balance": int64(15000),
	}
	after := map[string]interface{}{
		"status":     "VERIFIED",
		"amount":     15000, // 类型不同但 JSON 值相同，不算变更
		"receipt_no": "MTA-2025-0001",
	}

	diff := ComputeDiff(before, after)

	// 只保留值发生变化的字段
	assert.Contains(t, diff, "status")
	assert.Equal(t, "PENDING", diff["status"].Old)
	assert.Equal(t, "VERIFIED", diff["status"].New)

	assert.NotContains(t, diff, "amount")

	// 新增字段 Old 为空
	assert.Contains(t, diff, "receipt_no")
	assert.Nil(t, diff["receipt_no"].Old)

	// 消失字段 New 为空
	assert.Contains(t, diff, "balance")
	assert.Nil(t, diff["balance"].New)
}

func TestRecordAndListByEntity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	audit := NewAuditService(db)

	actor := int64(7)
	audit.Record(ctx, &actor, "payment.verify", "payment", "PMT-001",
		map[string]interface{}{"status": "PENDING"},
		map[string]interface{}{"status": "VERIFIED"},
		&AuditMeta{IP: "10.0.0.1", UserAgent: "curl/8.0"},
	)
	audit.Record(ctx, nil, "payment.submit", "payment", "PMT-002",
		map[string]interface{}{},
		map[string]interface{}{"status": "PENDING"},
		nil,
	)

	logs, err := audit.ListByEntity(ctx, "payment", "PMT-001", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	entry := logs[0]
	require.NotNil(t, entry.Actor)
	assert.Equal(t, int64(7), *entry.Actor)
	assert.Equal(t, "10.0.0.1", entry.IP)
	assert.Equal(t, "curl/8.0", entry.UserAgent)

	var diff map[string]FieldChange
	require.NoError(t, json.Unmarshal([]byte(entry.Diff), &diff))
	assert.Contains(t, diff, "status")
	assert.Equal(t, "VERIFIED", diff["status"].New)
}

func TestPurgeOlderThan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	audit := NewAuditService(db)

	audit.Record(ctx, nil, "tenant.onboard", "tenant", "TEN-001",
		map[string]interface{}{}, map[string]interface{}{"status": "CURRENT"}, nil)

	// 截止时间之前的日志全部清掉
	purged, err := audit.Purge(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	logs, err := audit.ListByEntity(ctx, "tenant", "TEN-001", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)

	// 再清一次无事发生
	purged, err = audit.Purge(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
}
