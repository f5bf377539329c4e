package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/fibreflow/internal/models"
)

func TestLedgerLifecycle(t *testing.T) {
	ledger := NewLedger(time.Minute)

	ledger.Begin(7)
	assert.Equal(t, 1, ledger.ActiveCount())

	entry, ok := ledger.Get(7)
	require.True(t, ok)
	assert.Equal(t, models.WorkerStatusInProgress, entry.Status)
	assert.Nil(t, entry.FinishedAt)

	ledger.Finish(7, models.WorkerStatusSuccess, map[string]interface{}{"found": true}, "")
	assert.Equal(t, 0, ledger.ActiveCount())

	entry, ok = ledger.Get(7)
	require.True(t, ok)
	assert.Equal(t, models.WorkerStatusSuccess, entry.Status)
	assert.Equal(t, true, entry.Result["found"])
	require.NotNil(t, entry.FinishedAt)
}

func TestLedgerFinishWithoutBegin(t *testing.T) {
	ledger := NewLedger(time.Minute)

	ledger.Finish(9, models.WorkerStatusError, nil, "portal unresponsive")

	entry, ok := ledger.Get(9)
	require.True(t, ok)
	assert.Equal(t, models.WorkerStatusError, entry.Status)
	assert.Equal(t, "portal unresponsive", entry.Error)
}

func TestLedgerUnknownJob(t *testing.T) {
	ledger := NewLedger(time.Minute)

	_, ok := ledger.Get(404)
	assert.False(t, ok)
}

func TestLedgerGetReturnsCopy(t *testing.T) {
	ledger := NewLedger(time.Minute)
	ledger.Begin(3)
	ledger.Finish(3, models.WorkerStatusSuccess, nil, "")

	entry, _ := ledger.Get(3)
	entry.Status = "mangled"

	fresh, _ := ledger.Get(3)
	assert.Equal(t, models.WorkerStatusSuccess, fresh.Status)
}

func TestLedgerFinishedEntriesAgeOut(t *testing.T) {
	ledger := NewLedger(30 * time.Millisecond)

	ledger.Begin(1)
	ledger.Finish(1, models.WorkerStatusSuccess, nil, "")

	_, ok := ledger.Get(1)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = ledger.Get(1)
	assert.False(t, ok, "finished entry must age out after the TTL")
}

func TestLedgerInProgressNeverAgesOut(t *testing.T) {
	ledger := NewLedger(30 * time.Millisecond)

	ledger.Begin(2)
	time.Sleep(60 * time.Millisecond)

	entry, ok := ledger.Get(2)
	require.True(t, ok, "a job still executing must stay queryable")
	assert.Equal(t, models.WorkerStatusInProgress, entry.Status)
}
