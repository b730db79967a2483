package testkit

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/AllenThomasDev/causal-webapp/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLalondeDataGenerator_Basic(t *testing.T) {
	ds, err := NewLalondeDataGenerator(DefaultLalondeConfig()).Generate()
	require.NoError(t, err)

	assert.Equal(t, 614, ds.Rows())
	assert.Equal(t, LalondeColumns, ds.ColumnNames())

	treat, _ := ds.Column("treat")
	assert.Equal(t, []string{"0", "1"}, treat.Levels())

	var treated int
	for _, v := range treat.Values {
		treated += int(v)
	}
	assert.Greater(t, treated, 100)
	assert.Less(t, treated, 400)
}

func TestLalondeDataGenerator_Deterministic(t *testing.T) {
	a, err := NewLalondeDataGenerator(DefaultLalondeConfig()).Generate()
	require.NoError(t, err)
	b, err := NewLalondeDataGenerator(DefaultLalondeConfig()).Generate()
	require.NoError(t, err)

	for _, name := range LalondeColumns {
		ca, _ := a.Column(name)
		cb, _ := b.Column(name)
		assert.Equal(t, ca.Values, cb.Values, name)
	}
}

func TestLalondeDataGenerator_MissingRate(t *testing.T) {
	cfg := DefaultLalondeConfig()
	cfg.MissingRate = 0.2
	ds, err := NewLalondeDataGenerator(cfg).Generate()
	require.NoError(t, err)

	re75, _ := ds.Column("re75")
	missing := 0
	for _, v := range re75.Values {
		if math.IsNaN(v) {
			missing++
		}
	}
	assert.Greater(t, missing, 60)

	rows, err := ds.CompleteRows(LalondeColumns...)
	require.NoError(t, err)
	assert.Equal(t, ds.Rows()-missing, len(rows))
}

func TestWriteCSV(t *testing.T) {
	cfg := DefaultLalondeConfig()
	cfg.Rows = 5
	cfg.MissingRate = 1
	ds, err := NewLalondeDataGenerator(cfg).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, strings.Join(LalondeColumns, ","), lines[0])
	// re75 is the ninth column and always blank here
	assert.Equal(t, "", strings.Split(lines[1], ",")[8])
}

func TestTestKitFixtures(t *testing.T) {
	kit := NewTestKit()
	mock := kit.LalondeLLM()
	assert.Contains(t, mock.Responses, "role_inference")

	ds1, err := kit.LalondeDataset()
	require.NoError(t, err)
	ds2, err := kit.LalondeDataset()
	require.NoError(t, err)
	assert.Same(t, ds1, ds2)
}

func TestInMemoryLedgerAdapter(t *testing.T) {
	ledger := NewInMemoryLedgerAdapter()
	ctx := context.Background()
	snap := uuid.New()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.RecordRun(ctx, &models.RunRecord{ID: uuid.New(), SnapshotID: snap, Estimate: 1, CreatedAt: older}))
	require.NoError(t, ledger.RecordRun(ctx, &models.RunRecord{ID: uuid.New(), SnapshotID: snap, Estimate: 2, CreatedAt: older.Add(time.Hour)}))
	require.NoError(t, ledger.RecordRun(ctx, &models.RunRecord{ID: uuid.New(), SnapshotID: uuid.New(), Estimate: 3, CreatedAt: older}))

	runs, err := ledger.ListRuns(ctx, snap.String(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2.0, runs[0].Estimate)

	runs, err = ledger.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, ledger.RecordUsage(ctx, &models.LLMUsage{OperationType: models.OpRoleInference, TotalTokens: 10}))
	assert.Len(t, ledger.Usage(models.OpRoleInference), 1)
	assert.Empty(t, ledger.Usage(models.OpResultExplanation))
}
