package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineStartedData(t *testing.T) {
	data := EngineStartedData{
		PortfolioID:     "pf-1",
		Engine:          "greeks",
		CalculationDate: "2026-07-30",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "pf-1")
	assert.Contains(t, string(jsonData), "greeks")

	var unmarshaled EngineStartedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestEngineCompletedData(t *testing.T) {
	data := EngineCompletedData{
		PortfolioID:     "pf-1",
		Engine:          "market_risk",
		CalculationDate: "2026-07-30",
		DurationSeconds: 1.25,
		RetryCount:      2,
		Warnings:        []string{"missing price for AAPL"},
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled EngineCompletedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
	assert.Equal(t, EngineCompleted, data.EventType())
}

func TestEngineFailedData(t *testing.T) {
	data := EngineFailedData{
		PortfolioID:     "pf-2",
		Engine:          "correlation",
		CalculationDate: "2026-07-30",
		Error:           "timeout contacting market data provider",
		Classification:  "transient",
		RetryCount:      3,
		DurationSeconds: 6.4,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "transient")

	var unmarshaled EngineFailedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestEngineSkippedData(t *testing.T) {
	data := EngineSkippedData{
		PortfolioID:     "pf-3",
		Engine:          "snapshot",
		CalculationDate: "2026-08-01",
		Reason:          "not a trading day",
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "not a trading day")

	var unmarshaled EngineSkippedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestBatchStartedAndCompletedData(t *testing.T) {
	started := BatchStartedData{CalculationDate: "2026-07-30", PortfolioCount: 12}
	jsonData, err := json.Marshal(started)
	require.NoError(t, err)
	var unmarshaledStarted BatchStartedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaledStarted))
	assert.Equal(t, started, unmarshaledStarted)

	completed := BatchCompletedData{
		CalculationDate: "2026-07-30",
		Completed:       10,
		Failed:          1,
		Skipped:         1,
		DurationSeconds: 42.5,
	}
	jsonData, err = json.Marshal(completed)
	require.NoError(t, err)
	var unmarshaledCompleted BatchCompletedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaledCompleted))
	assert.Equal(t, completed, unmarshaledCompleted)
}

func TestSnapshotWrittenData(t *testing.T) {
	data := SnapshotWrittenData{
		PortfolioID:     "pf-1",
		CalculationDate: "2026-07-30",
		TotalValue:      123456.78,
		DailyPnL:        -245.12,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled SnapshotWrittenData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestJobProgressInfo(t *testing.T) {
	progress := JobProgressInfo{
		Current: 45,
		Total:   100,
		Message: "Processing portfolios",
	}

	jsonData, err := json.Marshal(progress)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "45")
	assert.Contains(t, string(jsonData), "100")

	var unmarshaled JobProgressInfo
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, progress, unmarshaled)
}

func TestJobProgressInfo_WithHierarchicalProgress(t *testing.T) {
	progress := JobProgressInfo{
		Current:  4,
		Total:    11,
		Message:  "Running greeks engine",
		Phase:    "greeks",
		SubPhase: "pf-7",
		Details: map[string]interface{}{
			"positions_updated": 38,
			"positions_failed":  1,
		},
	}

	jsonData, err := json.Marshal(progress)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"phase":"greeks"`)
	assert.Contains(t, string(jsonData), `"sub_phase":"pf-7"`)

	var unmarshaled JobProgressInfo
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, progress.Phase, unmarshaled.Phase)
	assert.Equal(t, progress.SubPhase, unmarshaled.SubPhase)
	assert.Equal(t, float64(38), unmarshaled.Details["positions_updated"])
}

func TestJobProgressInfo_WithPhaseOnly(t *testing.T) {
	progress := JobProgressInfo{
		Current: 1,
		Total:   8,
		Message: "Starting batch",
		Phase:   "market_data",
	}

	jsonData, err := json.Marshal(progress)
	require.NoError(t, err)
	assert.NotContains(t, string(jsonData), `"sub_phase"`)
	assert.NotContains(t, string(jsonData), `"details"`)

	var unmarshaled JobProgressInfo
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, "", unmarshaled.SubPhase)
	assert.Nil(t, unmarshaled.Details)
}

func TestJobStatusData(t *testing.T) {
	now := time.Now()
	progress := &JobProgressInfo{Current: 5, Total: 10, Message: "Step 5 of 10"}

	data := JobStatusData{
		JobID:       "batch-2026-07-30",
		JobType:     "daily_batch",
		Status:      "progress",
		Description: "Running daily risk batch",
		Progress:    progress,
		Duration:    15.5,
		Metadata:    map[string]interface{}{"engine": "factors"},
		Timestamp:   now,
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "batch-2026-07-30")
	assert.Contains(t, string(jsonData), "daily_batch")

	var unmarshaled JobStatusData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data.JobID, unmarshaled.JobID)
	assert.Equal(t, data.JobType, unmarshaled.JobType)
	assert.Equal(t, data.Status, unmarshaled.Status)
	require.NotNil(t, unmarshaled.Progress)
	assert.Equal(t, progress.Current, unmarshaled.Progress.Current)
}

func TestJobStatusData_EventType(t *testing.T) {
	testCases := []struct {
		status       string
		expectedType EventType
	}{
		{"started", JobStarted},
		{"progress", JobProgress},
		{"completed", JobCompleted},
		{"failed", JobFailed},
		{"unknown", JobStarted}, // Fallback
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			data := &JobStatusData{Status: tc.status}
			assert.Equal(t, tc.expectedType, data.EventType())
		})
	}
}

func TestJobStatusData_WithError(t *testing.T) {
	data := JobStatusData{
		JobID:       "batch-2026-07-31",
		JobType:     "daily_batch",
		Status:      "failed",
		Description: "Running daily risk batch",
		Error:       "market data provider unreachable",
		Duration:    5.2,
		Timestamp:   time.Now(),
	}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "market data provider unreachable")

	var unmarshaled JobStatusData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data.Error, unmarshaled.Error)
}

func TestEventWithData_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	ev := &EventWithData{
		Type:      EngineCompleted,
		Timestamp: now,
		Module:    "batch",
		Data: &EngineCompletedData{
			PortfolioID:     "pf-9",
			Engine:          "stress",
			CalculationDate: "2026-07-30",
			DurationSeconds: 0.8,
		},
	}

	jsonData, err := json.Marshal(ev)
	require.NoError(t, err)

	var unmarshaled EventWithData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, EngineCompleted, unmarshaled.Type)
	assert.Equal(t, "batch", unmarshaled.Module)
	require.IsType(t, &EngineCompletedData{}, unmarshaled.Data)
	assert.Equal(t, "pf-9", unmarshaled.Data.(*EngineCompletedData).PortfolioID)
}

func TestEventDataInterface(t *testing.T) {
	testCases := []struct {
		name     string
		data     EventData
		contains []string
	}{
		{
			name:     "EngineCompletedData",
			data:     &EngineCompletedData{PortfolioID: "pf-1", Engine: "greeks"},
			contains: []string{"pf-1", "greeks"},
		},
		{
			name:     "SnapshotWrittenData",
			data:     &SnapshotWrittenData{PortfolioID: "pf-2", TotalValue: 1000},
			contains: []string{"pf-2", "1000"},
		},
		{
			name:     "JobStatusData",
			data:     &JobStatusData{JobID: "test_job", JobType: "test_type", Status: "started"},
			contains: []string{"test_job", "test_type", "started"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jsonData, err := json.Marshal(tc.data)
			require.NoError(t, err)
			for _, substr := range tc.contains {
				assert.Contains(t, string(jsonData), substr)
			}
		})
	}
}
