package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bombadil/exerciser/internal/runner"
	"github.com/bombadil/exerciser/pkg/types"
)

func TestTraceWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTraceWriter(dir, "run-1")
	require.NoError(t, err)

	click := types.BrowserAction{Kind: types.ActionClick, Name: "submit"}
	events := []runner.RunEvent{
		{
			Kind:          runner.RunEventNewState,
			Timestamp:     time.UnixMilli(0).UTC(),
			CoverageEdges: 3,
			NewEdges:      3,
			Properties: []runner.PropertyOutcome{
				{Name: "stopsEventually", Status: "Residual"},
			},
			DispatchedNext: &click,
		},
		{
			Kind:          runner.RunEventNewState,
			Timestamp:     time.UnixMilli(10).UTC(),
			CoverageEdges: 5,
			NewEdges:      2,
		},
	}

	for _, ev := range events {
		require.NoError(t, w.Write(ev))
	}
	require.NoError(t, w.Close())

	f, err := os.Open(filepath.Join(dir, "run-1.jsonl.zst"))
	require.NoError(t, err)
	defer f.Close()

	lines, err := ReadTrace(f)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, 3, lines[0].CoverageEdges)
	require.Equal(t, "Click", *lines[0].DispatchedNext)
	require.Equal(t, 5, lines[1].CoverageEdges)
	require.Nil(t, lines[1].DispatchedNext)
}
