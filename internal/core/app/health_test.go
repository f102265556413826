package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthServiceReportsProjects(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	coord := NewCoordinator(ws, CoordinatorOptions{})

	status := NewHealthService(ws, coord, true, nil).Check(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "not analyzed yet", status.Components["project:app"])
	assert.Equal(t, "missing but enabled in config", status.Components["history"])
	assert.Equal(t, "ok (0 queued)", status.Components["coordinator"])

	_, err := ws.Scan()
	require.NoError(t, err)
	_, err = ws.Analyze(context.Background())
	require.NoError(t, err)

	status = NewHealthService(ws, coord, true, &memoryHistory{}).Check(context.Background())
	assert.Equal(t, "up", status.Status)
	assert.Equal(t, "ok (2 modules, 2 up to date, 2 edges)", status.Components["project:app"])
	assert.Equal(t, "ok (1 modules, 1 up to date, 0 edges)", status.Components["project:base"])
	assert.Equal(t, "ok", status.Components["history"])
}

func TestHealthServiceWithoutWorkspace(t *testing.T) {
	status := NewHealthService(nil, nil, false, nil).Check(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "missing", status.Components["workspace"])
}
