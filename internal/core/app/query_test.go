package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceQueryModules(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	_, err := ws.Scan()
	require.NoError(t, err)
	_, err = ws.Analyze(context.Background())
	require.NoError(t, err)

	rows := ws.ModuleRows()
	require.Len(t, rows, 3)

	got, err := ws.QueryModules(`SELECT modules WHERE fan_out >= 1`, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Main", got[0].Name)
	assert.Equal(t, "app", got[0].Project)
	assert.Equal(t, "asn1", got[0].Notation)
	assert.Equal(t, 1, got[0].Assignments)
	assert.True(t, got[0].UpToDate)

	got, err = ws.QueryModules(`SELECT modules WHERE fan_in = 1 AND project = "app"`, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Util", got[0].Name)

	_, err = ws.QueryModules(`SELECT files`, 0)
	require.Error(t, err)
}
