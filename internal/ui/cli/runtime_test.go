package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreapp "crossmod/internal/core/app"
	"crossmod/internal/core/config"
	"crossmod/internal/data/history"
	"crossmod/internal/shared/version"
)

const (
	typesASN = `Types DEFINITIONS ::= BEGIN
Id ::= INTEGER
END
`
	protoASN = `Proto DEFINITIONS ::= BEGIN
IMPORTS Id FROM Types;
Msg ::= SEQUENCE { id Id }
END
`
	brokenASN = `Proto DEFINITIONS ::= BEGIN
IMPORTS Id FROM Missing;
Msg ::= SEQUENCE { id Id }
END
`
)

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

// newProject lays out a single-project tree and returns its config path.
func newProject(t *testing.T, proto string, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "asn", "types.asn"), typesASN)
	writeFile(t, filepath.Join(dir, "asn", "proto.asn"), proto)

	cfgPath := filepath.Join(dir, config.DefaultFileName)
	content := "version = 1\n" +
		"[paths]\nproject_root = \"" + filepath.ToSlash(dir) + "\"\n" +
		"[[projects]]\nname = \"proto\"\nroots = [\"asn\"]\n" + extra
	writeFile(t, cfgPath, content)
	return dir, cfgPath
}

func TestApplyModeOptionsRejectsTraceAndImpact(t *testing.T) {
	opts := &cliOptions{trace: true, impact: "Types", args: []string{"a", "b"}}

	err := applyModeOptions(opts, config.Default(), "/work")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "cannot be combined") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptionsTraceRequiresTwoArgs(t *testing.T) {
	opts := &cliOptions{trace: true, args: []string{"only-one"}}

	err := applyModeOptions(opts, config.Default(), "/work")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "requires two module arguments") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptionsRejectsConflicts(t *testing.T) {
	tests := []struct {
		name string
		opts cliOptions
		want string
	}{
		{"once and watch", cliOptions{once: true, watch: true}, "--once and --watch"},
		{"query in watch mode", cliOptions{impact: "Types", watch: true}, "cannot be combined with --watch"},
		{"lookup with query", cliOptions{lookup: "Proto.Id", query: "SELECT modules"}, "--lookup cannot be combined"},
		{"unknown format", cliOptions{format: "xml"}, "--format must be"},
		{"history outputs", cliOptions{historyTSV: "out.tsv"}, "require --history"},
		{"bad since", cliOptions{history: true, since: "yesterday"}, "--since must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := applyModeOptions(&opts, config.Default(), "/work")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyModeOptionsPositionalRootsReplaceProjectRoots(t *testing.T) {
	opts := &cliOptions{args: []string{"specs", "/abs/more"}}
	cfg := config.Default()

	require.NoError(t, applyModeOptions(opts, cfg, "/work"))
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, config.DefaultProject, cfg.Projects[0].Name)
	assert.Equal(t, []string{filepath.Clean("/work/specs"), filepath.Clean("/abs/more")}, cfg.Projects[0].Roots)
}

func TestApplyModeOptionsPositionalRootsNeedSingleProject(t *testing.T) {
	opts := &cliOptions{args: []string{"specs"}}
	cfg := config.Default()
	cfg.Projects = []config.Project{{Name: "a", Roots: []string{"a"}}, {Name: "b", Roots: []string{"b"}}}

	err := applyModeOptions(opts, cfg, "/work")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single project")
}

func TestParseSince(t *testing.T) {
	got, err := parseSince("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseSince("2026-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), got)

	_, err = parseSince("03/01/2026")
	require.Error(t, err)
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, path, err := loadConfig("", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path, "no file means no hot reload")
	assert.Equal(t, config.Default().Projects, cfg.Projects)
}

func TestLoadConfigDiscoversFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.DefaultFileName), "[[projects]]\nname = \"specs\"\nroots = [\"specs\"]\n")

	cfg, path, err := loadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, config.DefaultFileName), path)
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "specs", cfg.Projects[0].Name)
}

func TestLoadConfigExplicitPathHasNoFallback(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), t.TempDir())
	require.Error(t, err)
}

func TestOpenHistoryStoreFollowsConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	paths := config.ResolvedPaths{ProjectRoot: dir, HistoryPath: filepath.Join(dir, "nested", "history.db")}

	store, err := openHistoryStore(cfg, paths, false)
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = openHistoryStore(cfg, paths, true)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, paths.HistoryPath, store.Path())
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--version"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "crossmod v"+version.Version+"\n", stdout.String())
}

func TestRunOnceWritesJSONReport(t *testing.T) {
	dir, cfgPath := newProject(t, protoASN, "")
	out := filepath.Join(dir, "out", "report.json")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "--format", "json", "--output", out}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var got struct {
		Errors  int `json:"errors"`
		Reports []struct {
			Project string `json:"project"`
			Status  string `json:"status"`
			Checked int    `json:"checked"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Zero(t, got.Errors)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, "proto", got.Reports[0].Project)
	assert.Equal(t, history.StatusCompleted, got.Reports[0].Status)
	assert.Equal(t, 2, got.Reports[0].Checked)
}

func TestRunOnceExitsWithFindings(t *testing.T) {
	_, cfgPath := newProject(t, brokenASN, "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath}, &stdout, &stderr)
	assert.Equal(t, exitFindings, code)
	assert.Contains(t, stdout.String(), "MISSINGMODULE")
	assert.Contains(t, stdout.String(), "asn/proto.asn")
}

func TestRunTraceAndImpact(t *testing.T) {
	_, cfgPath := newProject(t, protoASN, "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "--trace", "Proto", "Types"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "proto: Proto -> Types\n", stdout.String())

	stdout.Reset()
	code = run([]string{"--config", cfgPath, "--impact", "Types"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Proto")

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"--config", cfgPath, "--impact", "Nope"}, &stdout, &stderr)
	assert.Equal(t, exitFindings, code)
	assert.NotEmpty(t, stderr.String())
}

func TestRunLookup(t *testing.T) {
	_, cfgPath := newProject(t, protoASN, "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "--lookup", "Proto.Id"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Equal(t, "proto: Proto.Id -> Types.Id (imported type, asn/types.asn)\n", stdout.String())

	stdout.Reset()
	code = run([]string{"--config", cfgPath, "--lookup", "Proto.Missing"}, &stdout, &stderr)
	assert.Equal(t, exitFindings, code)
	assert.Contains(t, stderr.String(), "Missing")
}

func TestRunQuery(t *testing.T) {
	_, cfgPath := newProject(t, protoASN, "")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "--query", "SELECT modules WHERE fan_in >= 1"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Types")
	assert.NotContains(t, stdout.String(), "Proto ")
	assert.Contains(t, stdout.String(), "1 modules")

	stderr.Reset()
	code = run([]string{"--config", cfgPath, "--query", "SELECT nothing"}, &stdout, &stderr)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "invalid query")
}

func TestRunHistoryModeRecordsCycles(t *testing.T) {
	dir, cfgPath := newProject(t, protoASN, "[history]\nenabled = true\n")
	tsv := filepath.Join(dir, "trends", "history.tsv")

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"--config", cfgPath}, &stdout, &stderr), stderr.String())

	stdout.Reset()
	code := run([]string{"--config", cfgPath, "--history", "--history-tsv", tsv}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "proto: ")

	raw, err := os.ReadFile(tsv)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.GreaterOrEqual(t, len(lines), 3, "header plus one row per recorded cycle")
}

func TestObservabilityServerRoutes(t *testing.T) {
	_, cfgPath := newProject(t, protoASN, "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	ws, err := coreapp.NewWorkspace(cfg, coreapp.WorkspaceOptions{Root: cfg.Paths.ProjectRoot})
	require.NoError(t, err)
	_, err = ws.Scan()
	require.NoError(t, err)
	_, err = ws.Analyze(context.Background())
	require.NoError(t, err)

	coord := coreapp.NewCoordinator(ws, coreapp.CoordinatorOptions{})
	srv := NewObservabilityServer("127.0.0.1:0", ws, coreapp.NewHealthService(ws, coord, false, nil))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health coreapp.HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health.Status)

	cycles, err := http.Get(ts.URL + "/cycles")
	require.NoError(t, err)
	defer cycles.Body.Close()
	var reports []coreapp.CycleReport
	require.NoError(t, json.NewDecoder(cycles.Body).Decode(&reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "proto", reports[0].Project)

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
