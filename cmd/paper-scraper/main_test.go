package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
mode: parallel
max_workers: 4
output_dir: "./out"
sources:
  - name: doi
    template: "https://doi.org/{doi}"
`
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", content)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "parallel", cfg.Mode)
	assert.Equal(t, 4, cfg.MaxWorkers)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "doi", cfg.Sources[0].Name)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "bad.yaml", "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate_Defaults(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "mode: sequential\n")

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "WARN: no sources configured")
	assert.Contains(t, out, "OK: [doi]")
	assert.Contains(t, out, "OK: [pmc]")
	assert.Contains(t, out, "Configuration valid")
}

func TestDoValidate_InvalidSource(t *testing.T) {
	content := `
sources:
  - name: oa
    type: unpaywall
`
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", content)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "needs an email")
	assert.NotContains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_BadMode(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "mode: turbo\n")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doValidate(cfgPath, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "mode must be")
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoListSources(t *testing.T) {
	content := `
sources:
  - name: scihub
    template: "https://mirror.example/{doi}"
  - name: oa
    type: unpaywall
    email: me@example.org
browser:
  enabled: true
  proxy_template: "https://proxy.example.edu/login?url=https://doi.org/{doi}"
`
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", content)

	var stdout, stderr bytes.Buffer
	exitCode := doListSources(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "1. scihub")
	assert.Contains(t, out, "2. oa")
	assert.Contains(t, out, "unpaywall")
	assert.Contains(t, out, "Browser fallback: https://proxy.example.edu")
	assert.Less(t, strings.Index(out, "scihub"), strings.Index(out, "oa "), "sources are listed in order")
}

func TestDoListSources_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doListSources("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"download", "resume", "harvest", "validate", "list-sources", "mcp-server", "version"} {
		assert.Contains(t, out, cmd)
	}
}

// publisher serves PDFs for DOIs under 10.1000/ok and 404 for everything else
func publisher(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/doi/10.1000/ok") {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "%PDF-1.4\n%%EOF\n")
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func downloadConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
output_dir: %q
state_dir: %q
mirror_backoff: -1s
identifier_pause: -1s
sources:
  - name: local
    template: "%s/doi/{doi}"
`, filepath.Join(dir, "papers"), filepath.Join(dir, "state"), baseURL)
	return writeFile(t, dir, "config.yaml", content)
}

func readResults(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "papers", "download_results.json"))
	require.NoError(t, err)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(data, &results))
	return results
}

func TestDoDownload(t *testing.T) {
	var hits atomic.Int32
	srv := publisher(t, &hits)
	dir := t.TempDir()
	cfgPath := downloadConfig(t, dir, srv.URL)
	input := writeFile(t, dir, "dois.csv", "title,doi\nA,10.1000/ok1\nB,10.1000/missing\n")

	args := downloadArgs{configPath: cfgPath, inputPath: input, logLevel: "info"}
	var stdout, stderr bytes.Buffer
	exitCode := doDownload(context.Background(), args, &stdout, &stderr)

	require.Equal(t, 0, exitCode, stderr.String())
	assert.FileExists(t, filepath.Join(dir, "papers", "10.1000_ok1.pdf"))
	assert.Contains(t, stdout.String(), "DOWNLOAD SUMMARY")

	results := readResults(t, dir)
	require.Len(t, results, 2)
	assert.Equal(t, "downloaded", results[0]["status"])
	assert.Equal(t, "failed", results[1]["status"])
	assert.Nil(t, results[1]["filename"])

	runLog, err := os.ReadFile(filepath.Join(dir, "papers", "download_log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), " - INFO - ")

	t.Run("resume skips finished identifiers", func(t *testing.T) {
		args.resume = true
		var stdout, stderr bytes.Buffer
		require.Equal(t, 0, doDownload(context.Background(), args, &stdout, &stderr), stderr.String())
		assert.Equal(t, int32(1), hits.Load(), "ok1 must not be fetched again")
		assert.Contains(t, stdout.String(), "Skipping, already downloaded")
	})

	t.Run("fresh download ignores earlier state", func(t *testing.T) {
		args.resume = false
		var stdout, stderr bytes.Buffer
		require.Equal(t, 0, doDownload(context.Background(), args, &stdout, &stderr), stderr.String())
		assert.Equal(t, int32(2), hits.Load())
	})
}

func TestDoDownload_NoIdentifiers(t *testing.T) {
	var hits atomic.Int32
	srv := publisher(t, &hits)
	dir := t.TempDir()
	cfgPath := downloadConfig(t, dir, srv.URL)
	input := writeFile(t, dir, "dois.csv", "doi\n")

	var stdout, stderr bytes.Buffer
	exitCode := doDownload(context.Background(), downloadArgs{configPath: cfgPath, inputPath: input, logLevel: "info"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Empty(t, readResults(t, dir))
	assert.Zero(t, hits.Load())
}

func TestDoDownload_MissingInputStillExitsZero(t *testing.T) {
	var hits atomic.Int32
	srv := publisher(t, &hits)
	dir := t.TempDir()
	cfgPath := downloadConfig(t, dir, srv.URL)

	var stdout, stderr bytes.Buffer
	exitCode := doDownload(context.Background(), downloadArgs{configPath: cfgPath, inputPath: filepath.Join(dir, "absent.csv"), logLevel: "info"}, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "Cannot load identifiers")
	assert.Empty(t, readResults(t, dir))
}

func TestDoDownload_ConfigErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing config", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, doDownload(context.Background(), downloadArgs{configPath: filepath.Join(dir, "nope.yaml")}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "read config")
	})

	t.Run("bad mode override", func(t *testing.T) {
		cfgPath := writeFile(t, dir, "ok.yaml", fmt.Sprintf("output_dir: %q\n", filepath.Join(dir, "papers")))
		var stdout, stderr bytes.Buffer
		assert.Equal(t, 1, doDownload(context.Background(), downloadArgs{configPath: cfgPath, mode: "turbo"}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "mode must be")
	})
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := loadConfig(writeFile(t, t.TempDir(), "config.yaml", "output_dir: a\nmode: sequential\nmax_workers: 2\n"))
	require.NoError(t, err)

	applyOverrides(cfg, downloadArgs{})
	assert.Equal(t, "a", cfg.OutputDir)
	assert.Equal(t, 2, cfg.MaxWorkers)

	applyOverrides(cfg, downloadArgs{outputDir: "b", mode: "parallel", workers: 8})
	assert.Equal(t, "b", cfg.OutputDir)
	assert.Equal(t, "parallel", cfg.Mode)
	assert.Equal(t, 8, cfg.MaxWorkers)
}

func TestDoHarvest_JournalsMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "mode: sequential\n")

	var stdout, stderr bytes.Buffer
	exitCode := doHarvest(context.Background(), cfgPath, filepath.Join(dir, "absent.csv"), filepath.Join(dir, "out.csv"), "info", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error loading journals")
}
