package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/buildinfo"
)

// run executes the root command against a database in dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", "file:" + filepath.Join(dir, "cli.db")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, buildinfo.Version+"\n", out.String())
}

func TestPipelineCommands(t *testing.T) {
	dir := t.TempDir()
	harvester := filepath.Join(dir, "theharvester_acme.json")
	require.NoError(t, os.WriteFile(harvester, []byte(`{"emails":["ops@acme.org"],"hosts":["acme.org"]}`), 0o644))

	out, err := run(t, dir, "ingest", harvester, filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, `"inserted": 2`)

	out, err = run(t, dir, "suspects", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, `"inserted": 1`)

	out, err = run(t, dir, "correlate", "--workflow", "domain")
	require.NoError(t, err)
	assert.Contains(t, out, `"created": 1`)

	out, err = run(t, dir, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Multi-Tool Correlation Report")
	assert.Contains(t, out, "Name: ops@acme.org")

	xmlPath := filepath.Join(dir, "out", "maltego.xml")
	_, err = run(t, dir, "export", "--out", xmlPath)
	require.NoError(t, err)
	b, err := os.ReadFile(xmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "acme.org")

	_, err = run(t, dir, "reset")
	assert.Error(t, err)
	_, err = run(t, dir, "reset", "--yes")
	require.NoError(t, err)
	out, err = run(t, dir, "report")
	require.NoError(t, err)
	assert.NotContains(t, out, "Name:")
}

func TestIngest_AllFilesFail(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "ingest", filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}

func TestLinkAddressCmd(t *testing.T) {
	dir := t.TempDir()
	casePath := filepath.Join(dir, "case.yaml")
	require.NoError(t, os.WriteFile(casePath, []byte("address: 9 Oak Ave\nsuspects:\n  - name: Mallory\n    relationship: owner\n    confidence: 0.75\n"), 0o644))
	reportPath := filepath.Join(dir, "address_report.txt")

	out, err := run(t, dir, "link-address", casePath, "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"linked": 1`)

	b, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Address: 9 Oak Ave")
	assert.Contains(t, string(b), "Relationship: owner")
	assert.Contains(t, string(b), "Confidence: 0.75")
}

func TestAnalyzeCmd(t *testing.T) {
	dir := t.TempDir()
	recon := filepath.Join(dir, "recon_hosts.csv")
	require.NoError(t, os.WriteFile(recon, []byte("host,ip_address\nmail.acme.org,10.0.0.1\n"), 0o644))
	outDir := filepath.Join(dir, "results")

	out, err := run(t, dir, "analyze", recon, "--suspect", "mail", "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"created": 1`)
	assert.FileExists(t, filepath.Join(outDir, "maltego_import.xml"))
	assert.FileExists(t, filepath.Join(outDir, "correlation_report.txt"))
}

func TestServeCmd_UnknownTransport(t *testing.T) {
	_, err := run(t, t.TempDir(), "serve", "--transport", "carrier-pigeon")
	assert.Error(t, err)
}
