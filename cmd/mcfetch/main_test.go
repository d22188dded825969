package main

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// newOrigin serves a one-asset version "1.0" and returns its base URL.
// Paths in drop are answered with 404.
func newOrigin(t *testing.T, drop ...string) string {
	t.Helper()
	files := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	base := srv.URL

	asset := []byte("asset")
	h := sha1Hex(asset)
	files["/assets/"+h[:2]+"/"+h] = asset
	files["/client.jar"] = []byte("client")

	index, err := json.Marshal(map[string]any{"objects": map[string]any{"a": map[string]any{"hash": h, "size": len(asset)}}})
	require.NoError(t, err)
	files["/index.json"] = index

	version, err := json.Marshal(map[string]any{
		"id":         "1.0",
		"type":       "release",
		"assetIndex": map[string]any{"id": "1", "url": base + "/index.json", "sha1": sha1Hex(index)},
		"downloads":  map[string]any{"client": map[string]any{"url": base + "/client.jar", "sha1": sha1Hex(files["/client.jar"])}},
		"libraries":  []any{},
	})
	require.NoError(t, err)
	files["/1.0.json"] = version

	manifest, err := json.Marshal(map[string]any{
		"latest":   map[string]any{"release": "1.0", "snapshot": "1.0"},
		"versions": []any{map[string]any{"id": "1.0", "type": "release", "url": base + "/1.0.json"}},
	})
	require.NoError(t, err)
	files["/manifest.json"] = manifest

	for _, p := range drop {
		delete(files, p)
	}

	t.Setenv("MCFETCH_MANIFEST_URL", base+"/manifest.json")
	t.Setenv("MCFETCH_ASSETS_URL", base+"/assets")
	return base
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInstallAndVerify(t *testing.T) {
	newOrigin(t)
	root := t.TempDir()

	code, out, errOut := runCLI(t, "install", "1.0", "--no-tui", "--root", root, "--log-level", "error")
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, "1/1 files, 0 failed")
	assert.FileExists(t, filepath.Join(root, "versions", "1.0", "1.0.jar"))

	code, out, _ = runCLI(t, "verify", "1.0", "--root", root)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "all files verified")

	require.NoError(t, os.WriteFile(filepath.Join(root, "versions", "1.0", "1.0.jar"), []byte("bad"), 0o644))
	code, out, _ = runCLI(t, "verify", "1.0", "--root", root)
	assert.Equal(t, ExitFileFailures, code)
	assert.Contains(t, out, "1 files missing or corrupt")
}

func TestInstallReportsFileFailures(t *testing.T) {
	h := sha1Hex([]byte("asset"))
	newOrigin(t, "/assets/"+h[:2]+"/"+h)

	code, out, _ := runCLI(t, "install", "latest", "--no-tui", "--root", t.TempDir(), "--log-level", "error")
	assert.Equal(t, ExitFileFailures, code)
	assert.Contains(t, out, "1/1 files, 1 failed")
}

func TestInstallInitialFilesFailure(t *testing.T) {
	newOrigin(t, "/client.jar")

	code, _, errOut := runCLI(t, "install", "1.0", "--no-tui", "--root", t.TempDir(), "--log-level", "error")
	assert.Equal(t, ExitInitialFiles, code)
	assert.Contains(t, errOut, "initial files failed")
}

func TestInstallUnknownVersion(t *testing.T) {
	newOrigin(t)
	code, _, errOut := runCLI(t, "install", "9.9", "--no-tui", "--root", t.TempDir())
	assert.Equal(t, ExitInvalidArgs, code)
	assert.Contains(t, errOut, "version not found")
}

func TestVersionsCommand(t *testing.T) {
	newOrigin(t)
	root := t.TempDir()
	code, out, _ := runCLI(t, "versions", "--root", root)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "1.0")
	assert.Contains(t, out, "release")
	assert.NotContains(t, out, "installed")

	code, _, errOut := runCLI(t, "install", "1.0", "--no-tui", "--root", root, "--log-level", "error")
	require.Equal(t, ExitSuccess, code, errOut)

	code, out, _ = runCLI(t, "versions", "--root", root)
	assert.Equal(t, ExitSuccess, code)
	assert.Regexp(t, `1\.0\s+release\s+installed`, out)
}

func TestInvalidArguments(t *testing.T) {
	newOrigin(t)
	tests := [][]string{
		{"install"},
		{"nope"},
		{"install", "1.0", "--concurrency", "-1"},
		{"install", "1.0", "--concurrency", "5000"},
		{"verify", "1.0", "--root", t.TempDir()},
		{"versions", "--config", filepath.Join(t.TempDir(), "missing.yaml")},
	}
	for _, args := range tests {
		code, _, _ := runCLI(t, args...)
		assert.Equal(t, ExitInvalidArgs, code, "%v", args)
	}
}
