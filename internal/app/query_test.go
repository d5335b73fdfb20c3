package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localPage = `<html><head><title>Local</title></head><body>
<div id="top" class="banner">top</div>
<a id="next" href="next.html">next</a>
<iframe id="boxed" sandbox="allow-scripts" srcdoc="<p class='inner'>boxed</p>"></iframe>
</body></html>`

// run executes the CLI with an isolated profile dir and returns the exit
// code and stdout.
func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	t.Setenv("DOMQ_PROFILE_DIR", t.TempDir())
	t.Setenv("DOMQ_CONFIG", "")
	t.Setenv("DOMQ_LOG_LEVEL", "error")
	var out, errOut bytes.Buffer
	code := Execute(args, &out, &errOut)
	return code, out.String()
}

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(localPage), 0o644))
	return path
}

func TestLocalQuery(t *testing.T) {
	page := writePage(t)

	code, out := run(t, "query", "--file", page, "--json", "-M", "textContent", "#top")
	require.Equal(t, exitSuccess, code)
	assert.JSONEq(t, `["top"]`, out)

	code, out = run(t, "query", "--file", page, "--base-url", "https://app.example/dir/", "--json", "#next")
	require.Equal(t, exitSuccess, code)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "https://app.example/dir/next.html", records[0]["href"])
	assert.Contains(t, records[0], "rect")

	code, out = run(t, "query", "--file", page, "--plain", "-y", "xpath", "-M", `{"method_name":"getAttribute","args":["id"]}`, "//div | //a")
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "top\nnext\n", out)
}

func TestLocalFrameQuery(t *testing.T) {
	page := writePage(t)

	code, out := run(t, "query", "--file", page, "--json", "--frame", "#boxed", ".inner")
	require.Equal(t, exitSuccess, code)
	assert.JSONEq(t, `{"job":1}`, out)

	code, out = run(t, "query", "--file", page, "--json", "--wait", "--frame", "#boxed", "-M", "textContent", ".inner")
	require.Equal(t, exitSuccess, code)
	assert.JSONEq(t, `["boxed"]`, out)

	code, out = run(t, "query", "--file", page, "--json", "--frame", "#top", "p")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "Exception while running query: p")
}

func TestLocalQueryFailures(t *testing.T) {
	page := writePage(t)

	code, out := run(t, "query", "--file", page, "--json", "p[")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "Exception while running query: p[")

	code, _ = run(t, "query", "--file", page, "-M", "[oops", "p")
	assert.Equal(t, exitUsage, code)

	code, _ = run(t, "query", "--file", filepath.Join(t.TempDir(), "missing.html"), "p")
	assert.Equal(t, exitFailure, code)

	code, _ = run(t, "query")
	assert.Equal(t, exitUsage, code)
}

func TestLocalDump(t *testing.T) {
	page := writePage(t)
	code, out := run(t, "dump", "--file", page)
	require.Equal(t, exitSuccess, code)

	var root map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &root))
	assert.Equal(t, "DOCUMENT_NODE", root["nodeType"])
	assert.Equal(t, "#document", root["nodeName"])
	assert.NotEmpty(t, root["children"])
}

func TestJobRequiresNumericID(t *testing.T) {
	code, _ := run(t, "job", "abc")
	assert.Equal(t, exitUsage, code)
}

func TestIsFailure(t *testing.T) {
	assert.True(t, isFailure([]byte(`{"error":"Exception while running query: x","details":"d"}`)))
	assert.False(t, isFailure([]byte(`[{"error":"no method","methodName":"x"}]`)))
	assert.False(t, isFailure([]byte(`{"job":1}`)))
}

func TestQueryContext(t *testing.T) {
	ctx, cancel := queryContext(0)
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	ctx, cancel = queryContext(time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
