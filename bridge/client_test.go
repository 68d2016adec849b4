package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript writes a shell script stub standing in for the Python
// bridge. The client is pointed at /bin/sh as the interpreter.
func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.sh")
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, script string, opts ...ClientOption) *Client {
	t.Helper()
	return NewClient("/bin/sh", script, opts...)
}

func bridgeErr(t *testing.T, err error) *Error {
	t.Helper()
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *bridge.Error, got %T: %v", err, err)
	}
	return be
}

func TestSearchSuccess(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo '{"results":[{"id":"0","score":0.92,"title":"Getting Started","path":"docs/start.md","snippet":"hello"}],"duration_ms":12,"dataset_size":42}'
`)
	client := newTestClient(t, script)

	resp, err := client.Search(context.Background(), "/idx", "/meta.json", "hello", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Path != "docs/start.md" {
		t.Errorf("expected path 'docs/start.md', got %q", resp.Results[0].Path)
	}
	if resp.DatasetSize != 42 {
		t.Errorf("expected dataset_size 42, got %d", resp.DatasetSize)
	}
	if resp.DurationMs != 12 {
		t.Errorf("expected duration_ms 12, got %d", resp.DurationMs)
	}
}

func TestSearchPassesArguments(t *testing.T) {
	// The stub echoes its arguments into the snippet so the test can
	// verify marshaling.
	script := writeScript(t, `#!/bin/sh
printf '{"results":[{"score":0.5,"title":"t","path":"p","snippet":"%s"}],"duration_ms":1,"dataset_size":1}\n' "$*"
`)
	client := newTestClient(t, script)

	resp, err := client.Search(context.Background(), "/idx", "/meta.json", "my query", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := resp.Results[0].Snippet
	for _, want := range []string{"search", "--index /idx", "--metadata /meta.json", "--query my query", "--k 7"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected arguments to contain %q, got %q", want, got)
		}
	}
}

func TestSearchExecutionError(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo '{"error":"faiss-cpu is not installed","error_type":"RuntimeError"}' >&2
exit 1
`)
	client := newTestClient(t, script)

	_, err := client.Search(context.Background(), "/idx", "/meta.json", "q", 5)
	be := bridgeErr(t, err)
	if be.Kind != KindExecution {
		t.Errorf("expected KindExecution, got %v", be.Kind)
	}
	if !strings.Contains(be.Detail, "faiss-cpu is not installed") {
		t.Errorf("expected diagnostic detail, got %q", be.Detail)
	}
	if !strings.Contains(be.Detail, "RuntimeError") {
		t.Errorf("expected error type in detail, got %q", be.Detail)
	}
}

func TestSearchExecutionErrorPlainStderr(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo 'Traceback (most recent call last): boom' >&2
exit 2
`)
	client := newTestClient(t, script)

	_, err := client.Search(context.Background(), "/idx", "/meta.json", "q", 5)
	be := bridgeErr(t, err)
	if be.Kind != KindExecution {
		t.Errorf("expected KindExecution, got %v", be.Kind)
	}
	if !strings.Contains(be.Detail, "boom") {
		t.Errorf("expected raw stderr in detail, got %q", be.Detail)
	}
}

func TestSearchProtocolError(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo 'this is not json'
`)
	client := newTestClient(t, script)

	_, err := client.Search(context.Background(), "/idx", "/meta.json", "q", 5)
	be := bridgeErr(t, err)
	if be.Kind != KindProtocol {
		t.Errorf("expected KindProtocol, got %v", be.Kind)
	}
}

func TestSearchTimeout(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
sleep 5
echo '{"results":[],"duration_ms":0,"dataset_size":0}'
`)
	client := newTestClient(t, script, WithSearchTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := client.Search(context.Background(), "/idx", "/meta.json", "q", 5)
	elapsed := time.Since(start)

	be := bridgeErr(t, err)
	if be.Kind != KindTimeout {
		t.Errorf("expected KindTimeout, got %v", be.Kind)
	}
	if !IsTimeout(err) {
		t.Error("expected IsTimeout to report true")
	}
	if elapsed > 3*time.Second {
		t.Errorf("expected the call to be cut off promptly, took %v", elapsed)
	}
}

func TestValidateIndexOK(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo '{"status":"ok","index_file":"/idx/main.index","properties":{"is_trained":true,"ntotal":1000,"d":384}}'
`)
	client := newTestClient(t, script)

	result, err := client.ValidateIndex(context.Background(), "/idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Errorf("expected ok status, got %q", result.Status)
	}
	if result.Properties == nil || result.Properties.Total != 1000 {
		t.Errorf("expected index properties with ntotal 1000, got %+v", result.Properties)
	}
}

func TestValidateIndexStatusErrorOnStdout(t *testing.T) {
	// The script reports structural problems on stdout and exits 1;
	// that maps to a non-ok result, not an execution error.
	script := writeScript(t, `#!/bin/sh
echo '{"status":"error","error":"No FAISS index files found in /idx"}'
exit 1
`)
	client := newTestClient(t, script)

	result, err := client.ValidateIndex(context.Background(), "/idx")
	if err != nil {
		t.Fatalf("expected non-ok result, got error: %v", err)
	}
	if result.OK() {
		t.Error("expected non-ok status")
	}
	if !strings.Contains(result.Error, "No FAISS index files") {
		t.Errorf("expected validation detail, got %q", result.Error)
	}
}

func TestValidateIndexHardFailure(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo 'crashed before emitting status' >&2
exit 1
`)
	client := newTestClient(t, script)

	_, err := client.ValidateIndex(context.Background(), "/idx")
	be := bridgeErr(t, err)
	if be.Kind != KindExecution {
		t.Errorf("expected KindExecution, got %v", be.Kind)
	}
}

func TestHealthCheck(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo '{"status":"healthy","python_version":"3.11.4","dependencies":{"faiss":"installed"}}'
`)
	client := newTestClient(t, script)

	health, err := client.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !health.Healthy() {
		t.Errorf("expected healthy status, got %q", health.Status)
	}
	if health.Dependencies["faiss"] != "installed" {
		t.Errorf("expected faiss dependency state, got %+v", health.Dependencies)
	}
}

func TestHealthCheckProtocolError(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo ''
`)
	client := newTestClient(t, script)

	_, err := client.HealthCheck(context.Background())
	be := bridgeErr(t, err)
	if be.Kind != KindProtocol {
		t.Errorf("expected KindProtocol, got %v", be.Kind)
	}
}
