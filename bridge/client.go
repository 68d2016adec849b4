// Subprocess bridge client.
//
// Invokes the Python helper script once per call:
//
//	python3 bridge.py search --index <dir> --metadata <file> --query <text> --k <n>
//	python3 bridge.py validate-index --index <dir>
//	python3 bridge.py health-check

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Default time budgets. Validation and health checks sit on the
// startup path and get a shorter budget so they cannot stall registry
// loading excessively.
const (
	DefaultSearchTimeout = 10 * time.Second
	DefaultCheckTimeout  = 5 * time.Second
)

// Client runs the external search process, one invocation per call.
// Safe for concurrent use; each call spawns its own subprocess.
type Client struct {
	python        string
	script        string
	searchTimeout time.Duration
	checkTimeout  time.Duration
	logger        *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSearchTimeout overrides the search call time budget.
func WithSearchTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.searchTimeout = d }
}

// WithCheckTimeout overrides the validate/health call time budget.
func WithCheckTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.checkTimeout = d }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a bridge client for the given interpreter and
// script path.
func NewClient(python, script string, opts ...ClientOption) *Client {
	c := &Client{
		python:        python,
		script:        script,
		searchTimeout: DefaultSearchTimeout,
		checkTimeout:  DefaultCheckTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs a similarity query against the given index.
func (c *Client) Search(ctx context.Context, indexPath, metadataPath, query string, topK int) (SearchResponse, error) {
	args := []string{
		"--index", indexPath,
		"--metadata", metadataPath,
		"--query", query,
		"--k", strconv.Itoa(topK),
	}

	stdout, err := c.run(ctx, CommandSearch, c.searchTimeout, args)
	if err != nil {
		return SearchResponse{}, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(stdout, &resp); err != nil {
		return SearchResponse{}, &Error{
			Kind:    KindProtocol,
			Command: CommandSearch,
			Detail:  fmt.Sprintf("unparsable search response: %v", err),
			Err:     err,
		}
	}

	c.logger.Debug("bridge search completed",
		zap.String("index", indexPath),
		zap.Int("results", len(resp.Results)),
		zap.Int64("duration_ms", resp.DurationMs),
		zap.Int("dataset_size", resp.DatasetSize))

	return resp, nil
}

// ValidateIndex checks that an index directory exists and is readable.
// The script reports structural problems as status "error" on stdout
// with a non-zero exit; those come back as a non-ok ValidateResult
// rather than an execution error.
func (c *Client) ValidateIndex(ctx context.Context, indexPath string) (ValidateResult, error) {
	stdout, err := c.run(ctx, CommandValidateIndex, c.checkTimeout, []string{"--index", indexPath})
	if err != nil {
		var be *Error
		if errors.As(err, &be) && be.Kind == KindExecution {
			if result, ok := parseValidateResult(be.stdout); ok && !result.OK() {
				return result, nil
			}
		}
		return ValidateResult{}, err
	}

	var result ValidateResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		return ValidateResult{}, &Error{
			Kind:    KindProtocol,
			Command: CommandValidateIndex,
			Detail:  fmt.Sprintf("unparsable validate response: %v", err),
			Err:     err,
		}
	}
	return result, nil
}

// HealthCheck verifies the external process can run at all.
func (c *Client) HealthCheck(ctx context.Context) (HealthResult, error) {
	stdout, err := c.run(ctx, CommandHealthCheck, c.checkTimeout, nil)
	if err != nil {
		return HealthResult{}, err
	}

	var result HealthResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		return HealthResult{}, &Error{
			Kind:    KindProtocol,
			Command: CommandHealthCheck,
			Detail:  fmt.Sprintf("unparsable health response: %v", err),
			Err:     err,
		}
	}
	return result, nil
}

// run executes one subprocess invocation with the given time budget
// and classifies failures.
func (c *Client) run(ctx context.Context, command Command, timeout time.Duration, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{c.script, string(command)}, args...)
	cmd := exec.CommandContext(ctx, c.python, argv...)

	// Bound the post-kill wait so orphaned grandchildren holding the
	// output pipes cannot stall a timed-out call.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &Error{
			Kind:    KindTimeout,
			Command: command,
			Detail:  fmt.Sprintf("subprocess exceeded %s budget", timeout),
		}
	}

	if err != nil {
		detail := diagnosticDetail(stderr.Bytes())
		if detail == "" {
			detail = err.Error()
		}
		c.logger.Debug("bridge subprocess failed",
			zap.String("command", string(command)),
			zap.Duration("elapsed", elapsed),
			zap.String("detail", detail))
		return nil, &Error{
			Kind:    KindExecution,
			Command: command,
			Detail:  detail,
			Err:     err,
			stdout:  stdout.Bytes(),
		}
	}

	return stdout.Bytes(), nil
}

// diagnosticDetail extracts the error message from the script's stderr
// diagnostic JSON, falling back to the raw text.
func diagnosticDetail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return ""
	}

	var diag struct {
		Error     string `json:"error"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal([]byte(text), &diag); err == nil && diag.Error != "" {
		if diag.ErrorType != "" {
			return fmt.Sprintf("%s: %s", diag.ErrorType, diag.Error)
		}
		return diag.Error
	}
	return text
}

// Verify Client implements the port.
var _ Bridge = (*Client)(nil)

// parseValidateResult tries to read a ValidateResult from captured
// stdout of a failed invocation.
func parseValidateResult(stdout []byte) (ValidateResult, bool) {
	var result ValidateResult
	if err := json.Unmarshal(stdout, &result); err != nil || result.Status == "" {
		return ValidateResult{}, false
	}
	return result, true
}
