package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coderoomhq/coderoom-backend/internal/metrics"
	"github.com/coderoomhq/coderoom-backend/internal/protocol"
)

// ErrExecutionUnavailable marks infrastructure failures of the runner itself,
// as opposed to the executed program failing. It never leaves this package:
// callers always receive a synthesized error-typed ExecutionResult.
var ErrExecutionUnavailable = errors.New("execution backend unavailable")

type Request struct {
	Language string
	Version  string
	Source   string
	Stdin    string
}

// Runner abstracts the execution backend so rooms can be tested with a stub.
type Runner interface {
	Execute(ctx context.Context, req Request) protocol.ExecutionResult
}

// Client talks to a Piston-compatible runner over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
	}
}

type pistonRequest struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Files    []pistonFile `json:"files"`
	Stdin    string       `json:"stdin,omitempty"`
}

type pistonFile struct {
	Content string `json:"content"`
}

type pistonResponse struct {
	Language string             `json:"language"`
	Version  string             `json:"version"`
	Run      protocol.RunDetail `json:"run"`
	Message  string             `json:"message"`
}

// Execute runs the request against the backend, bounded by the configured
// timeout. A program that exits non-zero is still a normal `output` result;
// only runner-level failures produce an `error` result.
func (c *Client) Execute(ctx context.Context, req Request) protocol.ExecutionResult {
	start := time.Now()
	res, err := c.call(ctx, req)
	if err != nil {
		c.log.Warn("exec relay failed", zap.String("language", req.Language), zap.Error(err))
		metrics.ExecTotal.WithLabelValues("error").Inc()
		return errorResult(req, err, start)
	}
	metrics.ExecTotal.WithLabelValues("ok").Inc()
	res.Timestamp = start.UnixMilli()
	res.ExecutionTime = time.Since(start).Milliseconds()
	return res
}

func (c *Client) call(ctx context.Context, req Request) (protocol.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	version := req.Version
	if version == "" {
		version = "*"
	}
	body, err := json.Marshal(pistonRequest{
		Language: req.Language,
		Version:  version,
		Files:    []pistonFile{{Content: req.Source}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("%w: %v", ErrExecutionUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("%w: %v", ErrExecutionUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("%w: %v", ErrExecutionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var perr pistonResponse
		_ = json.NewDecoder(resp.Body).Decode(&perr)
		detail := perr.Message
		if detail == "" {
			detail = resp.Status
		}
		return protocol.ExecutionResult{}, fmt.Errorf("%w: %s", ErrExecutionUnavailable, detail)
	}

	var out pistonResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("%w: bad response: %v", ErrExecutionUnavailable, err)
	}
	return protocol.ExecutionResult{
		Language: out.Language,
		Version:  out.Version,
		Run:      out.Run,
		Type:     protocol.ResultOutput,
	}, nil
}

func errorResult(req Request, err error, start time.Time) protocol.ExecutionResult {
	msg := "code execution failed: " + err.Error()
	return protocol.ExecutionResult{
		Language: req.Language,
		Version:  req.Version,
		Run: protocol.RunDetail{
			Stderr: msg,
			Code:   -1,
			Output: msg,
		},
		Timestamp:     start.UnixMilli(),
		ExecutionTime: time.Since(start).Milliseconds(),
		Type:          protocol.ResultError,
	}
}
