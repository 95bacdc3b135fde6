// Package uiclient is a typed HTTP client against the UI: queue polling,
// problem file listing/download, and result posting. It performs no
// retries itself — retrying is the Adapter's and Main Loop's concern.
package uiclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	appErr "fuzoj/pkg/errors"
)

const (
	headerServerID = "X-Server-Id"
	headerParam    = "X-Param"
)

// Config controls the client's base URL and two-phase timeout.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxFileBytes   int64
}

// Client is the worker's outbound HTTP client against the UI.
type Client struct {
	baseURL      string
	maxFileBytes int64
	http         *http.Client
}

// New builds a Client from cfg, applying required defaults.
func New(cfg Config) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	maxFileBytes := cfg.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = 1 << 30 // 1 GiB
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxFileBytes: maxFileBytes,
		http: &http.Client{
			Transport: transport,
			Timeout:   connectTimeout + readTimeout,
		},
	}
}

// PollResult is the sum type for one poll_queue call: either Empty (queue
// had nothing, HTTP 404) or a Hit carrying the downloaded archive.
type PollResult struct {
	Empty        bool
	SubmissionID string
	ProblemID    string
	StudentID    string
	ArchivePath  string
}

// PollQueue performs one GET against the queue endpoint, streaming the
// response body to destPath. Returns PollResult{Empty: true} on HTTP 404.
func (c *Client) PollQueue(ctx context.Context, queueName, destPath string) (PollResult, error) {
	reqURL := fmt.Sprintf("%s/queue/%s/submission", c.baseURL, url.PathEscape(queueName))
	resp, err := c.doGet(ctx, reqURL)
	if err != nil {
		return PollResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PollResult{Empty: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return PollResult{}, appErr.Newf(appErr.WorkerTransportError, "poll queue %q: unexpected status %d", queueName, resp.StatusCode)
	}

	submissionID := strings.TrimSpace(resp.Header.Get(headerServerID))
	param := strings.TrimSpace(resp.Header.Get(headerParam))
	if submissionID == "" || param == "" {
		return PollResult{}, appErr.Newf(appErr.WorkerProtocolError, "poll queue %q: missing required headers", queueName)
	}
	problemID, studentID, ok := strings.Cut(param, ";")
	if !ok {
		return PollResult{}, appErr.Newf(appErr.WorkerProtocolError, "poll queue %q: malformed %s header %q", queueName, headerParam, param)
	}

	if err := c.streamToFile(resp.Body, resp.ContentLength, destPath); err != nil {
		return PollResult{}, err
	}

	return PollResult{
		SubmissionID: submissionID,
		ProblemID:    strings.TrimSpace(problemID),
		StudentID:    strings.TrimSpace(studentID),
		ArchivePath:  destPath,
	}, nil
}

// ListProblemFiles lists the filenames declared for problemID.
func (c *Client) ListProblemFiles(ctx context.Context, problemID string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/filesystem/problem/%s", c.baseURL, url.PathEscape(problemID))
	resp, err := c.doGet(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, appErr.Newf(appErr.WorkerTransportError, "list problem files %q: unexpected status %d", problemID, resp.StatusCode)
	}

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerTransportError, "read problem file listing failed")
	}
	return names, nil
}

// GetProblemFile downloads one problem file to destPath.
func (c *Client) GetProblemFile(ctx context.Context, problemID, filename, destPath string) error {
	reqURL := fmt.Sprintf("%s/filesystem/problem/%s/%s", c.baseURL, url.PathEscape(problemID), url.PathEscape(filename))
	resp, err := c.doGet(ctx, reqURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return appErr.Newf(appErr.WorkerTransportError, "get problem file %q/%q: unexpected status %d", problemID, filename, resp.StatusCode)
	}
	return c.streamToFile(resp.Body, resp.ContentLength, destPath)
}

// PostResult submits the three formatted payloads for submissionID.
func (c *Client) PostResult(ctx context.Context, submissionID, result, info, debug string) (string, error) {
	reqURL := fmt.Sprintf("%s/result/%s", c.baseURL, url.PathEscape(submissionID))
	form := url.Values{"result": {result}, "info": {info}, "debug": {debug}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.WorkerTransportError, "build post_result request failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.WorkerTransportError, "post_result request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.WorkerTransportError, "read post_result response failed")
	}
	if resp.StatusCode != http.StatusOK {
		return "", appErr.Newf(appErr.WorkerTransportError, "post_result %q: unexpected status %d", submissionID, resp.StatusCode)
	}
	return string(body), nil
}

func (c *Client) doGet(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerTransportError, "build request failed")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerTransportError, "request failed")
	}
	return resp, nil
}

// streamToFile copies body to destPath, failing with ProtocolError if the
// declared or actual length exceeds maxFileBytes.
func (c *Client) streamToFile(body io.Reader, declaredLen int64, destPath string) error {
	if declaredLen > c.maxFileBytes {
		return appErr.Newf(appErr.WorkerProtocolError, "declared body length %d exceeds max_file_bytes %d", declaredLen, c.maxFileBytes)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create download destination failed")
	}
	defer f.Close()

	limited := io.LimitReader(body, c.maxFileBytes+1)
	n, err := io.Copy(f, limited)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerTransportError, "download body failed")
	}
	if n > c.maxFileBytes {
		return appErr.Newf(appErr.WorkerProtocolError, "body length exceeds max_file_bytes %d", c.maxFileBytes)
	}
	return nil
}
