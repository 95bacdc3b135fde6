package uiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/uiclient"
	appErr "fuzoj/pkg/errors"
)

func TestPollQueueEmptyReturns404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	res, err := c.PollQueue(context.Background(), "cpp", filepath.Join(t.TempDir(), "out.zip"))
	require.NoError(t, err)
	require.True(t, res.Empty)
}

func TestPollQueueHitDownloadsArchiveAndParsesHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Server-Id", "sub-42")
		w.Header().Set("X-Param", "problem-1;student-7")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	res, err := c.PollQueue(context.Background(), "cpp", dest)
	require.NoError(t, err)
	require.False(t, res.Empty)
	require.Equal(t, "sub-42", res.SubmissionID)
	require.Equal(t, "problem-1", res.ProblemID)
	require.Equal(t, "student-7", res.StudentID)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "zip-bytes", string(data))
}

func TestPollQueueMissingHeadersIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	_, err := c.PollQueue(context.Background(), "cpp", filepath.Join(t.TempDir(), "out.zip"))
	require.Error(t, err)
	require.True(t, appErr.Is(err, appErr.WorkerProtocolError))
}

func TestStreamToFileRejectsBodyOverMaxFileBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Server-Id", "sub-1")
		w.Header().Set("X-Param", "p;s")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := uiclient.New(uiclient.Config{BaseURL: srv.URL, MaxFileBytes: 4})
	_, err := c.PollQueue(context.Background(), "cpp", filepath.Join(t.TempDir(), "out.zip"))
	require.Error(t, err)
}

func TestPostResultSendsFormEncodedPayload(t *testing.T) {
	var gotResult, gotInfo, gotDebug string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotResult = r.FormValue("result")
		gotInfo = r.FormValue("info")
		gotDebug = r.FormValue("debug")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ack"))
	}))
	defer srv.Close()

	c := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	body, err := c.PostResult(context.Background(), "sub-1", "100", "ok", "debuglog")
	require.NoError(t, err)
	require.Equal(t, "ack", body)
	require.Equal(t, "100", gotResult)
	require.Equal(t, "ok", gotInfo)
	require.Equal(t, "debuglog", gotDebug)
}

func TestListProblemFilesParsesLineSeparatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("1.in\n1.out\nscript.txt\n"))
	}))
	defer srv.Close()

	c := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	names, err := c.ListProblemFiles(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"1.in", "1.out", "script.txt"}, names)
}
