package adapter_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/adapter"
	"fuzoj/internal/worker/uiclient"
	"fuzoj/internal/worker/workspace"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newWorkspace(t *testing.T) workspace.Workspace {
	t.Helper()
	mgr, err := workspace.NewManager(t.TempDir(), "", nil, "")
	require.NoError(t, err)
	ws, err := mgr.Acquire(context.Background(), "transient-1")
	require.NoError(t, err)
	return ws
}

func TestFetchSubmissionPollsQueuesInOrderAndExtractsArchive(t *testing.T) {
	zipBytes := buildZip(t, map[string]string{"main.cpp": "int main(){}"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/queue/empty/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/queue/cpp/"):
			w.Header().Set("X-Server-Id", "sub-1")
			w.Header().Set("X-Param", "problem-1;student-1")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(zipBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	a := adapter.New(client, []string{"empty", "cpp"})
	ws := newWorkspace(t)

	fetched, err := a.FetchSubmission(context.Background(), ws)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, "cpp", fetched.QueueName)
	require.Equal(t, "sub-1", fetched.Submission.ID)
	require.Equal(t, "problem-1", fetched.Submission.ProblemID)
	require.Equal(t, "student-1", fetched.Submission.SubmittedBy)
	require.Equal(t, "main.cpp", fetched.Submission.MainFile)

	data, err := os.ReadFile(filepath.Join(ws.SubmissionDir(), "main.cpp"))
	require.NoError(t, err)
	require.Equal(t, "int main(){}", string(data))
}

func TestFetchSubmissionAllQueuesEmptyReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	a := adapter.New(client, []string{"empty1", "empty2"})
	ws := newWorkspace(t)

	fetched, err := a.FetchSubmission(context.Background(), ws)
	require.NoError(t, err)
	require.Nil(t, fetched)
}

func TestFetchProblemParsesScriptAndSeparatesTestDataFromLibFiles(t *testing.T) {
	script := "TST 1\nT 1.0\nTN 1048576\nJ\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/filesystem/problem/p1"):
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("1.in\n1.out\nscript.txt\n"))
		case strings.HasSuffix(r.URL.Path, "/1.in"):
			_, _ = w.Write([]byte("1\n"))
		case strings.HasSuffix(r.URL.Path, "/1.out"):
			_, _ = w.Write([]byte("1\n"))
		case strings.HasSuffix(r.URL.Path, "/script.txt"):
			_, _ = w.Write([]byte(script))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := uiclient.New(uiclient.Config{BaseURL: srv.URL})
	a := adapter.New(client, nil)
	ws := newWorkspace(t)

	spec, err := a.FetchProblem(context.Background(), "p1", ws)
	require.NoError(t, err)
	require.Len(t, spec.Tests, 1)
	require.Equal(t, "1", spec.Tests[0].TestName)

	_, statErr := os.Stat(filepath.Join(ws.ProblemDir(), "1.in"))
	require.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(ws.LibDir(), "script.txt"))
	require.NoError(t, statErr)
}
