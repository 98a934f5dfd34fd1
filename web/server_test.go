package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/chron/core"
	"github.com/netresearch/chron/store"
)

type fakeSupervisor struct {
	jobs       []core.JobSummary
	statuses   map[string]core.JobStatusInfo
	mailbox    *store.Mailbox
	terminated map[string]bool
}

func (f *fakeSupervisor) ListJobs() []core.JobSummary { return f.jobs }

func (f *fakeSupervisor) JobStatus(name string) (core.JobStatusInfo, bool) {
	info, ok := f.statuses[name]
	return info, ok
}

func (f *fakeSupervisor) TerminateJob(name string) (bool, bool) {
	_, found := f.statuses[name]
	if !found {
		return false, false
	}
	return true, f.terminated[name]
}

func (f *fakeSupervisor) Mailbox() *store.Mailbox { return f.mailbox }

func newFakeServer(t *testing.T) (*Server, *fakeSupervisor, string) {
	t.Helper()
	logDir := t.TempDir()
	mailbox, err := store.NewMailbox(filepath.Join(t.TempDir(), "mailbox.json"))
	require.NoError(t, err)

	fake := &fakeSupervisor{
		jobs: []core.JobSummary{{Name: "a", Running: true}},
		statuses: map[string]core.JobStatusInfo{
			"a": {Name: "a", Kind: core.KindStartup},
		},
		mailbox:    mailbox,
		terminated: map[string]bool{"a": true},
	}

	s := NewServer(":0", fake, core.NewLogrusAdapter(logrus.PanicLevel), logDir)
	return s, fake, logDir
}

func TestServer_ListJobs(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"a"`)
}

func TestServer_JobStatusNotFound(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodGet, "/job/missing/status", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobStatusFound(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodGet, "/job/a/status", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"a"`)
}

func TestServer_TerminateJob(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodPost, "/job/a/terminate", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Terminated job", rec.Body.String())
}

func TestServer_TerminateUnknownJob(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodPost, "/job/missing/terminate", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MailboxRoutes(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)

	postReq := httptest.NewRequest(http.MethodPost, "/job/a/mailbox", strings.NewReader("hello"))
	postRec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(postRec, postReq)
	require.Equal(t, http.StatusOK, postRec.Code)
	require.Contains(t, postRec.Body.String(), "hello")

	getReq := httptest.NewRequest(http.MethodGet, "/job/a/mailbox", nil)
	getRec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	require.Contains(t, getRec.Body.String(), "hello")

	delReq := httptest.NewRequest(http.MethodDelete, "/job/a/mailbox", nil)
	delRec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusOK, delRec.Code)
	require.Contains(t, delRec.Body.String(), "hello")
}

func TestServer_LogsNotFound(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodGet, "/job/a/logs", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_LogsFound(t *testing.T) {
	t.Parallel()

	s, _, logDir := newFakeServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "a.log"), []byte("hello"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/job/a/logs", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestServer_UnmatchedRouteReturns400(t *testing.T) {
	t.Parallel()

	s, _, _ := newFakeServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nonsense/path/here", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MailboxCount(t *testing.T) {
	t.Parallel()

	s, fake, _ := newFakeServer(t)
	_, err := fake.mailbox.Add("a", "x")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mailbox/count", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Body.String())
}
