// Package web implements the Control Plane (spec.md §4.5): an HTTP
// dispatcher mapping URL patterns to supervisor and mailbox operations.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/netresearch/chron/core"
	"github.com/netresearch/chron/store"
)

// Supervisor is the narrow interface the control plane depends on, so it
// never holds a reference to the concrete Supervisor type and the
// supervisor never needs to know the control plane exists (spec.md §9,
// "Cyclic ownership between control plane and supervisor").
type Supervisor interface {
	ListJobs() []core.JobSummary
	JobStatus(name string) (core.JobStatusInfo, bool)
	TerminateJob(name string) (found, terminated bool)
	Mailbox() *store.Mailbox
}

// Server is the control plane's HTTP dispatcher.
type Server struct {
	supervisor Supervisor
	logger     core.Logger
	logDir     string
	srv        *http.Server
}

// NewServer builds a Server bound to addr (e.g. ":8081"). logDir is the
// `<chronDir>/logs` directory the Log Sink writes to. Call Start to begin
// serving.
func NewServer(addr string, supervisor Supervisor, logger core.Logger, logDir string) *Server {
	s := &Server{supervisor: supervisor, logger: logger, logDir: logDir}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.listJobs)
	mux.HandleFunc("GET /job/{name}/status", s.jobStatus)
	mux.HandleFunc("GET /job/{name}/logs", s.getLogs)
	mux.HandleFunc("DELETE /job/{name}/logs", s.deleteLogs)
	mux.HandleFunc("GET /job/{name}/mailbox", s.getJobMailbox)
	mux.HandleFunc("POST /job/{name}/mailbox", s.postJobMailbox)
	mux.HandleFunc("DELETE /job/{name}/mailbox", s.deleteJobMailbox)
	mux.HandleFunc("POST /job/{name}/terminate", s.terminateJob)
	mux.HandleFunc("GET /mailbox/messages", s.getAllMessages)
	mux.HandleFunc("DELETE /mailbox/messages", s.deleteAllMessages)
	mux.HandleFunc("GET /mailbox/count", s.mailboxCount)
	mux.HandleFunc("/", s.notFound)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("control plane: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.srv.Close()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// notFound handles every path not matched by a more specific pattern
// (spec.md §4.5 "other" row: 400 on pattern mismatch).
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusBadRequest, "Bad Request")
}

type jobListEntry struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.supervisor.ListJobs()
	out := make([]jobListEntry, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobListEntry{Name: j.Name, Running: j.Running})
	}
	writeJSON(w, out)
}

type runEntry struct {
	Timestamp  int64 `json:"timestamp"`
	StatusCode *int  `json:"statusCode,omitempty"`
}

type jobStatusResponse struct {
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Runs    []runEntry `json:"runs"`
	NextRun *string    `json:"nextRun,omitempty"`
	PID     *int       `json:"pid,omitempty"`
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, ok := s.supervisor.JobStatus(name)
	if !ok {
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}

	runs := make([]runEntry, 0, len(info.Runs))
	for _, e := range info.Runs {
		runs = append(runs, runEntry{Timestamp: e.Timestamp, StatusCode: e.StatusCode})
	}

	resp := jobStatusResponse{Name: info.Name, Type: info.Kind.String(), Runs: runs, PID: info.PID}
	if info.NextRun != nil {
		iso := info.NextRun.Format(time.RFC3339)
		resp.NextRun = &iso
	}
	writeJSON(w, resp)
}

func (s *Server) logPath(name string) string {
	return filepath.Join(s.logDir, name+".log")
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := os.Open(s.logPath(name))
	if err != nil {
		mapFileError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.Copy(w, f)
}

func (s *Server) deleteLogs(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := os.Remove(s.logPath(name)); err != nil {
		mapFileError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Deleted log file")
}

func mapFileError(w http.ResponseWriter, err error) {
	if os.IsNotExist(err) {
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}
	writeText(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) getJobMailbox(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, s.supervisor.Mailbox().ListBy(name))
}

func (s *Server) postJobMailbox(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg, err := s.supervisor.Mailbox().Add(name, string(body))
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, msg)
}

func (s *Server) deleteJobMailbox(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	removed, err := s.supervisor.Mailbox().ClearBy(name)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, removed)
}

func (s *Server) terminateJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	found, terminated := s.supervisor.TerminateJob(name)
	if !found {
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}
	if !terminated {
		writeText(w, http.StatusOK, "Job not running")
		return
	}
	writeText(w, http.StatusOK, "Terminated job")
}

func (s *Server) getAllMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.supervisor.Mailbox().ListAll())
}

func (s *Server) deleteAllMessages(w http.ResponseWriter, r *http.Request) {
	removed, err := s.supervisor.Mailbox().ClearAll()
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, removed)
}

func (s *Server) mailboxCount(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, strconv.Itoa(s.supervisor.Mailbox().Count()))
}
