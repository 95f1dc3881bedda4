// Package server exposes a session over HTTP.
//
// Routes:
//
//	GET  /healthz  liveness, never touches the database
//	GET  /stats    pool and keepalive snapshot
//	POST /read     {"sql": "...", "params": [...], "export": "bucket/key"}
//	POST /write    {"sql": "...", "params": [...]}
//	GET  /tables            table names, ?schema= selects the schema
//	GET  /tables/{table}    columns of one table
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/sqlsession/internal/binder"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/filestore"
	"github.com/koustreak/sqlsession/internal/logger"
	"github.com/koustreak/sqlsession/internal/schema"
	"github.com/koustreak/sqlsession/internal/session"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Session is the part of *session.Session the server needs.
type Session interface {
	Read(ctx context.Context, sql string) ([]driver.Row, error)
	Write(ctx context.Context, sql string) (int64, error)
	ReadPrepared(ctx context.Context, sql string, params []binder.Parameter) ([]driver.Row, error)
	WritePrepared(ctx context.Context, sql string, params []binder.Parameter) (int64, error)
	Stats() session.Stats
}

// Request is the body of /read and /write.
type Request struct {
	SQL    string             `json:"sql"`
	Params []binder.Parameter `json:"params,omitempty"`

	// Export uploads the rows of a read to "bucket/key".
	Export string `json:"export,omitempty"`
}

type readResponse struct {
	Rows   []driver.Row          `json:"rows"`
	Export *filestore.ObjectInfo `json:"export,omitempty"`
}

type writeResponse struct {
	Affected int64 `json:"affected"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
}

// Server is an http.Handler over one session.
type Server struct {
	sess   Session
	store  filestore.Store
	schema schema.Reader
	log    *logger.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the "export" field of read requests.
func WithStore(s filestore.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithSchema enables the /tables routes.
func WithSchema(r schema.Reader) Option {
	return func(srv *Server) { srv.schema = r }
}

// WithLogger sets the logger requests and failures are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(srv *Server) { srv.log = l.Component("server") }
}

// New builds the router for sess.
func New(sess Session, opts ...Option) *Server {
	s := &Server{sess: sess, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Get("/stats", s.stats)
	r.Post("/read", s.read)
	r.Post("/write", s.write)

	if s.schema != nil {
		r.Route("/tables", func(r chi.Router) {
			r.Get("/", s.listTables)
			r.Get("/{table}", s.describeTable)
		})
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	failed := make(chan error, 1)
	go func() {
		s.log.InfoWith("Listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Stats())
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	var (
		rows []driver.Row
		err  error
	)
	if len(req.Params) == 0 {
		rows, err = s.sess.Read(r.Context(), req.SQL)
	} else {
		rows, err = s.sess.ReadPrepared(r.Context(), req.SQL, req.Params)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	resp := readResponse{Rows: rows}
	if req.Export != "" {
		if resp.Export, err = s.export(r.Context(), req.Export, rows); err != nil {
			s.fail(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	var (
		n   int64
		err error
	)
	if len(req.Params) == 0 {
		n, err = s.sess.Write(r.Context(), req.SQL)
	} else {
		n, err = s.sess.WritePrepared(r.Context(), req.SQL, req.Params)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResponse{Affected: n})
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.schema.ListTables(r.Context(), r.URL.Query().Get("schema"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tables": tables})
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sch, table := r.URL.Query().Get("schema"), chi.URLParam(r, "table")

	ok, err := s.schema.TableExists(ctx, sch, table)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "table not found", Kind: "not_found", Name: table})
		return
	}

	info, err := s.schema.InspectTable(ctx, sch, table)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) export(ctx context.Context, target string, rows []driver.Row) (*filestore.ObjectInfo, error) {
	if s.store == nil {
		return nil, errs.Configuration("export is not configured")
	}
	bucket, key, err := filestore.SplitTarget(target)
	if err != nil {
		return nil, err
	}
	return filestore.Export(ctx, s.store, bucket, key, rows)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: "bad_request"})
		return Request{}, false
	}
	if req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sql is required", Kind: "bad_request"})
		return Request{}, false
	}
	return req, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: errs.KindOf(err).String()}
	var e *errs.Error
	if errors.As(err, &e) {
		resp.Name = e.Name
	}
	writeJSON(w, statusOf(err), resp)
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(err error) int {
	if errs.IsBinding(err) {
		return http.StatusBadRequest
	}
	switch errs.KindOf(err) {
	case errs.ErrKindQueryExecution:
		return http.StatusUnprocessableEntity
	case errs.ErrKindConnection:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugWith("request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
