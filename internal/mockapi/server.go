package mockapi

import (
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voltline/evdash/internal/api"
	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/listsync"
	"github.com/voltline/evdash/internal/logging"
	"github.com/voltline/evdash/internal/models"
)

// Options configures a Server.
type Options struct {
	Dataset *Dataset
	// APIKey, when set, is required as "Authorization: Token <key>".
	APIKey string
	// Latency delays every list response.
	Latency time.Duration
	Logger  *logging.Logger
	// Fault returns a status code to fail the request with, or 0.
	Fault func(r *nethttp.Request) int
}

// Server is an in-memory implementation of the list endpoints.
type Server struct {
	opts     Options
	logger   *logging.Logger
	requests atomic.Int64
}

// APIError is the error body returned by the fixture server.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the top-level error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NewServer creates a server over opts.Dataset, or DefaultDataset when nil.
func NewServer(opts Options) *Server {
	if opts.Dataset == nil {
		opts.Dataset = DefaultDataset()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{opts: opts, logger: logger.Component("mockapi")}
}

// Handler returns the HTTP router.
func (s *Server) Handler() nethttp.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"})
	})

	d := s.opts.Dataset
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.inject)

		r.Get("/stations/", listHandler(s, query[models.Station]{schema: api.StationSchema, field: stationField}, d.Stations))
		r.Get("/wallets/", listHandler(s, query[models.Wallet]{schema: api.WalletSchema, field: walletField}, d.Wallets))
		r.Get("/transactions/", listHandler(s, query[models.Transaction]{schema: api.TransactionSchema, field: transactionField}, d.Transactions))
	})

	return r
}

// Requests returns the number of list requests served, faults included.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) logRequests(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("uri", r.URL.RequestURI()).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("request")
	})
}

func (s *Server) authenticate(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if s.opts.APIKey != "" && r.Header.Get("Authorization") != "Token "+s.opts.APIKey {
			writeError(w, nethttp.StatusUnauthorized, "unauthorized", "missing or invalid API token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// inject counts the request, applies latency and fault injection.
func (s *Server) inject(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		s.requests.Add(1)

		if s.opts.Latency > 0 {
			t := time.NewTimer(s.opts.Latency)
			select {
			case <-t.C:
			case <-r.Context().Done():
				t.Stop()
				return
			}
		}

		if s.opts.Fault != nil {
			if status := s.opts.Fault(r); status != 0 {
				writeError(w, status, "injected", nethttp.StatusText(status))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func listHandler[T listsync.Item](s *Server, q query[T], items []T) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		params, pageIndex, err := api.DecodeQuery(r.URL.Query())
		if err == nil {
			if params.PageSize == 0 {
				params = params.WithPageSize(constants.DefaultPageSize)
			}
			err = params.Validate()
		}
		if err == nil {
			err = q.schema.Validate(params)
		}
		if err != nil {
			var pe *listsync.ParameterError
			if errors.As(err, &pe) {
				writeError(w, nethttp.StatusBadRequest, "invalid_"+pe.Field, err.Error())
				return
			}
			writeError(w, nethttp.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		matched := q.run(items, params)
		results, hasMore := page(matched, pageIndex, params.PageSize)
		writeJSON(w, nethttp.StatusOK, models.Page[T]{
			Count:   len(matched),
			HasMore: hasMore,
			Results: results,
		})
	}
}

// FailEvery returns a Fault that fails every nth request with status.
func FailEvery(n int, status int) func(*nethttp.Request) int {
	if n <= 0 {
		return nil
	}
	var count atomic.Int64
	return func(*nethttp.Request) int {
		if count.Add(1)%int64(n) == 0 {
			return status
		}
		return 0
	}
}

// FailPaths returns a Fault that fails requests whose query string contains
// every fragment, for example "page=2".
func FailPaths(status int, fragments ...string) func(*nethttp.Request) int {
	return func(r *nethttp.Request) int {
		raw := r.URL.RawQuery
		for _, f := range fragments {
			if !strings.Contains(raw, f) {
				return 0
			}
		}
		return status
	}
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w nethttp.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}
