// Package fakeremote is an in-process stand-in for the remote field-ops
// service: token issuance, refresh rotation and the domain collections.
// Tests drive it through httptest; the devserver command serves it.
package fakeremote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Collections are the REST collections the server accepts.
var Collections = []string{
	"work-orders",
	"movements",
	"line-items",
	"materials",
	"packages",
	"points",
	"third-parties",
	"treatments",
	"vehicles",
}

// Request is one request the server received.
type Request struct {
	Method        string
	Path          string
	Body          json.RawMessage
	Authorization string
}

// Claims are the access-token claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type failure struct {
	method string
	prefix string
	status int
}

// Server is the fake remote service.
//
// Thread-safety: safe for concurrent use.
type Server struct {
	mu sync.Mutex

	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger

	users    map[string]string // username -> password
	refresh  map[string]string // refresh token -> username
	objects  map[string]map[string]json.RawMessage
	aliases  map[string]map[string]string // collection -> client id -> server id
	nextID   int
	failures []failure
	offline  bool
	received []Request

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HMAC signing secret.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

// WithTokenTTL sets the access-token lifetime. Default 15 minutes.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// WithNow sets the server clock used for issuing and checking tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithUser seeds an account.
func WithUser(username, password string) Option {
	return func(s *Server) { s.users[username] = password }
}

// WithLogger logs every request.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a server.
func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte("fieldsync-dev-secret"),
		tokenTTL: 15 * time.Minute,
		now:      time.Now,
		log:      zerolog.Nop(),
		users:    make(map[string]string),
		refresh:  make(map[string]string),
		objects:  make(map[string]map[string]json.RawMessage),
		aliases:  make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range Collections {
		s.objects[c] = make(map[string]json.RawMessage)
		s.aliases[c] = make(map[string]string)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/register", s.handleRegister)
		r.Get("/exists", s.handleExists)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		for _, c := range Collections {
			collection := c
			r.Post("/"+collection, s.handleCreate(collection))
			r.Put("/"+collection+"/{id}", s.handleUpdate(collection))
			r.Get("/"+collection+"/{id}", s.handleGet(collection))
		}
	})
	return r
}

// AddUser creates or replaces an account.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// FailNext makes the next len(statuses) requests whose method matches and
// whose path starts with prefix answer with those statuses, in order.
func (s *Server) FailNext(method, prefix string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range statuses {
		s.failures = append(s.failures, failure{method: method, prefix: prefix, status: st})
	}
}

// SetOffline makes every request fail at the connection level.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.received...)
}

// CountRequests counts received requests with the given method and path.
func (s *Server) CountRequests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.received {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Object returns the stored body for id (server or client id) in collection.
func (s *Server) Object(collection, id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[collection][s.resolveLocked(collection, id)]
	return obj, ok
}

// Len returns how many objects collection holds.
func (s *Server) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects[collection])
}

// IssueAccessToken signs an access token for username valid for ttl from now.
// A negative ttl yields an already expired token.
func (s *Server) IssueAccessToken(username string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueRefreshToken registers a refresh token for username.
func (s *Server) IssueRefreshToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueRefreshLocked(username)
}

func (s *Server) issueRefreshLocked(username string) string {
	token := uuid.NewString()
	s.refresh[token] = username
	return token
}

func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Server) resolveLocked(collection, id string) string {
	if serverID, ok := s.aliases[collection][id]; ok {
		return serverID
	}
	return id
}

// Middleware

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.received = append(s.received, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Body:          body,
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		offline := s.offline
		status := 0
		for i, f := range s.failures {
			if f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
				status = f.status
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				break
			}
		}
		s.mu.Unlock()

		if offline {
			dropConnection(w)
			return
		}
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.parseToken(parts[1]); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dropConnection closes the client connection without a response.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "offline")
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
