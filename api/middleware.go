package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"hackhub/core/authz"
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware mirrors the permissive cross-origin contract of the hosted
// edge functions this API replaces: every response carries the headers and
// preflight requests are answered directly.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			actor := "-"
			if dec := authz.FromContext(r.Context()); dec != nil {
				actor = dec.Email
			}
			s.logger.Printf("RESP %s %s user=%s status=%d dur=%s bytes=%d",
				r.Method, r.URL.Path, actor, rec.status, time.Since(start), rec.size)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// requirePermission composes the authorization guard in front of a privileged
// handler. The verified decision rides the request context for audit trails.
func (s *Server) requirePermission(perm authz.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			dec, err := s.guard.Require(r.Context(), r.Header.Get("Authorization"), perm)
			if err != nil {
				s.denyAuthz(w, r, err, perm)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithDecision(r.Context(), dec)))
		}
	}
}

func (s *Server) denyAuthz(w http.ResponseWriter, r *http.Request, err error, perm authz.Permission) {
	switch {
	case errors.Is(err, authz.ErrNoCredential), errors.Is(err, authz.ErrUnknownIdentity):
		if s.logger != nil {
			s.logger.Printf("AUTH fail %s %s need=%s: %v", r.Method, r.URL.Path, perm, err)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, authz.ErrForbidden):
		if s.logger != nil {
			s.logger.Printf("PERM fail %s %s need=%s", r.Method, r.URL.Path, perm)
		}
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	default:
		if s.logger != nil {
			s.logger.Errorf("authz %s %s: %v", r.Method, r.URL.Path, err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
