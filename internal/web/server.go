// Package web provides the HTTP server and handlers for the package
// intake API.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/landtenure/intake/internal/config"
	"github.com/landtenure/intake/internal/intake/pipeline"
	intakemiddleware "github.com/landtenure/intake/internal/web/middleware"
)

// Server is the HTTP server fronting the package-intake pipeline.
type Server struct {
	service *pipeline.Service
	router  *chi.Mux
	server  *http.Server

	rate RateLimitConfig
	sec  SecurityConfig
}

// RateLimitConfig is an alias of config.RateLimitConfig.
type RateLimitConfig = config.RateLimitConfig

// SecurityConfig mirrors config.SecurityConfig.
type SecurityConfig = config.SecurityConfig

// NewServer builds a Server around service.
func NewServer(service *pipeline.Service, rate RateLimitConfig, sec SecurityConfig) *Server {
	s := &Server{service: service, router: chi.NewRouter(), rate: rate, sec: sec}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(intakemiddleware.TrustedRealIP(s.sec.TrustedProxies))
	s.router.Use(intakemiddleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(securityHeaders)

	if s.rate.Enabled {
		limiter := newRateLimiter(s.rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}

	s.router.Use(intakemiddleware.APIKeyAuth(&s.sec))
}

func (s *Server) setupRoutes() {
	s.router.Route("/imports", func(r chi.Router) {
		r.Post("/", s.handleReceive)
		r.Get("/{id}", s.handleGetPackage)
		r.Post("/{id}/validate", s.handleValidate)
		r.Post("/{id}/detect-duplicates", s.handleDetectDuplicates)
		r.Get("/{id}/staged-entities", s.handleListStagedEntities)
		r.Get("/{id}/conflicts", s.handleListConflicts)
		r.Post("/{id}/commit", s.handleCommit)
		r.Post("/{id}/cancel", s.handleCancel)
	})
	s.router.Post("/conflicts/{id}/resolve", s.handleResolveConflict)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("intake server starting on %s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{visitors: make(map[string]*visitor), rate: rate, window: window}
	go rl.cleanup()
	return rl
}

func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}
	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"success":false,"errors":["rate limit exceeded: wait a moment and retry"]}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}
