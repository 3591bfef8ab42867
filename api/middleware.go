package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kilianp07/ndf/auth"
	"github.com/kilianp07/ndf/core/logger"
	coremetrics "github.com/kilianp07/ndf/core/metrics"
	coremon "github.com/kilianp07/ndf/core/monitoring"
)

// statusWriter captures the response status.
type statusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.code = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.code = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// recovery turns a handler panic into a 500 and reports it.
func recovery(mon coremon.Monitor, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					err := fmt.Errorf("panic: %v", p)
					log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
					mon.CaptureException(err, map[string]string{"module": "api", "route": route(r)})
					if !sw.written {
						writeMessage(sw, http.StatusInternalServerError, "internal error")
					}
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// route returns the matched path template, or the raw path.
func route(r *http.Request) string {
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// accessLog logs every request and records it in m.
func accessLog(m coremetrics.HTTPRecorder, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)
			d := time.Since(start)
			tpl := route(r)
			log.Debugw("http request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       tpl,
				"status":      sw.code,
				"duration_ms": d.Milliseconds(),
			})
			if err := m.RecordHTTPRequest(coremetrics.HTTPRequest{Route: tpl, Code: sw.code, Duration: d}); err != nil {
				log.Warnf("record http metric: %v", err)
			}
		})
	}
}

const (
	// limiterIdle is how long a client bucket survives without requests.
	limiterIdle = 10 * time.Minute
	// limiterSweep bounds how often idle buckets are collected.
	limiterSweep = time.Minute
)

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for longer
// than limiterIdle are dropped; a fresh bucket starts full, so forgetting an
// idle client never tightens its limit.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	key       func(*http.Request) string
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(perSecond float64, burst int, key func(*http.Request) string) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		key:      key,
		now:      time.Now,
	}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterSweep {
		rl.sweep(now)
	}
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.seen = now
	return cl.lim
}

// sweep drops idle buckets. rl.mu must be held.
func (rl *rateLimiter) sweep(now time.Time) {
	for k, cl := range rl.limiters {
		if now.Sub(cl.seen) > limiterIdle {
			delete(rl.limiters, k)
		}
	}
	rl.lastSweep = now
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(rl.key(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by token subject when the bearer token
// verifies, by remote IP otherwise.
func clientKey(v *auth.Verifier) func(*http.Request) string {
	return func(r *http.Request) string {
		if v != nil {
			if tok, ok := auth.Bearer(r); ok {
				if c, err := v.Verify(tok); err == nil {
					return "user:" + c.Subject
				}
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return "ip:" + host
	}
}
