package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const clientIdleEviction = 10 * time.Minute

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter caps request throughput per client address. Every resolve
// call can fan out to metadata, subtitle, and stream providers, so a single
// misbehaving player must not be able to hammer them through us.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
}

// NewClientLimiter allows limit events per second with the given burst per
// client. For "5 per minute" pass rate.Every(12*time.Second) with burst 5.
func NewClientLimiter(limit rate.Limit, burst int) *ClientLimiter {
	cl := &ClientLimiter{
		clients: make(map[string]*clientEntry),
		limit:   limit,
		burst:   burst,
	}
	go cl.evictIdle()
	return cl
}

func (cl *ClientLimiter) limiterFor(addr string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, ok := cl.clients[addr]
	if !ok {
		limiter := rate.NewLimiter(cl.limit, cl.burst)
		cl.clients[addr] = &clientEntry{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (cl *ClientLimiter) evictIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		for addr, entry := range cl.clients {
			if time.Since(entry.lastSeen) > clientIdleEviction {
				delete(cl.clients, addr)
			}
		}
		cl.mu.Unlock()
	}
}

// Throttle wraps next with the per-client cap. Requests over the cap get a
// 429 with a Retry-After hint.
func (cl *ClientLimiter) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cl.limiterFor(clientAddr(r)).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr extracts the client address, honoring proxy forwarding headers.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
