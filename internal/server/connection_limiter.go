package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// LimitReason describes why an upgrade request was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

const limiterCleanupInterval = 5 * time.Minute

// ConnectionLimits gates the WebSocket upgrade path: a global cap on
// concurrent sessions, a per-IP cap, and a per-IP token bucket on new
// connection attempts. One misbehaving source cannot exhaust the instance.
type ConnectionLimits struct {
	current   atomic.Int64
	globalMax int64

	mu        sync.Mutex
	perIP     map[string]int
	perIPMax  int
	buckets   map[string]*rateBucket
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax: globalMax,
		perIP:     make(map[string]int),
		perIPMax:  perIPMax,
		buckets:   make(map[string]*rateBucket),
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(limiterCleanupInterval),
	}
}

// Acquire claims a connection slot for the given IP. On refusal it returns
// false and the limit that was hit; nothing is held.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}

	for {
		current := l.current.Load()
		if current >= l.globalMax {
			return false, LimitReasonGlobal
		}
		if l.current.CompareAndSwap(current, current+1) {
			break
		}
	}

	l.mu.Lock()
	if l.perIP[ip] >= l.perIPMax {
		l.mu.Unlock()
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	l.mu.Unlock()

	return true, ""
}

// Release returns the slot claimed by a successful Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 0 {
		if count == 1 {
			delete(l.perIP, ip)
		} else {
			l.perIP[ip] = count - 1
		}
	}
	l.mu.Unlock()
	l.current.Add(-1)
}

// Current returns the number of held connection slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-2 * limiterCleanupInterval)
		for addr, bucket := range l.buckets {
			if bucket.lastSeen.Before(cutoff) {
				delete(l.buckets, addr)
			}
		}
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	bucket, exists := l.buckets[ip]
	if !exists {
		bucket = &rateBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}
