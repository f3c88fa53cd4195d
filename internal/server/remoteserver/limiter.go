package remoteserver

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/yndnr/remotely/pkg/cmap"
)

// acceptLimiter applies a token bucket per remote IP to new connections.
type acceptLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cmap.Map[string, *rate.Limiter]
}

// newAcceptLimiter returns nil when perSecond is not positive.
func newAcceptLimiter(perSecond float64, burst int) *acceptLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &acceptLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cmap.New[string, *rate.Limiter](),
	}
}

// Allow reports whether a connection from addr may proceed.
func (l *acceptLimiter) Allow(addr net.Addr) bool {
	if l == nil {
		return true
	}
	ip := hostOf(addr)
	lim, _ := l.limiters.GetOrSet(ip, rate.NewLimiter(l.limit, l.burst))
	return lim.Allow()
}

// Prune drops limiters whose bucket has refilled, so idle addresses do not
// accumulate.
func (l *acceptLimiter) Prune() int {
	if l == nil {
		return 0
	}
	var idle []string
	l.limiters.Range(func(ip string, lim *rate.Limiter) bool {
		if lim.Tokens() >= float64(l.burst) {
			idle = append(idle, ip)
		}
		return true
	})
	for _, ip := range idle {
		l.limiters.Delete(ip)
	}
	return len(idle)
}

// Len returns the number of tracked addresses.
func (l *acceptLimiter) Len() int {
	if l == nil {
		return 0
	}
	return l.limiters.Count()
}

func hostOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
