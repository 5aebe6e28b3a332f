package realtime

import (
	"net/http"
	"time"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config defines fields used for configuring Handler instance
type config struct {
	writeWait      time.Duration
	pongWait       time.Duration
	handleTimeout  time.Duration
	maxMessageSize int64
	sendBuffer     int
	checkOrigin    func(r *http.Request) bool
}

func defaultConfig() config {
	return config{
		writeWait:      10 * time.Second,
		pongWait:       60 * time.Second,
		handleTimeout:  10 * time.Second,
		maxMessageSize: 8 << 10,
		sendBuffer:     32,
	}
}

// pingPeriod keeps pings ahead of the peer's read deadline
func (c config) pingPeriod() time.Duration {
	return c.pongWait * 9 / 10
}

// PongWait sets the time allowed to read the next pong from the peer
func PongWait(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.pongWait = d
	})
}

// SendBuffer sets the number of frames queued per connection before new ones are dropped
func SendBuffer(n int) Option {
	return optionFunc(func(c *config) {
		c.sendBuffer = n
	})
}

// AllowedOrigins restricts the Origin header of upgrade requests
// no origins keeps the websocket default of same host only, "*" allows any
func AllowedOrigins(origins []string) Option {
	return optionFunc(func(c *config) {
		if len(origins) == 0 {
			c.checkOrigin = nil
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		c.checkOrigin = func(r *http.Request) bool {
			if _, ok := allowed["*"]; ok {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	})
}
