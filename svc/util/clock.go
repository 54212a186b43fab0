package util

import (
	"net/http"
	"strconv"
	"time"
)

const TestNowHeader = "X-Test-Now-Ms"

// Clock supplies the current instant in milliseconds since the epoch.
type Clock interface {
	NowMs() int64
}

type SystemClock struct{}

func (SystemClock) NowMs() int64 { return time.Now().UnixMilli() }

type FixedClock int64

func (c FixedClock) NowMs() int64 { return int64(c) }

// RequestNowMs returns the clock's instant unless testMode is on and the
// request carries a positive integer X-Test-Now-Ms header.
func RequestNowMs(r *http.Request, c Clock, testMode bool) int64 {
	if testMode {
		if v := r.Header.Get(TestNowHeader); v != "" {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
				return ms
			}
		}
	}
	return c.NowMs()
}
