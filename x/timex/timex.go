package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Elapsed reports whether at least d milliseconds have passed between since
// and now. A zero since means "never" and always reports true.
func Elapsed(now, since, d int64) bool {
	if since == 0 {
		return true
	}
	return now-since >= d
}
