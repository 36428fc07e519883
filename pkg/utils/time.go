package utils

import "time"

// UnixNow returns the current time as unix seconds.
func UnixNow() int64 {
	return time.Now().Unix()
}
