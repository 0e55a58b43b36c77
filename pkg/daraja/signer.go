package daraja

import (
	"encoding/base64"
	"time"
)

const timestampLayout = "20060102150405"

// Timestamp formats t as the 14-digit YYYYMMDDHHMMSS string the processor
// expects. No timezone conversion: the processor wants server-local wall
// clock time.
func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Password derives the time-bound request password for the STK endpoints:
// base64(shortCode + passkey + timestamp). It must be recomputed per request
// together with its timestamp; a stale pair is rejected by the processor.
func Password(shortCode, passkey string, t time.Time) (password, timestamp string) {
	timestamp = Timestamp(t)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
	return password, timestamp
}
