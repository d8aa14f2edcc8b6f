package mpesa

import (
	"encoding/base64"
	"time"
)

// Daraja expects timestamps in East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

const timestampLayout = "20060102150405"

func Timestamp(t time.Time) string { return t.In(eat).Format(timestampLayout) }

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
