package cache

import (
	"encoding/hex"
	"time"
)

func nowNanos() int64 {
	return time.Now().UnixNano()
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func hexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
