package service

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const ipHashLength = 16

// IPHasher produces a one-way, truncated fingerprint of a client IP. It is
// good enough for rough dedup and useless for recovering the address.
type IPHasher struct {
	key []byte
}

func NewIPHasher(salt string) IPHasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return IPHasher{key: key}
}

func (h IPHasher) Hash(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		return ""
	}
	_, _ = mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))[:ipHashLength]
}
