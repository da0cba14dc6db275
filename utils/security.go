// goban/utils/security.go
package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

var (
	IPSalt string
)

// GetIPAddress extracts the real IP address from a request, trusting
// forwarding headers set by a reverse proxy.
func GetIPAddress(r *http.Request) string {
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// HashIP creates a salted SHA256 hash of a string (IP or cookie id) and
// returns a truncated hex string. Raw addresses are never stored.
func HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip + IPSalt))
	return hex.EncodeToString(hash[:16])
}

// GenerateTripcode splits "name#secret" into a display name and a derived,
// non-reversible tripcode. Without a secret the tripcode is empty.
func GenerateTripcode(name string) (string, string) {
	parts := strings.SplitN(name, "#", 2)
	displayName := strings.TrimSpace(parts[0])
	if len(parts) < 2 || parts[1] == "" {
		return displayName, ""
	}
	h := sha256.Sum256([]byte(parts[1] + "goban-trip-salt"))
	trip := base64.StdEncoding.EncodeToString(h[:])
	return displayName, "!" + trip[:10]
}
