package utils

import "os"

// GetJWTSecret returns the HMAC secret for access tokens.
func GetJWTSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}
