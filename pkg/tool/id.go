package tool

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// APIKeyPrefix marks CasperFlow subscription credentials.
const APIKeyPrefix = "cf_sk_"

const apiKeyRandomLen = 32

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateAPIKey returns a fresh bearer credential: the prefix followed by
// 32 URL-safe characters drawn from crypto/rand.
func GenerateAPIKey() (string, error) {
	// 24 random bytes encode to exactly 32 base64 characters
	buf := make([]byte, apiKeyRandomLen*3/4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsAPIKeyFormat reports whether key carries the credential prefix.
func IsAPIKeyFormat(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix) && len(key) > len(APIKeyPrefix)
}
