// Package gravatar builds avatar URLs from email addresses.
package gravatar

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"
)

// URL returns the gravatar image URL for an email address: 200px,
// PG-rated, with the "mystery man" default when no gravatar exists.
func URL(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	hash := md5.Sum([]byte(normalized))

	params := url.Values{}
	params.Set("s", "200")
	params.Set("r", "pg")
	params.Set("d", "mm")
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?%s", hash, params.Encode())
}
