//go:build integration

package integration

import (
	"fmt"
	"time"
)

// TestOwner generates a unique identity provider user id using a timestamp
func TestOwner(suffix string) string {
	return fmt.Sprintf("user_%d_%s", time.Now().UnixNano(), suffix)
}

// TestIP returns an address from the documentation range, distinct per n
func TestIP(n int) string {
	return fmt.Sprintf("203.0.113.%d", n%250+1)
}
