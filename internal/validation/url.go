// Package validation checks user-supplied URLs and preview names before they
// reach a shell command, a filesystem path or an outbound connection.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ValidateURL validates URLs handed to the browser launcher or dialed as a
// preview server. Only http and https with a host are accepted.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	dangerous := []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r"}
	for _, char := range dangerous {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %s", char)
		}
	}

	if strings.Contains(rawURL, " ") {
		return fmt.Errorf("URL contains spaces")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidatePreviewName rejects template or function names that could escape
// the previews directory or smuggle control characters into output paths.
func ValidatePreviewName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("contains a path separator")
	}
	if name == "." || strings.HasPrefix(name, "..") {
		return fmt.Errorf("path traversal attempt detected")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("contains a control character")
		}
	}
	return nil
}
