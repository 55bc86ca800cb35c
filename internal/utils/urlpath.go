package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointBase extracts scheme://host[:port] from a full URI.
// Example: https://10.0.0.2:32400/library/parts/1/file.mkv -> https://10.0.0.2:32400
func EndpointBase(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", rawURL)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// JoinEndpoint rebuilds a resource URI against another server endpoint.
// The resource path may carry its own query string.
func JoinEndpoint(base, resourcePath string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", base)
	}
	if resourcePath == "" {
		return parsed.String(), nil
	}
	if !strings.HasPrefix(resourcePath, "/") {
		resourcePath = "/" + resourcePath
	}
	return parsed.String() + resourcePath, nil
}
