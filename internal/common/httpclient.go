package common

import (
	"net/http"
	"time"
)

// UserAgent is sent with every outbound request
const UserAgent = "recon-flyover/1.0"

// NewHTTPClient creates an HTTP client with a fixed timeout and system proxy support
func NewHTTPClient(timeout time.Duration) *http.Client {
	// Use http.ProxyFromEnvironment to respect system proxy settings
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
