package auth

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

// NewHTTPClient returns a client with a cookie jar, which carries the
// HTTP-only refresh cookie between exchanges.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "[NewHTTPClient] cookie jar")
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}
