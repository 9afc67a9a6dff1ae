// Package origin normalizes URIs to comparable web origins.
//
// Both the identity provider and relying parties canonicalize through this
// package so that audience binding reduces to exact string equality.
package origin

import (
	"errors"
	"net/url"
)

// ErrInvalidURI is returned when a URI cannot be reduced to an origin.
var ErrInvalidURI = errors.New("origin: invalid URI")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Canonicalize reduces an absolute http/https URI to its canonical origin:
// scheme://host, with the port appended only when it differs from the
// scheme's default.
func Canonicalize(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", ErrInvalidURI
	}

	defaultPort, ok := defaultPorts[parsed.Scheme]
	if !ok || parsed.Hostname() == "" {
		return "", ErrInvalidURI
	}

	if port := parsed.Port(); port != "" && port != defaultPort {
		return parsed.Scheme + "://" + parsed.Hostname() + ":" + port, nil
	}
	return parsed.Scheme + "://" + parsed.Hostname(), nil
}
