// Package server checks the Origin header of WebSocket upgrade requests
// against the configured allow list.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

var errInvalidOrigin = errors.New("origin must have the form scheme://host")

// originPolicy decides which browser origins may open a WebSocket. Origins
// are compared in their lower-case scheme://host form.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *zap.Logger
}

func newOriginPolicy(origins []string, logger *zap.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, raw := range origins {
		origin := strings.TrimSpace(raw)
		switch origin {
		case "":
		case "*":
			p.allowAll = true
		default:
			key, err := canonicalOrigin(origin)
			if err != nil {
				logger.Warn("ignoring invalid allowed origin", zap.String("origin", raw), zap.Error(err))
				continue
			}
			p.allowed[key] = struct{}{}
		}
	}
	return p
}

func canonicalOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errInvalidOrigin
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

// allows reports whether a request with the given Origin header may connect.
// A missing or malformed header is refused even under a wildcard.
func (p *originPolicy) allows(origin string) bool {
	key, err := canonicalOrigin(origin)
	if err != nil {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[key]
	return ok
}

// checkOrigin is the upgrader's CheckOrigin hook.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.allows(origin) {
		return true
	}

	p.logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", origin))
	return false
}
