// Package moderation screens incoming queries before any retrieval,
// caching, or generation work happens. A rejected query must never reach
// the cache or produce a cached answer.
package moderation

import (
	"strings"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// Rejection reasons used in metrics.
const (
	ReasonJailbreak   = "jailbreak"
	ReasonOutOfDomain = "out_of_domain"
)

// Gate screens queries against jailbreak patterns and, optionally, a
// domain vocabulary.
type Gate struct {
	enabled           bool
	jailbreakPatterns []string
	domainKeywords    []string
	log               *logger.Logger
	metrics           *metrics.Metrics
}

// NewGate builds a gate from configuration. Patterns and keywords are
// lowercased once here so every check is a plain substring scan.
func NewGate(cfg config.ModerationConfig, log *logger.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		enabled:           cfg.Enabled,
		jailbreakPatterns: lowerAll(cfg.JailbreakPatterns),
		domainKeywords:    lowerAll(cfg.DomainKeywords),
		log:               log,
		metrics:           m,
	}
}

// Screen checks a query and returns an error when it must be rejected.
//
// Jailbreak patterns are checked first: a query matching one is rejected
// even if it would also fail the domain check, so the client sees the
// more severe verdict. The domain check only runs when a vocabulary is
// configured; an empty vocabulary admits everything.
func (g *Gate) Screen(query string) error {
	if !g.enabled {
		return nil
	}

	lowered := strings.ToLower(query)

	for _, pattern := range g.jailbreakPatterns {
		if strings.Contains(lowered, pattern) {
			g.reject(ReasonJailbreak)
			return errors.JailbreakError()
		}
	}

	if len(g.domainKeywords) > 0 {
		matched := false
		for _, keyword := range g.domainKeywords {
			if strings.Contains(lowered, keyword) {
				matched = true
				break
			}
		}
		if !matched {
			g.reject(ReasonOutOfDomain)
			return errors.OutOfDomainError()
		}
	}

	return nil
}

func (g *Gate) reject(reason string) {
	if g.metrics != nil {
		g.metrics.ModerationRejections.WithLabels(reason).Inc()
	}
	g.log.Info("query rejected by moderation", "reason", reason)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
