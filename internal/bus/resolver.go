// internal/bus/resolver.go
package bus

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// ErrPortNotFound is returned when no serial device matches the platform patterns
var ErrPortNotFound = errors.New("no serial port found")

var (
	enumeratePorts = enumerator.GetDetailedPortsList
	globPorts      = filepath.Glob
)

// Resolver finds the serial device path of the bus adapter for a platform
type Resolver struct {
	patterns map[string][]string
	logger   *zap.Logger
}

// NewResolver creates a resolver over ordered glob patterns keyed by GOOS
func NewResolver(patterns map[string][]string, logger *zap.Logger) *Resolver {
	return &Resolver{
		patterns: patterns,
		logger:   logger.With(zap.String("component", "port_resolver")),
	}
}

// Resolve returns the first matching device path. Patterns are tried in
// order; matches within a pattern are sorted.
func (r *Resolver) Resolve(goos string) (string, error) {
	candidates, err := r.Candidates(goos)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w matching %v", ErrPortNotFound, r.patterns[goos])
	}

	r.logger.Debug("Resolved serial port",
		zap.String("port", candidates[0]),
		zap.Int("candidates", len(candidates)),
	)
	return candidates[0], nil
}

// Candidates lists every matching device path in resolution order
func (r *Resolver) Candidates(goos string) ([]string, error) {
	patterns := r.patterns[goos]
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no port patterns for platform %q", ErrPortNotFound, goos)
	}

	var enumerated []string
	ports, err := enumeratePorts()
	if err != nil {
		r.logger.Debug("Serial enumeration failed, using glob only", zap.Error(err))
	}
	for _, p := range ports {
		enumerated = append(enumerated, p.Name)
	}

	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		var matches []string
		for _, name := range enumerated {
			if ok, _ := filepath.Match(pattern, name); ok {
				matches = append(matches, name)
			}
		}
		globbed, err := globPorts(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid port pattern %q: %w", pattern, err)
		}
		matches = append(matches, globbed...)
		sort.Strings(matches)

		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}
