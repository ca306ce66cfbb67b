// Package identifier assigns the human readable business identifiers
// printed on clinic documents.
package identifier

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/metrics"
)

type Kind string

const (
	Patient Kind = "patient"
	Doctor  Kind = "doctor"
	Visit   Kind = "visit"
	Receipt Kind = "receipt"
)

// Scope controls when sequences restart.
type Scope string

const (
	// ScopeMonthly restarts every sequence at 1 each calendar month.
	ScopeMonthly Scope = "monthly"
	// ScopeGlobal keeps a single ever-increasing sequence per kind.
	ScopeGlobal Scope = "global"
)

const DefaultPrefix = "KMC"

type Config struct {
	Prefix string
	Scope  Scope
}

type Generator struct {
	prefix   string
	scope    Scope
	now      func() time.Time
	metrics  *metrics.Metrics
	patterns map[Kind]*regexp.Regexp
}

func NewGenerator(cfg Config, m *metrics.Metrics) *Generator {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Scope != ScopeGlobal {
		cfg.Scope = ScopeMonthly
	}
	p := regexp.QuoteMeta(cfg.Prefix)
	return &Generator{
		prefix:  cfg.Prefix,
		scope:   cfg.Scope,
		now:     time.Now,
		metrics: m,
		patterns: map[Kind]*regexp.Regexp{
			Patient: regexp.MustCompile(`^` + p + `-(0[1-9]|1[0-2])-\d{4}-\d{4,}$`),
			Doctor:  regexp.MustCompile(`^` + p + `-DOC-(0[1-9]|1[0-2])-\d{4}-\d{4,}$`),
			Visit:   regexp.MustCompile(`^` + p + `-VIS-(0[1-9]|1[0-2])\d{2}/\d{4,}$`),
			Receipt: regexp.MustCompile(`^` + p + `-RCT-(0[1-9]|1[0-2])-\d{4}-\d{4,}$`),
		},
	}
}

// WithClock replaces the time source. Used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// PeriodPrefix is everything before the sequence number for identifiers
// issued at t, e.g. "KMC-05-2024-" or "KMC-VIS-0524/".
func (g *Generator) PeriodPrefix(kind Kind, t time.Time) string {
	mm := fmt.Sprintf("%02d", int(t.Month()))
	yyyy := fmt.Sprintf("%04d", t.Year())
	switch kind {
	case Doctor:
		return g.prefix + "-DOC-" + mm + "-" + yyyy + "-"
	case Visit:
		return g.prefix + "-VIS-" + mm + fmt.Sprintf("%02d", t.Year()%100) + "/"
	case Receipt:
		return g.prefix + "-RCT-" + mm + "-" + yyyy + "-"
	default:
		return g.prefix + "-" + mm + "-" + yyyy + "-"
	}
}

// Format renders the identifier of kind with sequence seq issued at t.
func (g *Generator) Format(kind Kind, t time.Time, seq int) string {
	return g.PeriodPrefix(kind, t) + fmt.Sprintf("%04d", seq)
}

// ParseSequence extracts the trailing numeric segment of id, returning 0 when
// there is none.
func ParseSequence(id string) int {
	i := strings.LastIndexAny(id, "-/")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Valid reports whether id has the format of kind.
func (g *Generator) Valid(kind Kind, id string) bool {
	re, ok := g.patterns[kind]
	return ok && re.MatchString(id)
}

// Next assigns the next identifier of kind. It must run inside the
// transaction that inserts the record so the per-kind lock is held until
// commit.
func (g *Generator) Next(ctx context.Context, repo repository.IdentifierRepository, kind Kind) (string, error) {
	if err := repo.Lock(ctx, string(kind)); err != nil {
		return "", fmt.Errorf("failed to lock %s identifiers: %w", kind, err)
	}

	now := g.now()
	var seq int
	switch g.scope {
	case ScopeGlobal:
		highest, err := repo.MaxSequence(ctx, string(kind))
		if err != nil {
			return "", fmt.Errorf("failed to read last %s identifier: %w", kind, err)
		}
		seq = highest + 1
	default:
		last, err := repo.Last(ctx, string(kind), g.PeriodPrefix(kind, now))
		if err != nil {
			return "", fmt.Errorf("failed to read last %s identifier: %w", kind, err)
		}
		seq = ParseSequence(last) + 1
	}

	g.metrics.IdentifierIssued(string(kind))
	return g.Format(kind, now, seq), nil
}

// Assign returns supplied unchanged when it is set and well formed, and a
// freshly generated identifier when it is empty.
func (g *Generator) Assign(ctx context.Context, repo repository.IdentifierRepository, kind Kind, supplied string) (string, error) {
	supplied = strings.TrimSpace(supplied)
	if supplied == "" {
		return g.Next(ctx, repo, kind)
	}
	if !g.Valid(kind, supplied) {
		return "", errors.BadRequest(fmt.Sprintf("malformed %s identifier %q", kind, supplied), nil)
	}
	return supplied, nil
}
