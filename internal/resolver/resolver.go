// Package resolver links event bulletins back to the listing record they
// concern. No foreign key exists in the text, so resolution is a chain of
// increasingly loose match strategies over the birth directory.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/jumine/cpc-pipeline/internal/textnorm"
)

// Candidate is one birth-directory row a strategy may match.
type Candidate struct {
	ID           string
	CompanyName  string
	Ticker       string
	BulletinDate *string // ISO YYYY-MM-DD
}

// BirthDirectory is the read-only query surface the resolver needs. The
// postgres repository implements it; tests use an in-memory map.
type BirthDirectory interface {
	FindByTicker(ctx context.Context, ticker string) ([]Candidate, error)
	FindByCompanyTicker(ctx context.Context, company, ticker string) ([]Candidate, error)
	FindByCompanyLike(ctx context.Context, company string) ([]Candidate, error)
}

// Resolver runs the match strategy chain, stopping at the first hit:
// exact ticker, root-ticker variant (class suffix stripped, "ABC.A" vs
// "ABC"), exact company+ticker, then case-insensitive company substring.
// When several candidates match, the earliest bulletin date wins — the birth
// is the first chronological listing for that company/ticker.
type Resolver struct {
	dir BirthDirectory
}

func New(dir BirthDirectory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the matching birth id, or nil when every strategy comes up
// empty. Callers decide whether a nil id is fatal for their category.
func (r *Resolver) Resolve(ctx context.Context, company, ticker string) (*string, error) {
	t := strings.ToUpper(textnorm.CollapseSpace(ticker))
	c := strings.ToUpper(textnorm.CollapseSpace(company))

	if t != "" {
		cands, err := r.dir.FindByTicker(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("ticker lookup %q: %w", t, err)
		}
		if id := pick(cands); id != nil {
			return id, nil
		}

		if root := rootTicker(t); root != t {
			cands, err = r.dir.FindByTicker(ctx, root)
			if err != nil {
				return nil, fmt.Errorf("root ticker lookup %q: %w", root, err)
			}
			if id := pick(cands); id != nil {
				return id, nil
			}
		}
	}

	if c != "" && t != "" {
		cands, err := r.dir.FindByCompanyTicker(ctx, c, t)
		if err != nil {
			return nil, fmt.Errorf("company+ticker lookup %q/%q: %w", c, t, err)
		}
		if id := pick(cands); id != nil {
			return id, nil
		}
	}

	if c != "" {
		cands, err := r.dir.FindByCompanyLike(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("company lookup %q: %w", c, err)
		}
		if id := pick(cands); id != nil {
			return id, nil
		}
	}

	return nil, nil
}

// rootTicker strips any class suffix after a separator: "ABC.A" -> "ABC".
func rootTicker(t string) string {
	if i := strings.IndexAny(t, ".-"); i > 0 {
		return t[:i]
	}
	return t
}

// pick applies the earliest-bulletin-date tie-break. Candidates with no date
// lose to any dated candidate.
func pick(cands []Candidate) *string {
	var best *Candidate
	for i := range cands {
		c := &cands[i]
		if best == nil || earlier(c.BulletinDate, best.BulletinDate) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}

func earlier(a, b *string) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		// ISO dates order lexically
		return *a < *b
	}
}
