package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"subservient/internal/ledger"
	"subservient/internal/logging"
)

// Candidate is one catalog result for a (video, language).
type Candidate struct {
	FileID     int64
	FileName   string
	Release    string
	Language   string
	Popularity int64
}

// Catalog runs a remote subtitle search.
type Catalog interface {
	Search(ctx context.Context, query, language string) ([]Candidate, error)
}

// Rung is a step of the escalation ladder, from narrowest to broadest.
type Rung int

const (
	RungStrict Rung = iota + 1
	RungUnfiltered
	RungSimplified
	RungSimplifiedUnfiltered
	RungLastResort
	// RungNone means every rung came back without a new candidate.
	RungNone
)

func (r Rung) String() string {
	switch r {
	case RungStrict:
		return "strict"
	case RungUnfiltered:
		return "unfiltered"
	case RungSimplified:
		return "simplified"
	case RungSimplifiedUnfiltered:
		return "simplified_unfiltered"
	case RungLastResort:
		return "last_resort"
	case RungNone:
		return "none"
	default:
		return fmt.Sprintf("rung(%d)", int(r))
	}
}

// Request describes one search for a pair.
type Request struct {
	Snapshot ledger.Snapshot
	// Query is the strict query; Simplified is used from rung 3 on.
	Query      string
	Simplified string
	// Release is the whole release name. Only the last resort searches it.
	Release string
	// MaxResults is the pool cap for the pair.
	MaxResults int
	// Override, when positive, replaces the pool cap for an operator query:
	// up to Override new candidates are planned however many files the pair
	// already holds.
	Override int
	// Attempted holds popularity scores already tried earlier in this pass
	// whose download did not land in the ledger.
	Attempted map[int64]struct{}
}

// Plan is the outcome of walking the ladder.
type Plan struct {
	Rung       Rung
	Query      string
	Candidates []Candidate
	StartSlot  int
	// LimitReached is set when the pair already holds MaxResults candidate
	// files. The ladder is not walked in that case.
	LimitReached bool
}

// Empty reports whether the plan carries nothing to download.
func (p Plan) Empty() bool {
	return len(p.Candidates) == 0
}

// Engine walks the escalation ladder against a Catalog.
type Engine struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(catalog Catalog, logger *slog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "search"),
	}
}

// Plan returns the candidates of the first rung at or after from that
// yields anything not already in the ledger. Catalog errors are returned
// as is; the caller decides whether to try again on the next pass.
func (e *Engine) Plan(ctx context.Context, req Request, from Rung) (Plan, error) {
	snap := req.Snapshot
	lang := snap.Pair.Language
	total := snap.TotalExisting()
	budget := req.MaxResults - total
	if req.Override > 0 {
		budget = req.Override
	} else if budget <= 0 {
		e.logger.Info("pool cap reached",
			logging.String(logging.FieldEventType, "search_limit_reached"),
			logging.String(logging.FieldVideo, snap.Pair.Video),
			logging.String(logging.FieldLanguage, lang),
			logging.Int("existing", total),
			logging.Int("max_search_results", req.MaxResults),
		)
		return Plan{Rung: RungNone, Query: req.Query, LimitReached: true}, nil
	}
	known := snap.KnownPopularity()
	for p := range req.Attempted {
		known[p] = struct{}{}
	}
	if from < RungStrict {
		from = RungStrict
	}

	cache := make(map[string][]Candidate)
	search := func(query string) ([]Candidate, error) {
		if results, ok := cache[query]; ok {
			return results, nil
		}
		results, err := e.catalog.Search(ctx, query, lang)
		if err != nil {
			return nil, err
		}
		cache[query] = results
		return results, nil
	}

	for rung := from; rung <= RungLastResort; rung++ {
		query := req.Query
		if rung >= RungSimplified && rung != RungLastResort && req.Simplified != "" {
			query = req.Simplified
		}
		if query == "" {
			continue
		}
		var picked []Candidate
		switch rung {
		case RungStrict, RungSimplified:
			results, err := search(query)
			if err != nil {
				return Plan{}, err
			}
			picked = rank(filterByQuery(results, query), known, budget)
		case RungUnfiltered, RungSimplifiedUnfiltered:
			results, err := search(query)
			if err != nil {
				return Plan{}, err
			}
			picked = rank(results, known, budget)
		case RungLastResort:
			var pool []Candidate
			for _, q := range uniqueQueries(req.Query, req.Simplified, req.Release) {
				results, err := search(q)
				if err != nil {
					return Plan{}, err
				}
				pool = append(pool, results...)
			}
			picked = rank(pool, known, budget)
		}
		e.logger.Info("search rung evaluated",
			logging.String(logging.FieldEventType, "search_rung"),
			logging.String(logging.FieldVideo, snap.Pair.Video),
			logging.String(logging.FieldLanguage, lang),
			logging.String("rung", rung.String()),
			logging.String("query", query),
			logging.Int("new_candidates", len(picked)),
			logging.Int("budget", budget),
		)
		if len(picked) > 0 {
			return Plan{
				Rung:       rung,
				Query:      query,
				Candidates: picked,
				StartSlot:  snap.NextSlot(),
			}, nil
		}
	}
	return Plan{Rung: RungNone, Query: req.Query}, nil
}

func filterByQuery(results []Candidate, query string) []Candidate {
	words := FilterWords(query)
	var kept []Candidate
	for _, c := range results {
		if Matches(c.FileName, words) {
			kept = append(kept, c)
		}
	}
	return kept
}

// rank drops known and repeated popularity scores, orders by popularity
// (highest first, catalog order breaking ties) and truncates to budget.
func rank(results []Candidate, known map[int64]struct{}, budget int) []Candidate {
	seen := make(map[int64]struct{}, len(results))
	fresh := make([]Candidate, 0, len(results))
	for _, c := range results {
		if _, ok := known[c.Popularity]; ok {
			continue
		}
		if _, ok := seen[c.Popularity]; ok {
			continue
		}
		seen[c.Popularity] = struct{}{}
		fresh = append(fresh, c)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Popularity > fresh[j].Popularity
	})
	if budget >= 0 && len(fresh) > budget {
		fresh = fresh[:budget]
	}
	return fresh
}

func uniqueQueries(queries ...string) []string {
	var out []string
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
