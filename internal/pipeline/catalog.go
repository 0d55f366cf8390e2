package pipeline

import (
	"context"

	"subservient/internal/opensubtitles"
	"subservient/internal/search"
)

// subtitleSearcher is the part of the catalog client the search engine needs.
type subtitleSearcher interface {
	Search(ctx context.Context, query, language string) ([]opensubtitles.Subtitle, error)
}

// catalogAdapter maps catalog results onto search candidates. The download
// count is the candidate identity.
type catalogAdapter struct {
	client subtitleSearcher
}

func (a catalogAdapter) Search(ctx context.Context, query, language string) ([]search.Candidate, error) {
	subs, err := a.client.Search(ctx, query, language)
	if err != nil {
		return nil, err
	}
	out := make([]search.Candidate, 0, len(subs))
	for _, s := range subs {
		out = append(out, search.Candidate{
			FileID:     s.FileID,
			FileName:   s.FileName,
			Release:    s.Release,
			Language:   s.Language,
			Popularity: s.DownloadCount,
		})
	}
	return out, nil
}
