package stash

import (
	"sort"
	"strings"
	"time"
)

// SearchPaginated scores every article against the query and returns one
// page of results ordered by descending relevance. The full scan is an
// intentional trade-off: dataset sizes for a personal bookmarking tool stay
// small enough that an index is not worth carrying.
func (r *Repository) SearchPaginated(query string, opts ListOptions) (*Page, error) {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return &Page{Articles: []Article{}}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	articles, err := r.store.AllArticles()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scored := make([]scoredArticle, 0, len(articles))
	for _, a := range articles {
		score := scoreArticle(&a, tokens)
		// Recency must not resurrect non-matches.
		if score > 0 && now.Sub(time.UnixMilli(a.Timestamp)) < recencyWindow {
			score += recencyBonus
		}
		if score > 0 {
			scored = append(scored, scoredArticle{article: a, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].article.Timestamp != scored[j].article.Timestamp {
			return scored[i].article.Timestamp > scored[j].article.Timestamp
		}
		return scored[i].article.URL > scored[j].article.URL
	})

	// Search pages are positions in the scored list, not timestamp ranges;
	// the cursor locates the previous page's last item by (timestamp, url).
	start := 0
	if opts.Cursor != nil {
		for i, s := range scored {
			if s.article.Timestamp == opts.Cursor.Timestamp && s.article.URL == opts.Cursor.URL {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	page := &Page{}
	if end < len(scored) {
		page.HasMore = true
	} else {
		end = len(scored)
	}

	page.Articles = make([]Article, 0, end-start)
	for _, s := range scored[start:end] {
		page.Articles = append(page.Articles, s.article)
	}
	if page.HasMore && len(page.Articles) > 0 {
		last := page.Articles[len(page.Articles)-1]
		page.NextCursor = &Cursor{Timestamp: last.Timestamp, URL: last.URL}
	}

	return page, nil
}

type scoredArticle struct {
	article Article
	score   float64
}

// tokenizeQuery splits on whitespace and discards tokens too short to carry
// signal.
func tokenizeQuery(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= minSearchTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// scoreArticle sums per-token relevance. Title matches use the best tier
// only: exact beats prefix beats substring.
func scoreArticle(a *Article, tokens []string) float64 {
	title := strings.ToLower(a.Title)
	description := strings.ToLower(a.Description)
	domain := strings.ToLower(a.Domain)

	var score float64
	for _, token := range tokens {
		switch {
		case title == token:
			score += scoreTitleExact
		case strings.HasPrefix(title, token):
			score += scoreTitlePrefix
		case strings.Contains(title, token):
			score += scoreTitleSubstring
		}

		if description != "" && strings.Contains(description, token) {
			score += scoreDescription
		}

		for _, tag := range a.Tags {
			if strings.Contains(strings.ToLower(tag), token) {
				score += scoreTag
				break
			}
		}

		if domain != "" && strings.Contains(domain, token) {
			score += scoreDomain
		}
	}

	return score
}
