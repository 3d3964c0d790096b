package main

import "sort"

const pointsPerLike = 100

// Result is one podium entry, derived on demand and never stored.
type Result struct {
	Round       int    `json:"round"`
	AuthorID    string `json:"author_uuid"`
	AuthorName  string `json:"author_username"`
	GifURL      string `json:"gif_url"`
	TotalPoints int    `json:"total_points"`
	LikeCount   int    `json:"likes"`
}

// computeResults groups the session's likes by author for each round and
// ranks the groups by like count, then total points. It mutates nothing, so
// repeated calls over the same session yield identical output. Ties beyond
// the ranking keys are broken by round then author id, which keeps the
// ordering independent of map enumeration order.
func computeResults(s *Session, roundLimit int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]Result, 0)

	for round := 1; round <= roundLimit; round++ {
		perAuthor := make(map[string]*Result)

		for _, l := range s.likes[round] {
			r, ok := perAuthor[l.authorID]
			if !ok {
				name := l.authorID
				if m := s.memberByIDLocked(l.authorID); m != nil {
					name = m.Name
				}

				r = &Result{
					Round:      round,
					AuthorID:   l.authorID,
					AuthorName: name,
					GifURL:     l.gifURL,
				}
				perAuthor[l.authorID] = r
			}

			r.TotalPoints += pointsPerLike
			r.LikeCount++
		}

		roundResults := make([]Result, 0, len(perAuthor))
		for _, r := range perAuthor {
			roundResults = append(roundResults, *r)
		}
		sort.Slice(roundResults, func(i, j int) bool {
			return roundResults[i].AuthorID < roundResults[j].AuthorID
		})

		results = append(results, roundResults...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].LikeCount != results[j].LikeCount {
			return results[i].LikeCount > results[j].LikeCount
		}
		return results[i].TotalPoints > results[j].TotalPoints
	})

	return results
}
