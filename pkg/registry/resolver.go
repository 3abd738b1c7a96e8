package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// ambiguityBand is how close a runner-up score must be to the best score
// for the mention to count as ambiguous rather than resolved.
const ambiguityBand = 0.08

// Resolver matches raw mentions against the tenant-scoped registries.
type Resolver struct {
	repo          Repository
	threshold     float64
	maxCandidates int
	logger        *zap.Logger
}

// NewResolver creates an entity resolver. threshold is the minimum
// confidence for a unique match to resolve without clarification.
func NewResolver(repo Repository, threshold float64, maxCandidates int, logger *zap.Logger) *Resolver {
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &Resolver{
		repo:          repo,
		threshold:     threshold,
		maxCandidates: maxCandidates,
		logger:        logger.Named("resolver"),
	}
}

// Resolve maps every mention in the intent to registry candidates within
// the caller's district only.
func (r *Resolver) Resolve(ctx context.Context, districtKey string, it *models.Intent) (*models.ResolvedEntities, error) {
	out := &models.ResolvedEntities{}

	// Registries are fetched once per kind per turn.
	registries := make(map[models.EntityKind][]models.EntityRecord)
	for _, mention := range it.Mentions {
		if _, ok := registries[mention.Kind]; ok {
			continue
		}
		records, err := r.repo.List(ctx, districtKey, mention.Kind)
		if err != nil {
			return nil, fmt.Errorf("load %s registry: %w", mention.Kind, err)
		}
		registries[mention.Kind] = records
	}

	for _, mention := range it.Mentions {
		resolved := r.resolveOne(mention, registries[mention.Kind])
		out.Mentions = append(out.Mentions, resolved)

		r.logger.Debug("mention resolved",
			zap.String("kind", string(mention.Kind)),
			zap.String("status", string(resolved.Status)),
			zap.Int("candidates", len(resolved.Candidates)))
	}

	return out, nil
}

func (r *Resolver) resolveOne(mention models.Mention, records []models.EntityRecord) models.ResolvedMention {
	out := models.ResolvedMention{Raw: mention.Raw, Kind: mention.Kind, Status: models.MatchNotFound}

	var candidates []models.EntityCandidate
	for _, rec := range records {
		score := matchScore(mention.Raw, rec.CanonicalName)
		if score >= r.threshold {
			candidates = append(candidates, models.EntityCandidate{
				ID:            rec.ID,
				CanonicalName: rec.CanonicalName,
				Score:         score,
			})
		}
	}

	if len(candidates) == 0 {
		return out
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CanonicalName < candidates[j].CanonicalName
	})

	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}

	// A clear best match resolves; near ties are ambiguous and go back to
	// the user rather than being guessed at.
	if len(candidates) == 1 || candidates[0].Score-candidates[1].Score > ambiguityBand {
		out.Status = models.MatchResolved
		out.Match = &candidates[0]
		out.Candidates = candidates
		return out
	}

	out.Status = models.MatchAmbiguous
	out.Candidates = candidates
	return out
}

// matchScore computes a [0,1] confidence that mention refers to the
// canonical name. Comparison is case-insensitive and tolerates substring
// references ("Jack" for "Jack Garcia") and small misspellings.
func matchScore(mention, canonical string) float64 {
	m := strings.ToLower(strings.TrimSpace(mention))
	c := strings.ToLower(strings.TrimSpace(canonical))
	if m == "" || c == "" {
		return 0
	}
	if m == c {
		return 1
	}

	// Whole-word substring: score by how much of the canonical name the
	// mention covers, with a floor so short first names still resolve.
	if containsWord(c, m) {
		coverage := float64(len(m)) / float64(len(c))
		if coverage < 0.35 {
			coverage = 0.35
		}
		return 0.60 + 0.40*coverage
	}

	// Edit distance for misspellings ("Jak Garcia").
	dist := levenshteinDistance(m, c)
	longest := len(m)
	if len(c) > longest {
		longest = len(c)
	}
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// containsWord reports whether needle appears in haystack on word
// boundaries, so "art" does not match "Martinez".
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		startOK := start == 0 || haystack[start-1] == ' '
		endOK := end == len(haystack) || haystack[end] == ' '
		if startOK && endOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

// levenshteinDistance calculates the edit distance between two strings
// using a two-row DP table.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = minInt(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}
