package merge

import (
	"bytes"
	"cmp"
	"slices"

	"dvrestore/internal/quality"
)

// rank orders candidates cleanest first; equal scores keep capture order.
func rank(cands []decoded) {
	slices.SortStableFunc(cands, func(a, b decoded) int {
		if c := quality.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.ordinal, b.ordinal)
	})
}

// pickScore returns the first ranked candidate holding block b valid, or -1.
func pickScore(cands []decoded, b int) int {
	for k, c := range cands {
		if c.frame.Valid(b) {
			return k
		}
	}
	return -1
}

// pickVote returns the best-ranked member of the largest group of candidates
// carrying byte-identical valid content for block b. Without a group of two
// or more it keeps fallback.
func pickVote(cands []decoded, b int, fallback int) int {
	best, bestVotes := fallback, 1
	for k, c := range cands {
		if !c.frame.Valid(b) {
			continue
		}
		votes := 1
		for j := k + 1; j < len(cands); j++ {
			o := cands[j]
			if o.frame.Valid(b) && bytes.Equal(c.frame.Block(b), o.frame.Block(b)) {
				votes++
			}
		}
		if votes > bestVotes {
			best, bestVotes = k, votes
		}
	}
	return best
}
