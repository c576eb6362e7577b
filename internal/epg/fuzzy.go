// SPDX-License-Identifier: MIT

package epg

// FindBest returns the allow-list entry closest to name by edit distance on
// normalized keys. An exact key match wins immediately; otherwise the best
// candidate within maxDist is returned. Ties keep the earlier entry.
func FindBest(name string, keys []string, maxDist int) (string, bool) {
	key := NameKey(name)
	if key == "" {
		return "", false
	}

	best := ""
	bestDist := maxDist + 1
	for _, k := range keys {
		if k == key {
			return k, true
		}
		if d := levenshtein(key, k); d < bestDist {
			bestDist = d
			best = k
		}
	}
	if bestDist <= maxDist {
		return best, true
	}
	return "", false
}

// levenshtein computes the rune-level edit distance with two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
