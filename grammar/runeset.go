package grammar

import "slices"

type runePair struct{ lo, hi rune }

// runeSet is a canonical set of runes: sorted, disjoint, non-adjacent
// inclusive ranges.
type runeSet []runePair

func (s runeSet) contains(r rune) bool {
	_, ok := slices.BinarySearchFunc(s, r, func(p runePair, r rune) int {
		switch {
		case p.hi < r:
			return -1
		case p.lo > r:
			return 1
		}
		return 0
	})
	return ok
}

// union merges two sets into canonical form.
func (s runeSet) union(t runeSet) runeSet {
	if len(t) == 0 {
		return s
	}
	all := make(runeSet, 0, len(s)+len(t))
	all = append(all, s...)
	all = append(all, t...)
	slices.SortFunc(all, func(a, b runePair) int { return int(a.lo - b.lo) })

	out := all[:1]
	for _, p := range all[1:] {
		last := &out[len(out)-1]
		if p.lo <= last.hi+1 {
			if p.hi > last.hi {
				last.hi = p.hi
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s runeSet) equal(t runeSet) bool {
	return slices.Equal(s, t)
}

func (s runeSet) intersects(t runeSet) bool {
	i, j := 0, 0
	for i < len(s) && j < len(t) {
		if s[i].hi < t[j].lo {
			i++
		} else if t[j].hi < s[i].lo {
			j++
		} else {
			return true
		}
	}
	return false
}
