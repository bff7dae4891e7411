package stringentropy

import (
	"math"
	"unicode/utf8"
)

/*
Calculate returns the Shannon entropy of s in bits per character:

	E(S) = - sum(i in A) { p(i) * log2(p(i)) },

where A is the set of distinct characters (runes) of S and p(i) = c(i) / |S| is
the relative frequency of character i. The empty string has entropy 0. The
maximum value for a string of length N is log2(min(N, |A|)).
*/
func Calculate(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}

	counts := CharacterCounts(s)
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

/*
CalculateNormalised returns the entropy of s divided by the largest entropy a
string of the same length could have:

	E_n(S) := {
	    0,                  if |S| = 0
	    1,                  if |S| = 1
	    E(S) / log2(|S|),   otherwise
	}
*/
func CalculateNormalised(s string) float64 {
	length := utf8.RuneCountInString(s)
	switch length {
	case 0:
		return 0
	case 1:
		return 1
	default:
		return Calculate(s) / math.Log2(float64(length))
	}
}

// CharacterCounts maps each character (rune) of s to its number of occurrences.
func CharacterCounts(s string) map[rune]int {
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	return counts
}
