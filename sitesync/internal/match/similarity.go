package match

// minTokenDice is the bigram overlap below which two different tokens are
// treated as unrelated.
const minTokenDice = 0.5

// TextSimilarity scores two texts in [0,1]. Identical texts after Normalize
// score 1; an empty side scores 0. Otherwise each token is paired with its
// most similar token on the other side and the pair scores are averaged
// over both sides (a soft Dice coefficient).
func TextSimilarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

func similarity(na, nb string) float64 {
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ta, tb := tokens(na), tokens(nb)
	total := bestSum(ta, tb) + bestSum(tb, ta)
	return total / float64(len(ta)+len(tb))
}

func bestSum(from, to []string) float64 {
	var sum float64
	for _, x := range from {
		best := 0.0
		for _, y := range to {
			if s := tokenSimilarity(x, y); s > best {
				best = s
				if best == 1 {
					break
				}
			}
		}
		sum += best
	}
	return sum
}

// tokenSimilarity is 1 for equal tokens, otherwise the Dice coefficient of
// their character bigram multisets, or 0 when that is below minTokenDice.
// Tokens are compared as runes so "å" counts as one character.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}
	counts := make(map[[2]rune]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	common := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			common++
		}
	}
	d := 2 * float64(common) / float64(len(ba)+len(bb))
	if d < minTokenDice {
		return 0
	}
	return d
}

func bigrams(s string) [][2]rune {
	r := []rune(s)
	if len(r) < 2 {
		return nil
	}
	out := make([][2]rune, 0, len(r)-1)
	for i := 0; i+1 < len(r); i++ {
		out = append(out, [2]rune{r[i], r[i+1]})
	}
	return out
}
