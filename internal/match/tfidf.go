package match

import "math"

// Lexical scores the word overlap of two documents on a 0-10 scale. It
// builds smoothed TF-IDF vectors over exactly the two documents, normalizes
// them to unit length and returns ten times their cosine, rounded to two
// decimals. A document with no tokens after preprocessing scores 0.
func Lexical(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	ca, cb := counts(ta), counts(tb)

	const n = 2.0
	idf := func(term string) float64 {
		df := 0.0
		if _, ok := ca[term]; ok {
			df++
		}
		if _, ok := cb[term]; ok {
			df++
		}
		return math.Log((1+n)/(1+df)) + 1
	}

	va, vb := weigh(ca, idf), weigh(cb, idf)
	var dot float64
	for term, wa := range va {
		dot += wa * vb[term]
	}
	return round2(clamp(dot*10, 0, 10))
}

func counts(tokens []string) map[string]float64 {
	out := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		out[t]++
	}
	return out
}

func weigh(tf map[string]float64, idf func(string) float64) map[string]float64 {
	out := make(map[string]float64, len(tf))
	var norm float64
	for term, c := range tf {
		w := c * idf(term)
		out[term] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for term := range out {
		out[term] /= norm
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
