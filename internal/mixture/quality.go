package mixture

import "strings"

// Scorer turns an answer into a quality signal in [0,1]. The engine treats it
// as an externally supplied oracle; the heuristic below is only a default.
type Scorer interface {
	Score(text string) float64
}

// HeuristicScorer approximates quality as normalized length times lexical
// diversity. It has no claim to measuring real answer quality; deployments
// that care should plug in their own Scorer.
type HeuristicScorer struct {
	// TargetWords is the word count treated as "full length". Default 200.
	TargetWords int
}

func (s HeuristicScorer) Score(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	target := s.TargetWords
	if target <= 0 {
		target = 200
	}
	lengthNorm := float64(len(words)) / float64(target)
	if lengthNorm > 1 {
		lengthNorm = 1
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	diversity := float64(len(unique)) / float64(len(words))
	score := lengthNorm * diversity
	if score > 1 {
		score = 1
	}
	return score
}
