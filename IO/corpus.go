package IO

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// Pair is one parallel sentence pair.
type Pair struct {
	Src string
	Tgt string
}

// LoadPairs reads a tab-separated bilingual corpus: one pair per line,
// source sentence, tab, target sentence. Blank lines are skipped. The
// returned slice is finite and supports as many passes as needed
// (vocabulary building, then batch encoding).
func LoadPairs(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()

	var pairs []Pair
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		src, tgt, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("corpus %s:%d: expected src<TAB>tgt", path, lineNo)
		}
		pairs = append(pairs, Pair{Src: src, Tgt: tgt})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("corpus %s: no pairs", path)
	}
	return pairs, nil
}

// Sentences extracts one side of the corpus for vocabulary building.
func Sentences(pairs []Pair, side string) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		if side == "src" {
			out[i] = p.Src
		} else {
			out[i] = p.Tgt
		}
	}
	return out
}

// SplitPairs keeps the first (1-valFrac) of pairs for training and the rest
// for validation. The split is positional, so it is stable across runs.
func SplitPairs(pairs []Pair, valFrac float64) (train, val []Pair) {
	n := int(float64(len(pairs)) * (1 - valFrac))
	if n < 1 {
		n = 1
	}
	if n >= len(pairs) {
		n = len(pairs) - 1
	}
	return pairs[:n], pairs[n:]
}

// ShufflePairs returns a copy of pairs in an order determined entirely by
// seed. Epoch ordering stays reproducible for a fixed seed.
func ShufflePairs(pairs []Pair, seed int64) []Pair {
	out := make([]Pair, len(pairs))
	copy(out, pairs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
