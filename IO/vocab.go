package IO

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordlevel"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// Reserved tokens, always present at the start of every vocabulary.
const (
	TokenUNK = "[UNK]"
	TokenSOS = "[SOS]"
	TokenEOS = "[EOS]"
	TokenPAD = "[PAD]"
)

var reserved = []string{TokenUNK, TokenSOS, TokenEOS, TokenPAD}

// Vocabulary is an immutable bidirectional token<->id table backed by a
// word-level whitespace tokenizer. Build it once per language with
// BuildVocabulary or load it back with LoadVocabulary.
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string

	tok *tk.Tokenizer
}

// BuildVocabulary trains a word-level tokenizer on sentences, keeping
// tokens seen at least minFreq times. The reserved tokens are registered
// first so their ids stay stable across builds.
func BuildVocabulary(sentences []string, minFreq int) (*Vocabulary, error) {
	corpus, err := writeTrainingCorpus(sentences)
	if err != nil {
		return nil, err
	}
	defer os.Remove(corpus)

	model := wordlevel.NewWordLevel(map[string]int{}, TokenUNK)
	tok := tk.NewTokenizer(model)
	tok.WithPreTokenizer(pretokenizer.NewWhitespaceSplit())

	trainer := wordlevel.NewWordLevelTrainer()
	trainer.MinFrequency = uint32(minFreq)
	trainer.SpecialTokens = []tk.AddedToken{
		tk.NewAddedToken(TokenUNK, true),
		tk.NewAddedToken(TokenSOS, true),
		tk.NewAddedToken(TokenEOS, true),
		tk.NewAddedToken(TokenPAD, true),
	}
	if err := tok.Train(trainer, []string{corpus}); err != nil {
		return nil, fmt.Errorf("vocabulary train: %w", err)
	}
	return newVocabulary(tok)
}

// writeTrainingCorpus spills sentences to a temp file, one per line, for
// the tokenizer trainer. The caller removes it.
func writeTrainingCorpus(sentences []string) (string, error) {
	f, err := os.CreateTemp("", "vocab-corpus-*.txt")
	if err != nil {
		return "", fmt.Errorf("vocabulary train: %w", err)
	}
	for _, s := range sentences {
		if _, err := fmt.Fprintln(f, s); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("vocabulary train: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("vocabulary train: %w", err)
	}
	return f.Name(), nil
}

// newVocabulary fills the id tables from a trained or loaded tokenizer and
// verifies the reserved tokens sit at their fixed ids 0..3.
func newVocabulary(tok *tk.Tokenizer) (*Vocabulary, error) {
	vocab := tok.GetVocab(true)
	idToToken := make([]string, len(vocab))
	tokenToID := make(map[string]int, len(vocab))
	for token, id := range vocab {
		if id < 0 || id >= len(idToToken) {
			return nil, fmt.Errorf("vocabulary: token %q has id %d outside 0..%d", token, id, len(idToToken)-1)
		}
		tokenToID[token] = id
		idToToken[id] = token
	}
	v := &Vocabulary{TokenToID: tokenToID, IDToToken: idToToken, tok: tok}
	for want, token := range reserved {
		id, err := v.TokenID(token)
		if err != nil {
			return nil, err
		}
		if id != want {
			return nil, fmt.Errorf("vocabulary: token %q has id %d, want %d", token, id, want)
		}
	}
	return v, nil
}

// Size is the number of entries in the table.
func (v *Vocabulary) Size() int { return len(v.IDToToken) }

// TokenID returns the id of tok, failing if the token is absent. Use it for
// reserved markers; Encode handles unknown corpus words via [UNK].
func (v *Vocabulary) TokenID(tok string) (int, error) {
	id, ok := v.TokenToID[tok]
	if !ok {
		return 0, &VocabularyMissingTokenError{Token: tok}
	}
	return id, nil
}

// Encode tokenizes text and maps each word to its id, with [UNK] for
// out-of-vocabulary words. No markers are added here; the batch encoder
// owns [SOS]/[EOS] placement.
func (v *Vocabulary) Encode(text string) ([]int, error) {
	enc, err := v.tok.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", text, err)
	}
	ids := make([]int, len(enc.Ids))
	for i, id := range enc.Ids {
		ids[i] = int(id)
	}
	return ids, nil
}

// Decode converts ids back to text, skipping reserved tokens.
func (v *Vocabulary) Decode(ids []int) string {
	out := make([]byte, 0, 8*len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(v.IDToToken) {
			continue
		}
		tok := v.IDToToken[id]
		if tok == TokenUNK || tok == TokenSOS || tok == TokenEOS || tok == TokenPAD {
			continue
		}
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, tok...)
	}
	return string(out)
}

// Save writes the tokenizer file to path.
func (v *Vocabulary) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return v.tok.Save(path)
}

// LoadVocabulary loads a tokenizer file written by Save.
func LoadVocabulary(path string) (*Vocabulary, error) {
	tok, err := tk.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab %s: %w", path, err)
	}
	return newVocabulary(tok)
}

// BuildOrLoadVocabulary loads path if it exists, otherwise builds from
// sentences and writes path. A rebuild over the same corpus produces an
// identical table, so cached and fresh runs agree.
func BuildOrLoadVocabulary(path string, sentences []string, minFreq int) (*Vocabulary, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadVocabulary(path)
	}
	v, err := BuildVocabulary(sentences, minFreq)
	if err != nil {
		return nil, err
	}
	if err := v.Save(path); err != nil {
		return nil, err
	}
	return v, nil
}
