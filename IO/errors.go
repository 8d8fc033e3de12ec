package IO

import "fmt"

// SequenceTooLongError reports a sentence whose token count exceeds the
// seq_len budget after reserving marker slots. Encoding of the offending
// example aborts; there is no silent truncation.
type SequenceTooLongError struct {
	Side   string // "source" or "target"
	Tokens int    // tokens in the sentence
	Budget int    // tokens that would still fit
}

func (e *SequenceTooLongError) Error() string {
	return fmt.Sprintf("%s sentence too long: %d tokens, budget %d", e.Side, e.Tokens, e.Budget)
}

// VocabularyMissingTokenError reports an id lookup for a token absent from
// the vocabulary. For reserved markers this indicates a corrupt or
// mismatched vocabulary file and is fatal.
type VocabularyMissingTokenError struct {
	Token string
}

func (e *VocabularyMissingTokenError) Error() string {
	return fmt.Sprintf("vocabulary has no token %q", e.Token)
}
