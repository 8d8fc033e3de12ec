package IO

import (
	"gonum.org/v1/gonum/mat"
)

// EncodedExample is one sentence pair converted to fixed-length id
// sequences plus the masks teacher forcing needs. All four sequences have
// length exactly seq_len.
type EncodedExample struct {
	EncoderInput []int      // [SOS] src [EOS] PAD*
	EncoderMask  []float64  // 1 on non-pad positions
	DecoderInput []int      // [SOS] tgt PAD*
	DecoderMask  *mat.Dense // (seq_len x seq_len) pad AND causal, 0/1
	Label        []int      // tgt [EOS] PAD*
	SrcText      string
	TgtText      string
}

// Batch groups encoded examples for one optimizer step.
type Batch struct {
	Examples []*EncodedExample
}

func (b *Batch) Size() int { return len(b.Examples) }

// BatchEncoder converts raw sentence pairs into EncodedExamples for a fixed
// seq_len, using one vocabulary per language.
type BatchEncoder struct {
	SrcVocab *Vocabulary
	TgtVocab *Vocabulary
	SeqLen   int

	sosID int
	eosID int
	padID int
}

// NewBatchEncoder resolves the reserved marker ids up front; a vocabulary
// missing one of them is rejected here rather than mid-epoch.
func NewBatchEncoder(srcVocab, tgtVocab *Vocabulary, seqLen int) (*BatchEncoder, error) {
	sos, err := tgtVocab.TokenID(TokenSOS)
	if err != nil {
		return nil, err
	}
	eos, err := tgtVocab.TokenID(TokenEOS)
	if err != nil {
		return nil, err
	}
	pad, err := tgtVocab.TokenID(TokenPAD)
	if err != nil {
		return nil, err
	}
	for _, tok := range []string{TokenSOS, TokenEOS, TokenPAD} {
		if _, err := srcVocab.TokenID(tok); err != nil {
			return nil, err
		}
	}
	return &BatchEncoder{
		SrcVocab: srcVocab,
		TgtVocab: tgtVocab,
		SeqLen:   seqLen,
		sosID:    sos,
		eosID:    eos,
		padID:    pad,
	}, nil
}

func (e *BatchEncoder) SOSID() int { return e.sosID }
func (e *BatchEncoder) EOSID() int { return e.eosID }
func (e *BatchEncoder) PADID() int { return e.padID }

// EncodeExample builds the encoder/decoder/label sequences and masks for
// one pair. The source reserves 2 slots ([SOS],[EOS]), the decoder input
// and the label reserve 1 each ([SOS] resp. [EOS]); a sentence that leaves
// negative padding fails with SequenceTooLongError.
func (e *BatchEncoder) EncodeExample(p Pair) (*EncodedExample, error) {
	srcIDs, err := e.SrcVocab.Encode(p.Src)
	if err != nil {
		return nil, err
	}
	tgtIDs, err := e.TgtVocab.Encode(p.Tgt)
	if err != nil {
		return nil, err
	}

	encPad := e.SeqLen - len(srcIDs) - 2
	decPad := e.SeqLen - len(tgtIDs) - 1
	if encPad < 0 {
		return nil, &SequenceTooLongError{Side: "source", Tokens: len(srcIDs), Budget: e.SeqLen - 2}
	}
	if decPad < 0 {
		return nil, &SequenceTooLongError{Side: "target", Tokens: len(tgtIDs), Budget: e.SeqLen - 1}
	}

	encIn := make([]int, 0, e.SeqLen)
	encIn = append(encIn, e.sosID)
	encIn = append(encIn, srcIDs...)
	encIn = append(encIn, e.eosID)
	for i := 0; i < encPad; i++ {
		encIn = append(encIn, e.padID)
	}

	decIn := make([]int, 0, e.SeqLen)
	decIn = append(decIn, e.sosID)
	decIn = append(decIn, tgtIDs...)
	for i := 0; i < decPad; i++ {
		decIn = append(decIn, e.padID)
	}

	label := make([]int, 0, e.SeqLen)
	label = append(label, tgtIDs...)
	label = append(label, e.eosID)
	for i := 0; i < decPad; i++ {
		label = append(label, e.padID)
	}

	encMask := make([]float64, e.SeqLen)
	for i, id := range encIn {
		if id != e.padID {
			encMask[i] = 1
		}
	}

	decMask := CausalMask(e.SeqLen)
	for j, id := range decIn {
		if id != e.padID {
			continue
		}
		for i := 0; i < e.SeqLen; i++ {
			decMask.Set(i, j, 0)
		}
	}

	return &EncodedExample{
		EncoderInput: encIn,
		EncoderMask:  encMask,
		DecoderInput: decIn,
		DecoderMask:  decMask,
		Label:        label,
		SrcText:      p.Src,
		TgtText:      p.Tgt,
	}, nil
}

// EncodeAll encodes every pair, aborting on the first failure.
func (e *BatchEncoder) EncodeAll(pairs []Pair) ([]*EncodedExample, error) {
	out := make([]*EncodedExample, 0, len(pairs))
	for _, p := range pairs {
		ex, err := e.EncodeExample(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

// Batches groups examples into consecutive batches of at most size.
func Batches(examples []*EncodedExample, size int) []*Batch {
	if size < 1 {
		size = 1
	}
	var out []*Batch
	for i := 0; i < len(examples); i += size {
		end := i + size
		if end > len(examples) {
			end = len(examples)
		}
		out = append(out, &Batch{Examples: examples[i:end]})
	}
	return out
}

// CausalMask returns a (t x t) 0/1 matrix with 1 where position i may
// attend to position j, i.e. j <= i.
func CausalMask(t int) *mat.Dense {
	out := mat.NewDense(t, t, nil)
	for i := 0; i < t; i++ {
		for j := 0; j <= i; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}
