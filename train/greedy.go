package train

import (
	"encoding"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/IO"
	"github.com/manningwu07/translator/utils"
)

// Model is the contract the training loop and the greedy decoder need from
// the underlying network. transformer.Model satisfies it; the marshal side
// exists so checkpoints can treat the weights as an opaque blob.
type Model interface {
	Encode(src []int, srcMask []float64) *mat.Dense
	Decode(encOut *mat.Dense, srcMask []float64, tgt []int, tgtMask *mat.Dense) *mat.Dense
	Project(decOut *mat.Dense) *mat.Dense
	Backward(dLogits *mat.Dense)
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// UnsupportedBatchSizeError reports a greedy decode over anything but a
// single example. This is a contract violation, not a data problem.
type UnsupportedBatchSizeError struct {
	Size int
}

func (e *UnsupportedBatchSizeError) Error() string {
	return fmt.Sprintf("greedy decode requires batch size 1, got %d", e.Size)
}

// GreedyDecode translates one encoded source example autoregressively.
// The encoder output is computed exactly once and reused for every step.
// Each step picks the argmax token; the loop stops when [EOS] is emitted or
// the sequence reaches maxLen, whichever comes first. The returned ids
// start with [SOS].
func GreedyDecode(m Model, batch *IO.Batch, sosID, eosID, maxLen int) ([]int, error) {
	if batch.Size() != 1 {
		return nil, &UnsupportedBatchSizeError{Size: batch.Size()}
	}
	ex := batch.Examples[0]
	encOut := m.Encode(ex.EncoderInput, ex.EncoderMask)

	seq := []int{sosID}
	for {
		if len(seq) >= maxLen {
			break
		}
		mask := IO.CausalMask(len(seq))
		decOut := m.Decode(encOut, ex.EncoderMask, seq, mask)
		logits := m.Project(utils.LastCol(decOut))
		next := floats.MaxIdx(logits.RawMatrix().Data)
		seq = append(seq, next)
		if next == eosID {
			break
		}
	}
	return seq, nil
}
