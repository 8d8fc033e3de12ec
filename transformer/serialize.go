package transformer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type weightTensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

type modelState struct {
	DModel       int
	SrcVocabSize int
	TgtVocabSize int
	SeqLen       int
	Tensors      []weightTensor
}

// MarshalBinary serializes all weights with gob. The blob round-trips
// exactly: UnmarshalBinary restores bit-equal parameters.
func (m *Model) MarshalBinary() ([]byte, error) {
	st := modelState{
		DModel:       m.DModel,
		SrcVocabSize: m.SrcVocabSize,
		TgtVocabSize: m.TgtVocabSize,
		SeqLen:       m.SeqLen,
	}
	for _, p := range m.params {
		r, c := p.W.Dims()
		raw := mat.DenseCopyOf(p.W).RawMatrix()
		st.Tensors = append(st.Tensors, weightTensor{
			Name: p.Name, Rows: r, Cols: c,
			Data: append([]float64(nil), raw.Data...),
		})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary loads weights saved by MarshalBinary into this model.
// The architecture must match; a dimension or name mismatch is an error.
func (m *Model) UnmarshalBinary(blob []byte) error {
	var st modelState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&st); err != nil {
		return fmt.Errorf("model state: %w", err)
	}
	if st.DModel != m.DModel || st.SrcVocabSize != m.SrcVocabSize ||
		st.TgtVocabSize != m.TgtVocabSize || st.SeqLen != m.SeqLen {
		return fmt.Errorf("model state: architecture mismatch (file d=%d Vs=%d Vt=%d L=%d)",
			st.DModel, st.SrcVocabSize, st.TgtVocabSize, st.SeqLen)
	}
	if len(st.Tensors) != len(m.params) {
		return fmt.Errorf("model state: have %d tensors, file has %d", len(m.params), len(st.Tensors))
	}
	for i, p := range m.params {
		wt := st.Tensors[i]
		if wt.Name != p.Name {
			return fmt.Errorf("model state: tensor %d is %q, file has %q", i, p.Name, wt.Name)
		}
		r, c := p.W.Dims()
		if wt.Rows != r || wt.Cols != c {
			return fmt.Errorf("model state: %s shape mismatch", p.Name)
		}
		copy(p.W.RawMatrix().Data, wt.Data)
	}
	return nil
}
