package train

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/IO"
	"github.com/manningwu07/translator/transformer"
)

func decodeFixture(t *testing.T) (*transformer.Model, *IO.BatchEncoder, *IO.EncodedExample) {
	t.Helper()
	rand.Seed(42)
	v, err := IO.BuildVocabulary([]string{"a b c d e"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := IO.NewBatchEncoder(v, v, 8)
	if err != nil {
		t.Fatal(err)
	}
	m := transformer.NewModel(v.Size(), v.Size(), 8, 4)
	ex, err := enc.EncodeExample(IO.Pair{Src: "a b c", Tgt: "d e"})
	if err != nil {
		t.Fatal(err)
	}
	return m, enc, ex
}

func TestGreedyDecodeRejectsBatch(t *testing.T) {
	m, enc, ex := decodeFixture(t)
	batch := &IO.Batch{Examples: []*IO.EncodedExample{ex, ex}}

	var wrongSize *UnsupportedBatchSizeError
	_, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), 8)
	if !errors.As(err, &wrongSize) {
		t.Fatalf("got %v, want UnsupportedBatchSizeError", err)
	}
	if wrongSize.Size != 2 {
		t.Fatalf("Size = %d, want 2", wrongSize.Size)
	}
}

func TestGreedyDecodeDeterministic(t *testing.T) {
	m, enc, ex := decodeFixture(t)
	batch := &IO.Batch{Examples: []*IO.EncodedExample{ex}}

	a, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequences differ at %d: %v vs %v", i, a, b)
		}
	}
}

func TestGreedyDecodeTerminates(t *testing.T) {
	m, enc, ex := decodeFixture(t)
	batch := &IO.Batch{Examples: []*IO.EncodedExample{ex}}

	for _, maxLen := range []int{2, 4, 8} {
		ids, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), maxLen)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) > maxLen {
			t.Fatalf("maxLen %d: got %d tokens", maxLen, len(ids))
		}
		if ids[0] != enc.SOSID() {
			t.Fatalf("sequence must start with SOS, got %d", ids[0])
		}
		// anything shorter than the bound must have stopped on EOS
		if len(ids) < maxLen && ids[len(ids)-1] != enc.EOSID() {
			t.Fatalf("early stop without EOS: %v", ids)
		}
	}
}

func TestGreedyDecodeDegenerateMaxLen(t *testing.T) {
	m, enc, ex := decodeFixture(t)
	batch := &IO.Batch{Examples: []*IO.EncodedExample{ex}}

	// a bound at or below the initial [SOS] stops before the first step
	for _, maxLen := range []int{1, 0, -3} {
		ids, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), maxLen)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 1 || ids[0] != enc.SOSID() {
			t.Fatalf("maxLen %d: ids = %v, want [SOS]", maxLen, ids)
		}
	}
}

// fixedNextModel always predicts the same next token, so termination
// behavior can be pinned down exactly.
type fixedNextModel struct {
	vocab int
	next  int
}

func (s *fixedNextModel) Encode(src []int, _ []float64) *mat.Dense {
	return mat.NewDense(1, len(src), nil)
}

func (s *fixedNextModel) Decode(_ *mat.Dense, _ []float64, tgt []int, _ *mat.Dense) *mat.Dense {
	return mat.NewDense(1, len(tgt), nil)
}

func (s *fixedNextModel) Project(dec *mat.Dense) *mat.Dense {
	_, c := dec.Dims()
	out := mat.NewDense(s.vocab, c, nil)
	for j := 0; j < c; j++ {
		out.Set(s.next, j, 1)
	}
	return out
}

func (s *fixedNextModel) Backward(*mat.Dense)            {}
func (s *fixedNextModel) MarshalBinary() ([]byte, error) { return nil, nil }
func (s *fixedNextModel) UnmarshalBinary([]byte) error   { return nil }

func TestGreedyDecodeNaturalTermination(t *testing.T) {
	_, enc, ex := decodeFixture(t)
	batch := &IO.Batch{Examples: []*IO.EncodedExample{ex}}

	m := &fixedNextModel{vocab: 10, next: enc.EOSID()}
	ids, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), 8)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{enc.SOSID(), enc.EOSID()}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}
