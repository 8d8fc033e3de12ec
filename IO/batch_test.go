package IO

import (
	"errors"
	"strings"
	"testing"
)

func testVocab(t *testing.T, sentences ...string) *Vocabulary {
	t.Helper()
	v, err := BuildVocabulary(sentences, 1)
	if err != nil {
		t.Fatalf("BuildVocabulary: %v", err)
	}
	return v
}

func testEncoder(t *testing.T, seqLen int) *BatchEncoder {
	t.Helper()
	v := testVocab(t, "a b c d e")
	enc, err := NewBatchEncoder(v, v, seqLen)
	if err != nil {
		t.Fatalf("NewBatchEncoder: %v", err)
	}
	return enc
}

func TestEncodeExampleLengthsAndPadding(t *testing.T) {
	enc := testEncoder(t, 10)

	// src "a b" = 2 tokens, tgt "c d e" = 3 tokens
	ex, err := enc.EncodeExample(Pair{Src: "a b", Tgt: "c d e"})
	if err != nil {
		t.Fatalf("EncodeExample: %v", err)
	}

	if len(ex.EncoderInput) != 10 || len(ex.DecoderInput) != 10 ||
		len(ex.Label) != 10 || len(ex.EncoderMask) != 10 {
		t.Fatalf("sequence lengths: enc=%d dec=%d label=%d mask=%d, want 10",
			len(ex.EncoderInput), len(ex.DecoderInput), len(ex.Label), len(ex.EncoderMask))
	}

	// [SOS, a, b, EOS] then exactly 6 pad slots
	if ex.EncoderInput[0] != enc.SOSID() {
		t.Fatalf("encoder input must start with SOS, got %d", ex.EncoderInput[0])
	}
	if ex.EncoderInput[3] != enc.EOSID() {
		t.Fatalf("encoder input[3] = %d, want EOS %d", ex.EncoderInput[3], enc.EOSID())
	}
	for i := 4; i < 10; i++ {
		if ex.EncoderInput[i] != enc.PADID() {
			t.Fatalf("encoder input[%d] = %d, want PAD", i, ex.EncoderInput[i])
		}
	}

	if ex.DecoderInput[0] != enc.SOSID() {
		t.Fatalf("decoder input must start with SOS")
	}
	// label = tgt ids, then EOS, then pad
	if ex.Label[3] != enc.EOSID() {
		t.Fatalf("label[3] = %d, want EOS %d", ex.Label[3], enc.EOSID())
	}
	for i := 4; i < 10; i++ {
		if ex.Label[i] != enc.PADID() {
			t.Fatalf("label[%d] = %d, want PAD", i, ex.Label[i])
		}
	}

	for i := 0; i < 4; i++ {
		if ex.EncoderMask[i] != 1 {
			t.Fatalf("encoder mask[%d] = %v, want 1", i, ex.EncoderMask[i])
		}
	}
	for i := 4; i < 10; i++ {
		if ex.EncoderMask[i] != 0 {
			t.Fatalf("encoder mask[%d] = %v, want 0", i, ex.EncoderMask[i])
		}
	}
}

func TestDecoderMaskCausalAndPad(t *testing.T) {
	enc := testEncoder(t, 8)
	ex, err := enc.EncodeExample(Pair{Src: "a b c", Tgt: "d e"})
	if err != nil {
		t.Fatalf("EncodeExample: %v", err)
	}

	// decoder input = [SOS, d, e, PAD*5]; mask[i][j] = 1 iff j <= i and j non-pad
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			want := 0.0
			if j <= i && ex.DecoderInput[j] != enc.PADID() {
				want = 1.0
			}
			if got := ex.DecoderMask.At(i, j); got != want {
				t.Fatalf("decoder mask[%d][%d] = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestEncodeExampleBoundaryFits(t *testing.T) {
	enc := testEncoder(t, 6)

	// src 4 tokens + 2 markers == seq_len: fits exactly
	if _, err := enc.EncodeExample(Pair{Src: "a b c d", Tgt: "a"}); err != nil {
		t.Fatalf("source at budget should encode: %v", err)
	}
	// tgt 5 tokens + 1 marker == seq_len: fits exactly
	if _, err := enc.EncodeExample(Pair{Src: "a", Tgt: "a b c d e"}); err != nil {
		t.Fatalf("target at budget should encode: %v", err)
	}
}

func TestEncodeExampleTooLong(t *testing.T) {
	enc := testEncoder(t, 6)

	var tooLong *SequenceTooLongError
	_, err := enc.EncodeExample(Pair{Src: "a b c d e", Tgt: "a"})
	if !errors.As(err, &tooLong) {
		t.Fatalf("overlong source: got %v, want SequenceTooLongError", err)
	}
	if tooLong.Side != "source" {
		t.Fatalf("error side = %q, want source", tooLong.Side)
	}

	_, err = enc.EncodeExample(Pair{Src: "a", Tgt: "a b c d e a"})
	if !errors.As(err, &tooLong) {
		t.Fatalf("overlong target: got %v, want SequenceTooLongError", err)
	}
	if tooLong.Side != "target" {
		t.Fatalf("error side = %q, want target", tooLong.Side)
	}
}

func TestCausalMask(t *testing.T) {
	m := CausalMask(4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if j <= i {
				want = 1.0
			}
			if m.At(i, j) != want {
				t.Fatalf("causal mask[%d][%d] = %v, want %v", i, j, m.At(i, j), want)
			}
		}
	}
}

func TestBatches(t *testing.T) {
	enc := testEncoder(t, 8)
	pairs := []Pair{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "e"}, {"e", "a"}}
	examples, err := enc.EncodeAll(pairs)
	if err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	batches := Batches(examples, 2)
	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3", len(batches))
	}
	sizes := []int{batches[0].Size(), batches[1].Size(), batches[2].Size()}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v, want [2 2 1]", sizes)
	}
}

func TestMissingReservedTokenRejected(t *testing.T) {
	v := testVocab(t, "a b")
	broken := &Vocabulary{
		TokenToID: map[string]int{},
		IDToToken: nil,
	}
	for tok, id := range v.TokenToID {
		if tok == TokenEOS {
			continue
		}
		broken.TokenToID[tok] = id
	}

	var missing *VocabularyMissingTokenError
	_, err := NewBatchEncoder(v, broken, 8)
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want VocabularyMissingTokenError", err)
	}
	if missing.Token != TokenEOS {
		t.Fatalf("missing token = %q, want %q", missing.Token, TokenEOS)
	}
}

func TestVocabularyEncodeDecode(t *testing.T) {
	v := testVocab(t, "the cat sat", "the dog sat")

	ids, err := v.Encode("the cat flew")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	unk, _ := v.TokenID(TokenUNK)
	if ids[2] != unk {
		t.Fatalf("unknown word should map to UNK, got %d", ids[2])
	}

	// reserved tokens occupy the first four ids, in order
	for want, tok := range []string{TokenUNK, TokenSOS, TokenEOS, TokenPAD} {
		id, err := v.TokenID(tok)
		if err != nil {
			t.Fatalf("TokenID(%s): %v", tok, err)
		}
		if id != want {
			t.Fatalf("id(%s) = %d, want %d", tok, id, want)
		}
	}

	sos, _ := v.TokenID(TokenSOS)
	eos, _ := v.TokenID(TokenEOS)
	sent, err := v.Encode("the cat sat")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := v.Decode(append(append([]int{sos}, sent...), eos))
	if text != "the cat sat" {
		t.Fatalf("Decode round trip = %q", text)
	}
}

func TestVocabularyDeterministicAndIdempotent(t *testing.T) {
	sentences := []string{"b a a", "c b a", "c c c"}
	v1, err := BuildVocabulary(sentences, 1)
	if err != nil {
		t.Fatalf("BuildVocabulary: %v", err)
	}
	v2, err := BuildVocabulary(sentences, 1)
	if err != nil {
		t.Fatalf("BuildVocabulary: %v", err)
	}
	if strings.Join(v1.IDToToken, "|") != strings.Join(v2.IDToToken, "|") {
		t.Fatalf("two builds disagree: %v vs %v", v1.IDToToken, v2.IDToToken)
	}

	path := t.TempDir() + "/vocab.json"
	loaded, err := BuildOrLoadVocabulary(path, sentences, 1)
	if err != nil {
		t.Fatalf("BuildOrLoadVocabulary: %v", err)
	}
	reloaded, err := BuildOrLoadVocabulary(path, nil, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if strings.Join(loaded.IDToToken, "|") != strings.Join(reloaded.IDToToken, "|") {
		t.Fatalf("cached vocabulary differs from built one")
	}
}
