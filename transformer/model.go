// Package transformer implements the encoder-decoder model behind the
// Encode/Decode/Project contract the training loop and greedy decoder use.
// Single attention layer per side, single head, residual connections and a
// GELU feed-forward; gradients are derived by hand and accumulated into the
// parameter registry.
//
// Convention: matrices are (features x positions), so a sequence of T
// tokens at width d is a (d x T) Dense.
package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/optimizations"
	"github.com/manningwu07/translator/utils"
)

type Model struct {
	DModel       int
	DFF          int
	SrcVocabSize int
	TgtVocabSize int
	SeqLen       int

	SrcEmb *optimizations.Param // (d x |Vsrc|)
	TgtEmb *optimizations.Param // (d x |Vtgt|)
	PosEmb *optimizations.Param // (d x SeqLen)

	EncWq, EncWk, EncWv, EncWo         *optimizations.Param // (d x d)
	SelfWq, SelfWk, SelfWv, SelfWo     *optimizations.Param
	CrossWq, CrossWk, CrossWv, CrossWo *optimizations.Param

	FFNW1 *optimizations.Param // (dff x d)
	FFNB1 *optimizations.Param // (dff x 1)
	FFNW2 *optimizations.Param // (d x dff)
	FFNB2 *optimizations.Param // (d x 1)

	Proj *optimizations.Param // (|Vtgt| x d)

	params []*optimizations.Param

	// caches from the most recent forward pass, consumed by Backward
	enc encCache
	dec decCache
}

type attnCache struct {
	Yq, Ykv *mat.Dense
	Q, K, V *mat.Dense
	A       *mat.Dense
	O       *mat.Dense
}

type encCache struct {
	srcIDs []int
	X      *mat.Dense
	attn   attnCache
	out    *mat.Dense
}

type decCache struct {
	tgtIDs  []int
	srcMask []float64
	Y0      *mat.Dense
	selfA   attnCache
	Y1      *mat.Dense
	crossA  attnCache
	Y2      *mat.Dense
	ffnPre  *mat.Dense
	ffnAct  *mat.Dense
	out     *mat.Dense
	projIn  *mat.Dense
}

// NewModel builds a model with randomly initialized weights. Call
// rand.Seed beforehand for a reproducible init.
func NewModel(srcVocabSize, tgtVocabSize, seqLen, dModel int) *Model {
	dff := 2 * dModel
	m := &Model{
		DModel:       dModel,
		DFF:          dff,
		SrcVocabSize: srcVocabSize,
		TgtVocabSize: tgtVocabSize,
		SeqLen:       seqLen,
	}
	newP := func(name string, r, c int) *optimizations.Param {
		p := optimizations.NewParam(name, r, c, utils.RandomArray(r*c, float64(dModel)))
		m.params = append(m.params, p)
		return p
	}
	m.SrcEmb = newP("src_emb", dModel, srcVocabSize)
	m.TgtEmb = newP("tgt_emb", dModel, tgtVocabSize)
	m.PosEmb = newP("pos_emb", dModel, seqLen)

	m.EncWq = newP("enc_wq", dModel, dModel)
	m.EncWk = newP("enc_wk", dModel, dModel)
	m.EncWv = newP("enc_wv", dModel, dModel)
	m.EncWo = newP("enc_wo", dModel, dModel)

	m.SelfWq = newP("self_wq", dModel, dModel)
	m.SelfWk = newP("self_wk", dModel, dModel)
	m.SelfWv = newP("self_wv", dModel, dModel)
	m.SelfWo = newP("self_wo", dModel, dModel)

	m.CrossWq = newP("cross_wq", dModel, dModel)
	m.CrossWk = newP("cross_wk", dModel, dModel)
	m.CrossWv = newP("cross_wv", dModel, dModel)
	m.CrossWo = newP("cross_wo", dModel, dModel)

	m.FFNW1 = newP("ffn_w1", dff, dModel)
	m.FFNB1 = newP("ffn_b1", dff, 1)
	m.FFNW2 = newP("ffn_w2", dModel, dff)
	m.FFNB2 = newP("ffn_b2", dModel, 1)

	m.Proj = newP("proj", tgtVocabSize, dModel)
	return m
}

// Parameters exposes the registry in a stable order for the optimizer and
// the checkpoint store.
func (m *Model) Parameters() []*optimizations.Param { return m.params }

// embed looks up token columns and adds positional embeddings.
func (m *Model) embed(emb *optimizations.Param, ids []int) *mat.Dense {
	if len(ids) > m.SeqLen {
		panic("embed: sequence longer than SeqLen")
	}
	d := m.DModel
	x := mat.NewDense(d, len(ids), nil)
	for t, id := range ids {
		for i := 0; i < d; i++ {
			x.Set(i, t, emb.W.At(i, id)+m.PosEmb.W.At(i, t))
		}
	}
	return x
}

// attention runs scaled dot-product attention with an additive score bias.
// Queries come from yq, keys and values from ykv.
func (m *Model) attention(wq, wk, wv *optimizations.Param, yq, ykv, bias *mat.Dense) attnCache {
	q := utils.Dot(wq.W, yq)
	k := utils.Dot(wk.W, ykv)
	v := utils.Dot(wv.W, ykv)

	s := utils.Dot(q.T(), k)
	s.Scale(1.0/math.Sqrt(float64(m.DModel)), s)
	s.Add(s, bias)
	a := utils.RowSoftmax(s)
	o := utils.Dot(v, a.T())

	return attnCache{Yq: yq, Ykv: ykv, Q: q, K: k, V: v, A: a, O: o}
}

// Encode runs the encoder over a source id sequence. srcMask is the 0/1
// non-pad mask; pad positions are excluded as attention keys.
func (m *Model) Encode(src []int, srcMask []float64) *mat.Dense {
	x := m.embed(m.SrcEmb, src)
	bias := utils.KeyMaskBias(srcMask, len(src))
	at := m.attention(m.EncWq, m.EncWk, m.EncWv, x, x, bias)

	out := utils.Dot(m.EncWo.W, at.O)
	out.Add(out, x)

	m.enc = encCache{srcIDs: src, X: x, attn: at, out: out}
	return out
}

// Decode runs the decoder: masked self-attention over tgt, cross-attention
// over the encoder output, then the feed-forward block. tgtMask is the 0/1
// combined causal+pad mask, (len(tgt) x len(tgt)).
func (m *Model) Decode(encOut *mat.Dense, srcMask []float64, tgt []int, tgtMask *mat.Dense) *mat.Dense {
	tt := len(tgt)
	if r, c := tgtMask.Dims(); r != tt || c != tt {
		panic("Decode: tgtMask shape mismatch")
	}
	y0 := m.embed(m.TgtEmb, tgt)

	selfAt := m.attention(m.SelfWq, m.SelfWk, m.SelfWv, y0, y0, utils.MaskBias(tgtMask))
	y1 := utils.Dot(m.SelfWo.W, selfAt.O)
	y1.Add(y1, y0)

	crossAt := m.attention(m.CrossWq, m.CrossWk, m.CrossWv, y1, encOut, utils.KeyMaskBias(srcMask, tt))
	y2 := utils.Dot(m.CrossWo.W, crossAt.O)
	y2.Add(y2, y1)

	pre := utils.Dot(m.FFNW1.W, y2)
	utils.AddBias(pre, m.FFNB1.W)
	act := mat.NewDense(m.DFF, tt, nil)
	act.Apply(utils.GeluApply, pre)
	out := utils.Dot(m.FFNW2.W, act)
	utils.AddBias(out, m.FFNB2.W)
	out.Add(out, y2)

	m.dec = decCache{
		tgtIDs: tgt, srcMask: srcMask,
		Y0: y0, selfA: selfAt, Y1: y1, crossA: crossAt, Y2: y2,
		ffnPre: pre, ffnAct: act, out: out,
	}
	return out
}

// Project maps decoder output to vocabulary logits, (|Vtgt| x T).
func (m *Model) Project(decOut *mat.Dense) *mat.Dense {
	m.dec.projIn = decOut
	return utils.Dot(m.Proj.W, decOut)
}
