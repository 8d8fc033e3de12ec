package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/optimizations"
	"github.com/manningwu07/translator/utils"
)

// Backward propagates dLoss/dLogits through the whole forward pass cached
// by the last Encode/Decode/Project calls, accumulating parameter
// gradients. The optimizer consumes them; ZeroGrad on the optimizer clears
// them between steps.
func (m *Model) Backward(dLogits *mat.Dense) {
	y3 := m.dec.projIn
	if y3 == nil {
		panic("Backward: no cached forward pass")
	}
	lr, lc := dLogits.Dims()
	_, t := y3.Dims()
	if lr != m.TgtVocabSize || lc != t {
		panic("Backward: dLogits shape mismatch")
	}

	// projection: logits = Proj * Y3
	m.Proj.G.Add(m.Proj.G, utils.Dot(dLogits, y3.T()))
	dY3 := utils.Dot(m.Proj.W.T(), dLogits)

	// feed-forward: Y3 = Y2 + FFNW2*gelu(FFNW1*Y2 + b1) + b2
	dY2 := mat.DenseCopyOf(dY3)
	m.FFNB2.G.Add(m.FFNB2.G, utils.RowSums(dY3))
	m.FFNW2.G.Add(m.FFNW2.G, utils.Dot(dY3, m.dec.ffnAct.T()))
	dAct := utils.Dot(m.FFNW2.W.T(), dY3)
	dPre := mat.NewDense(m.DFF, t, nil)
	dPre.MulElem(dAct, utils.GeluPrime(m.dec.ffnPre))
	m.FFNB1.G.Add(m.FFNB1.G, utils.RowSums(dPre))
	m.FFNW1.G.Add(m.FFNW1.G, utils.Dot(dPre, m.dec.Y2.T()))
	dY2.Add(dY2, utils.Dot(m.FFNW1.W.T(), dPre))

	// cross-attention: Y2 = Y1 + CrossWo * Oc
	dY1 := mat.DenseCopyOf(dY2)
	m.CrossWo.G.Add(m.CrossWo.G, utils.Dot(dY2, m.dec.crossA.O.T()))
	dOc := utils.Dot(m.CrossWo.W.T(), dY2)
	dYqC, dEncOut := m.attnBackward(m.CrossWq, m.CrossWk, m.CrossWv, m.dec.crossA, dOc)
	dY1.Add(dY1, dYqC)

	// masked self-attention: Y1 = Y0 + SelfWo * Os
	dY0 := mat.DenseCopyOf(dY1)
	m.SelfWo.G.Add(m.SelfWo.G, utils.Dot(dY1, m.dec.selfA.O.T()))
	dOs := utils.Dot(m.SelfWo.W.T(), dY1)
	dYqS, dYkvS := m.attnBackward(m.SelfWq, m.SelfWk, m.SelfWv, m.dec.selfA, dOs)
	dY0.Add(dY0, dYqS)
	dY0.Add(dY0, dYkvS) // queries and keys both come from Y0

	m.embedBackward(m.TgtEmb, m.dec.tgtIDs, dY0)

	// encoder: out = X + EncWo * Oe, fed by the cross-attention keys/values
	dX := mat.DenseCopyOf(dEncOut)
	m.EncWo.G.Add(m.EncWo.G, utils.Dot(dEncOut, m.enc.attn.O.T()))
	dOe := utils.Dot(m.EncWo.W.T(), dEncOut)
	dYqE, dYkvE := m.attnBackward(m.EncWq, m.EncWk, m.EncWv, m.enc.attn, dOe)
	dX.Add(dX, dYqE)
	dX.Add(dX, dYkvE)

	m.embedBackward(m.SrcEmb, m.enc.srcIDs, dX)
}

// attnBackward is the VJP of attention: given dO it accumulates weight
// gradients and returns the gradients w.r.t. the query input and the
// key/value input.
func (m *Model) attnBackward(wq, wk, wv *optimizations.Param, c attnCache, dO *mat.Dense) (dYq, dYkv *mat.Dense) {
	dV := utils.Dot(dO, c.A)
	dA := utils.Dot(dO.T(), c.V)
	dS := utils.SoftmaxBackward(dA, c.A)

	scale := 1.0 / math.Sqrt(float64(m.DModel))
	dQ := utils.Dot(c.K, dS.T())
	dQ.Scale(scale, dQ)
	dK := utils.Dot(c.Q, dS)
	dK.Scale(scale, dK)

	wq.G.Add(wq.G, utils.Dot(dQ, c.Yq.T()))
	wk.G.Add(wk.G, utils.Dot(dK, c.Ykv.T()))
	wv.G.Add(wv.G, utils.Dot(dV, c.Ykv.T()))

	dYq = utils.Dot(wq.W.T(), dQ)
	dYkv = utils.Dot(wk.W.T(), dK)
	dYkv.Add(dYkv, utils.Dot(wv.W.T(), dV))
	return dYq, dYkv
}

// embedBackward scatters position-column gradients into the token and
// positional embedding tables.
func (m *Model) embedBackward(emb *optimizations.Param, ids []int, dX *mat.Dense) {
	for t, id := range ids {
		for i := 0; i < m.DModel; i++ {
			emb.G.Set(i, id, emb.G.At(i, id)+dX.At(i, t))
			m.PosEmb.G.Set(i, t, m.PosEmb.G.At(i, t)+dX.At(i, t))
		}
	}
}
