package optimizations

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/utils"
)

// Param is one named trainable tensor with its gradient accumulator.
// The model owns W and writes G during Backward; the optimizer reads G.
type Param struct {
	Name string
	W    *mat.Dense
	G    *mat.Dense
}

func NewParam(name string, rows, cols int, data []float64) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(rows, cols, data),
		G:    mat.NewDense(rows, cols, nil),
	}
}

// AdamUpdateInPlace applies one bias-corrected Adam update:
// p -= lr * mhat / (sqrt(vhat)+eps).
func AdamUpdateInPlace(p, g, m, v *mat.Dense, t int, lr, beta1, beta2, eps float64) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("AdamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("AdamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("AdamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			p.Set(i, j, p.At(i, j)-lr*mhat/(math.Sqrt(vhat)+eps))
			m.Set(i, j, mij)
			v.Set(i, j, vij)
		}
	}
}

// Adam holds moment estimates for every parameter of a model. One Step per
// batch; ZeroGrad clears accumulators afterwards.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	params []*Param
	m, v   []*mat.Dense
	t      int
}

func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-9,
		params: params,
		m:      make([]*mat.Dense, len(params)),
		v:      make([]*mat.Dense, len(params)),
	}
	for i, p := range params {
		a.m[i] = utils.ZerosLike(p.W)
		a.v[i] = utils.ZerosLike(p.W)
	}
	return a
}

// Step applies one Adam update to every parameter.
func (a *Adam) Step() {
	a.t++
	for i, p := range a.params {
		AdamUpdateInPlace(p.W, p.G, a.m[i], a.v[i], a.t, a.LR, a.Beta1, a.Beta2, a.Eps)
	}
}

// ZeroGrad clears every gradient accumulator.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.G.Zero()
	}
}

type adamTensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

type adamState struct {
	T int
	M []adamTensor
	V []adamTensor
}

func denseToTensor(name string, d *mat.Dense) adamTensor {
	r, c := d.Dims()
	raw := mat.DenseCopyOf(d).RawMatrix()
	return adamTensor{Name: name, Rows: r, Cols: c, Data: append([]float64(nil), raw.Data...)}
}

// State serializes the moment estimates and step counter.
func (a *Adam) State() ([]byte, error) {
	st := adamState{T: a.t}
	for i, p := range a.params {
		st.M = append(st.M, denseToTensor(p.Name, a.m[i]))
		st.V = append(st.V, denseToTensor(p.Name, a.v[i]))
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore loads state produced by State into this optimizer. The parameter
// list must match by name and shape.
func (a *Adam) Restore(blob []byte) error {
	var st adamState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&st); err != nil {
		return fmt.Errorf("optimizer state: %w", err)
	}
	if len(st.M) != len(a.params) || len(st.V) != len(a.params) {
		return fmt.Errorf("optimizer state: have %d params, blob has %d", len(a.params), len(st.M))
	}
	for i, p := range a.params {
		for _, pair := range []struct {
			src adamTensor
			dst *mat.Dense
		}{{st.M[i], a.m[i]}, {st.V[i], a.v[i]}} {
			if pair.src.Name != p.Name {
				return fmt.Errorf("optimizer state: param %d is %q, blob has %q", i, p.Name, pair.src.Name)
			}
			r, c := pair.dst.Dims()
			if pair.src.Rows != r || pair.src.Cols != c {
				return fmt.Errorf("optimizer state: %s shape mismatch", p.Name)
			}
			copy(pair.dst.RawMatrix().Data, pair.src.Data)
		}
	}
	a.t = st.T
	return nil
}
