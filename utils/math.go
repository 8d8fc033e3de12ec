package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix helpers shared by the model, the loss, and the decoder.
// Convention everywhere: columns are sequence positions, rows are features.

func Dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// RandomArray returns size draws from N(0, 1/v) for weight init.
func RandomArray(size int, v float64) []float64 {
	data := make([]float64, size)
	for i := range data {
		data[i] = rand.NormFloat64() / math.Sqrt(v)
	}
	return data
}

func LastCol(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.At(i, c-1))
	}
	return out
}

// RowSums returns per-row sums as a (r x 1) column, used for bias gradients.
func RowSums(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		out.Set(i, 0, sum)
	}
	return out
}

// AddBias adds a (r x 1) bias column to every column of m, in place.
func AddBias(m, bias *mat.Dense) {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("AddBias: bias must be (r x 1)")
	}
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
}

const maskedScore = -1e30

// KeyMaskBias expands a 0/1 key mask of length tk into a (tq x tk) additive
// bias: masked keys get a large negative score for every query row.
func KeyMaskBias(keyMask []float64, tq int) *mat.Dense {
	tk := len(keyMask)
	out := mat.NewDense(tq, tk, nil)
	for j, v := range keyMask {
		if v != 0 {
			continue
		}
		for i := 0; i < tq; i++ {
			out.Set(i, j, maskedScore)
		}
	}
	return out
}

// MaskBias converts a 0/1 attention mask (tq x tk) into an additive bias
// with 0 where attention is allowed and a large negative score where not.
func MaskBias(mask *mat.Dense) *mat.Dense {
	r, c := mask.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if mask.At(i, j) == 0 {
				out.Set(i, j, maskedScore)
			}
		}
	}
	return out
}

// ---------- Softmax ----------

// RowSoftmax applies softmax independently to each row across columns.
// Attention scores are (queries x keys); row sums come out as 1.
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		mx := row[0]
		for _, v := range row {
			if v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			row[j] = math.Exp(row[j] - mx)
			sum += row[j]
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, row[j]/sum)
		}
	}
	return out
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1)
// vector. Used for logits -> probabilities in the CE loss.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// SoftmaxBackward computes the row-wise softmax VJP used by attention.
// For each row i: s = sum_k dA[i,k]*A[i,k]; dS[i,j] = A[i,j]*(dA[i,j]-s).
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// -------- GELU activation --------
// gelu(x) = 0.5 * x * (1 + tanh( sqrt(2/pi) * (x + 0.044715*x^3) ))

func GeluApply(i, j int, x float64) float64 {
	const k = 0.7978845608028654 // sqrt(2/pi)
	t := k * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + math.Tanh(t))
}

func GeluPrime(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	const k = 0.7978845608028654 // sqrt(2/pi)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := m.At(i, j)
			t := k * (x + 0.044715*x*x*x)
			th := math.Tanh(t)
			cosh := math.Cosh(t)
			sech2 := 1.0 / (cosh * cosh)
			dt := k * (1.0 + 3.0*0.044715*x*x)
			grad := 0.5*(1.0+th) + 0.5*x*sech2*dt
			out.Set(i, j, grad)
		}
	}
	return out
}

// ---------- Loss ----------

// SmoothedCrossEntropy computes label-smoothed cross entropy between a
// (V x 1) logits column and the gold class. The target distribution puts
// 1-eps+eps/V mass on gold and eps/V on every other class. Returns the loss
// and dLoss/dLogits (V x 1).
func SmoothedCrossEntropy(logits *mat.Dense, gold int, eps float64) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("SmoothedCrossEntropy expects (r x 1) logits vector")
	}
	if gold < 0 || gold >= r {
		panic("SmoothedCrossEntropy: gold index out of range")
	}
	prob := ColVectorSoftmax(logits)
	uniform := eps / float64(r)
	loss := 0.0
	grad := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		target := uniform
		if i == gold {
			target += 1.0 - eps
		}
		p := prob.At(i, 0)
		if target > 0 {
			loss -= target * math.Log(p+1e-12)
		}
		grad.Set(i, 0, p-target)
	}
	return loss, grad
}
