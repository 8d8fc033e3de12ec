package train

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/translator/IO"
	"github.com/manningwu07/translator/checkpoint"
	"github.com/manningwu07/translator/optimizations"
	"github.com/manningwu07/translator/params"
	"github.com/manningwu07/translator/utils"
)

// Trainer drives the epoch/batch loop. It exclusively owns the model and
// optimizer pair for the duration of a run; nothing else mutates them.
type Trainer struct {
	Cfg      params.TrainingConfig
	Model    Model
	Opt      *optimizations.Adam
	Store    *checkpoint.Store
	Encoder  *IO.BatchEncoder
	TgtVocab *IO.Vocabulary
	Metrics  MetricSink
	Print    func(string)

	globalStep int
}

func NewTrainer(cfg params.TrainingConfig, m Model, opt *optimizations.Adam,
	store *checkpoint.Store, enc *IO.BatchEncoder, tgtVocab *IO.Vocabulary,
	metrics MetricSink, print func(string)) *Trainer {
	if metrics == nil {
		metrics = DiscardMetrics
	}
	if print == nil {
		print = func(msg string) { fmt.Println(msg) }
	}
	return &Trainer{
		Cfg: cfg, Model: m, Opt: opt, Store: store,
		Encoder: enc, TgtVocab: tgtVocab, Metrics: metrics, Print: print,
	}
}

// GlobalStep is the number of batches processed so far, including any
// restored from a preloaded checkpoint.
func (tr *Trainer) GlobalStep() int { return tr.globalStep }

// Run trains for the configured number of epochs, then runs one bounded
// validation pass. If a preload label is configured, training state is
// restored first and the run resumes at the stored epoch + 1; a missing
// preload checkpoint is fatal, training never silently starts from
// scratch. A checkpoint is written at every epoch boundary; the one
// labeled with the last completed epoch is the final state of the run.
func (tr *Trainer) Run(trainPairs, valPairs []IO.Pair) error {
	startEpoch := 0
	if tr.Cfg.Preload != "" {
		st, err := tr.Store.Load(tr.Cfg.Preload)
		if err != nil {
			return err
		}
		if err := tr.Model.UnmarshalBinary(st.ModelState); err != nil {
			return fmt.Errorf("preload %q: %w", tr.Cfg.Preload, err)
		}
		if err := tr.Opt.Restore(st.OptimizerState); err != nil {
			return fmt.Errorf("preload %q: %w", tr.Cfg.Preload, err)
		}
		startEpoch = st.Epoch + 1
		tr.globalStep = st.GlobalStep
		tr.Print(fmt.Sprintf("preloaded checkpoint %q: resuming at epoch %d, step %d",
			tr.Cfg.Preload, startEpoch, tr.globalStep))
	}

	lastEpoch := -1
	for epoch := startEpoch; epoch < tr.Cfg.NumEpochs; epoch++ {
		shuffled := IO.ShufflePairs(trainPairs, tr.Cfg.Seed+int64(epoch))
		examples, err := tr.Encoder.EncodeAll(shuffled)
		if err != nil {
			return fmt.Errorf("epoch %02d: %w", epoch, err)
		}

		var epochLoss float64
		var steps int
		start := time.Now()
		for _, b := range IO.Batches(examples, tr.Cfg.BatchSize) {
			if b.Size() == 0 {
				continue
			}
			loss := tr.trainBatch(b)
			tr.Metrics.Scalar("train_loss", loss, tr.globalStep)
			tr.globalStep++
			epochLoss += loss
			steps++
		}

		if steps > 0 {
			tr.Print(fmt.Sprintf("epoch %02d - loss: %.4f, batches: %d, time: %v",
				epoch, epochLoss/float64(steps), steps, time.Since(start).Round(time.Millisecond)))
		}

		if err := tr.saveCheckpoint(epoch); err != nil {
			return err
		}
		lastEpoch = epoch
	}

	if lastEpoch < 0 {
		// preload epoch already >= num_epochs: nothing to train, nothing new to validate
		return nil
	}
	return RunValidation(tr.Model, tr.Encoder, valPairs, tr.TgtVocab,
		tr.Cfg.SeqLen, tr.Cfg.ValExamples, tr.Print)
}

// trainBatch runs forward, loss, backward and one optimizer step over a
// batch, returning the mean cross-entropy per non-pad label token. The
// gradient of every example is scaled by the batch token count before
// accumulation, so one Step sees the exact batch-mean gradient.
func (tr *Trainer) trainBatch(b *IO.Batch) float64 {
	padID := tr.Encoder.PADID()
	tokens := 0
	for _, ex := range b.Examples {
		for _, id := range ex.Label {
			if id != padID {
				tokens++
			}
		}
	}
	inv := 1.0 / float64(tokens)

	var total float64
	for _, ex := range b.Examples {
		encOut := tr.Model.Encode(ex.EncoderInput, ex.EncoderMask)
		decOut := tr.Model.Decode(encOut, ex.EncoderMask, ex.DecoderInput, ex.DecoderMask)
		logits := tr.Model.Project(decOut)

		vt, seqLen := logits.Dims()
		dLogits := mat.NewDense(vt, seqLen, nil)
		for t := 0; t < seqLen; t++ {
			gold := ex.Label[t]
			if gold == padID {
				continue
			}
			col := logits.Slice(0, vt, t, t+1).(*mat.Dense)
			loss, g := utils.SmoothedCrossEntropy(col, gold, tr.Cfg.LabelSmoothing)
			total += loss
			for i := 0; i < vt; i++ {
				dLogits.Set(i, t, g.At(i, 0)*inv)
			}
		}
		tr.Model.Backward(dLogits)
	}

	tr.Opt.Step()
	tr.Opt.ZeroGrad()
	return total * inv
}

func (tr *Trainer) saveCheckpoint(epoch int) error {
	modelBlob, err := tr.Model.MarshalBinary()
	if err != nil {
		return fmt.Errorf("checkpoint epoch %02d: %w", epoch, err)
	}
	optBlob, err := tr.Opt.State()
	if err != nil {
		return fmt.Errorf("checkpoint epoch %02d: %w", epoch, err)
	}
	return tr.Store.Save(fmt.Sprintf("%02d", epoch), &checkpoint.State{
		Epoch:          epoch,
		GlobalStep:     tr.globalStep,
		ModelState:     modelBlob,
		OptimizerState: optBlob,
	})
}
