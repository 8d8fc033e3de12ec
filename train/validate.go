package train

import (
	"fmt"
	"strings"

	"github.com/manningwu07/translator/IO"
)

const consoleWidth = 80

// RunValidation greedily decodes up to numExamples validation pairs and
// emits a (source, expected, predicted) triple for each through print.
// Validation is a bounded sample, not an exhaustive pass: the loop stops as
// soon as the cap is reached.
func RunValidation(m Model, enc *IO.BatchEncoder, pairs []IO.Pair, tgtVocab *IO.Vocabulary, maxLen, numExamples int, print func(string)) error {
	count := 0
	for _, p := range pairs {
		ex, err := enc.EncodeExample(p)
		if err != nil {
			return err
		}
		count++

		batch := &IO.Batch{Examples: []*IO.EncodedExample{ex}}
		ids, err := GreedyDecode(m, batch, enc.SOSID(), enc.EOSID(), maxLen)
		if err != nil {
			return err
		}
		predicted := tgtVocab.Decode(ids)

		print(strings.Repeat("-", consoleWidth))
		print(fmt.Sprintf("SOURCE    : %s", ex.SrcText))
		print(fmt.Sprintf("TARGET    : %s", ex.TgtText))
		print(fmt.Sprintf("PREDICTED : %s", predicted))

		if count == numExamples {
			break
		}
	}
	return nil
}
