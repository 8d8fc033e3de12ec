package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/manningwu07/translator/IO"
	"github.com/manningwu07/translator/checkpoint"
	"github.com/manningwu07/translator/optimizations"
	"github.com/manningwu07/translator/params"
	"github.com/manningwu07/translator/train"
	"github.com/manningwu07/translator/transformer"
)

func main() {
	configPath := flag.String("config", "", "JSON config file (built-in defaults when empty)")
	flag.Parse()

	cfg := params.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = params.LoadConfig(*configPath)
		if err != nil {
			fatal(err)
		}
	}
	rand.Seed(cfg.Seed)

	pairs, err := IO.LoadPairs(cfg.DatasetFile)
	if err != nil {
		fatal(err)
	}
	trainPairs, valPairs := IO.SplitPairs(pairs, cfg.ValFrac)
	fmt.Printf("Loaded %d pairs: %d train, %d validation\n", len(pairs), len(trainPairs), len(valPairs))

	srcVocab, err := IO.BuildOrLoadVocabulary(cfg.VocabPath(cfg.LangSrc), IO.Sentences(pairs, "src"), 2)
	if err != nil {
		fatal(err)
	}
	tgtVocab, err := IO.BuildOrLoadVocabulary(cfg.VocabPath(cfg.LangTgt), IO.Sentences(pairs, "tgt"), 2)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Vocab: %s=%d tokens, %s=%d tokens\n",
		cfg.LangSrc, srcVocab.Size(), cfg.LangTgt, tgtVocab.Size())

	enc, err := IO.NewBatchEncoder(srcVocab, tgtVocab, cfg.SeqLen)
	if err != nil {
		fatal(err)
	}

	if err := os.MkdirAll(cfg.ModelFolder, 0o755); err != nil {
		fatal(err)
	}
	model := transformer.NewModel(srcVocab.Size(), tgtVocab.Size(), cfg.SeqLen, cfg.DModel)
	opt := optimizations.NewAdam(model.Parameters(), cfg.LR)
	store := checkpoint.NewStore(cfg.ModelFolder, cfg.ExperimentName)

	metrics, err := train.NewCSVMetricSink(cfg.ExperimentName + "_log.csv")
	if err != nil {
		fatal(err)
	}
	defer metrics.Close()

	tr := train.NewTrainer(cfg, model, opt, store, enc, tgtVocab, metrics, nil)
	if err := tr.Run(trainPairs, valPairs); err != nil {
		fatal(err)
	}
	fmt.Printf("Done: %d steps\n", tr.GlobalStep())
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
