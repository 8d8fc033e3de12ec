package params

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TrainingConfig is the full configuration surface of a training run.
// Unknown keys in a config file are rejected at load time.
type TrainingConfig struct {
	SeqLen    int     `json:"seq_len"`    // fixed sequence length budget
	BatchSize int     `json:"batch_size"` // examples per optimizer step
	NumEpochs int     `json:"num_epochs"`
	LR        float64 `json:"lr"`
	DModel    int     `json:"d_model"` // model width

	LangSrc string `json:"lang_src"`
	LangTgt string `json:"lang_tgt"`

	DatasetFile   string `json:"dataset_file"`   // tab-separated src\ttgt pairs
	TokenizerFile string `json:"tokenizer_file"` // per-language vocab path, {lang} substituted

	Preload        string `json:"preload"` // checkpoint label to resume from ("" = fresh)
	ModelFolder    string `json:"model_folder"`
	ExperimentName string `json:"experiment_name"`

	ValExamples    int     `json:"val_examples"` // validation sample cap
	ValFrac        float64 `json:"val_frac"`     // fraction of pairs held out
	LabelSmoothing float64 `json:"label_smoothing"`
	Seed           int64   `json:"seed"` // epoch shuffling seed
}

// DefaultConfig mirrors the defaults we train small translation models with.
func DefaultConfig() TrainingConfig {
	return TrainingConfig{
		SeqLen:         350,
		BatchSize:      8,
		NumEpochs:      20,
		LR:             1e-4,
		DModel:         512,
		LangSrc:        "en",
		LangTgt:        "it",
		DatasetFile:    "data/opus_books_en_it.tsv",
		TokenizerFile:  "vocab_{lang}.json",
		Preload:        "",
		ModelFolder:    "weights",
		ExperimentName: "tmodel",
		ValExamples:    2,
		ValFrac:        0.1,
		LabelSmoothing: 0.1,
		Seed:           42,
	}
}

// LoadConfig reads a JSON config file on top of the defaults. Unknown keys
// are an error rather than silently ignored.
func LoadConfig(path string) (TrainingConfig, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c TrainingConfig) Validate() error {
	if c.SeqLen < 4 {
		return fmt.Errorf("config: seq_len %d too small", c.SeqLen)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be >= 1")
	}
	if c.NumEpochs < 1 {
		return fmt.Errorf("config: num_epochs must be >= 1")
	}
	if c.DModel < 1 {
		return fmt.Errorf("config: d_model must be >= 1")
	}
	if c.LabelSmoothing < 0 || c.LabelSmoothing >= 1 {
		return fmt.Errorf("config: label_smoothing must be in [0,1)")
	}
	if c.ValFrac <= 0 || c.ValFrac >= 1 {
		return fmt.Errorf("config: val_frac must be in (0,1)")
	}
	return nil
}

// VocabPath substitutes the language code into TokenizerFile.
func (c TrainingConfig) VocabPath(lang string) string {
	return strings.ReplaceAll(c.TokenizerFile, "{lang}", lang)
}
