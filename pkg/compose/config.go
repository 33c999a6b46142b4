package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/CTAG07/Cadence/pkg/markov"
)

// Model names accepted by Config.Model.
const (
	ModelMarkov = "markov"
	ModelHMM    = "hmm"
)

var validate = validator.New()

// Config holds the generation parameters shared by every unit of a batch.
// Zero fields are filled from the `default` tags by ApplyDefaults.
// Tolerance and Temperature are pointers so an explicit 0 survives it.
type Config struct {
	Model           string   `json:"model" yaml:"model" default:"markov" validate:"oneof=markov hmm"`
	Order           int      `json:"order" yaml:"order" default:"2" validate:"gte=1,lte=32"`
	Length          int      `json:"length" yaml:"length" default:"100" validate:"gte=0"`
	Measures        float64  `json:"measures" yaml:"measures" validate:"gte=0"`
	BeatsPerMeasure float64  `json:"beats_per_measure" yaml:"beats_per_measure" default:"4" validate:"gt=0"`
	States          int      `json:"states" yaml:"states" default:"8" validate:"gte=1"`
	MaxIter         int      `json:"max_iter" yaml:"max_iter" default:"500" validate:"gte=1"`
	Tolerance       *float64 `json:"tolerance" yaml:"tolerance" default:"0.0001" validate:"required,gte=0"`
	Seed            uint64   `json:"seed" yaml:"seed"` // 0 picks a random seed per batch
	MaxSteps        int      `json:"max_steps" yaml:"max_steps" default:"100000" validate:"gte=0"`
	Temperature     *float64 `json:"temperature" yaml:"temperature" default:"1.0" validate:"required,gte=0"`
	TopK            int      `json:"top_k" yaml:"top_k" validate:"gte=0"`
	PruneMinFreq    int      `json:"prune_min_freq" yaml:"prune_min_freq" validate:"gte=0"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	_ = cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero-valued field that has a default.
func (c *Config) ApplyDefaults() error {
	return defaults.Set(c)
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		errs := make([]error, 0, len(validationErrors))
		for _, fe := range validationErrors {
			errs = append(errs, errors.New(fieldMessage(fe)))
		}
		return fmt.Errorf("invalid generation config: %w", errors.Join(errs...))
	}
	if c.Measures == 0 && c.Length < 1 {
		return errors.New("invalid generation config: either length or measures must be positive")
	}
	return nil
}

// Target returns the termination policy the config selects: a duration of
// Measures * BeatsPerMeasure when Measures is set, Length symbols otherwise.
func (c *Config) Target() markov.Target {
	if c.Measures > 0 {
		return markov.ByDuration(c.Measures, c.BeatsPerMeasure)
	}
	return markov.ByCount(c.Length)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
