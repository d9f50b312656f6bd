package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Bus.ClockSlowHz == 0 {
		return fmt.Errorf("bus: clock_slow_hz must be set")
	}
	if cfg.Bus.ClockFastHz < cfg.Bus.ClockSlowHz {
		return fmt.Errorf("bus: clock_fast_hz (%d) must be at least clock_slow_hz (%d)",
			cfg.Bus.ClockFastHz, cfg.Bus.ClockSlowHz)
	}

	seen := map[int]string{}
	for name, pin := range map[string]int{
		"pin_clock":       cfg.Bus.PinClock,
		"pin_data_in":     cfg.Bus.PinDataIn,
		"pin_data_out":    cfg.Bus.PinDataOut,
		"pin_chip_select": cfg.Bus.PinChipSelect,
	} {
		if other, taken := seen[pin]; taken {
			return fmt.Errorf("bus: %s and %s share GPIO %d", other, name, pin)
		}
		seen[pin] = name
	}

	if cfg.Engine.Type == "badger" && cfg.Engine.Badger.Dir == "" && !cfg.Engine.Badger.InMemory {
		return fmt.Errorf("engine.badger: dir must be set unless in_memory is true")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
