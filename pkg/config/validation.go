package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and semantic errors.
//
// Struct-level constraints are expressed with `validate` tags and enforced
// by the validator library; cross-field rules that tags cannot express are
// checked explicitly afterwards.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}
		return err
	}

	// Emitting chunks into the source tree would make every build
	// trigger the watcher and re-chunk its own output.
	if cfg.Build.SrcDir == cfg.Build.OutDir {
		return fmt.Errorf("build.src_dir and build.out_dir must differ (both are %q)", cfg.Build.SrcDir)
	}

	return nil
}
