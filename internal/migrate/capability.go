package migrate

import (
	"context"
	"fmt"

	"github.com/nikbrunner/gmark/internal/ai"
)

// Always is a CapabilityFunc for setups that classify with patterns alone.
func Always(context.Context) error {
	return nil
}

// ModelCapability requires the local language model to answer.
func ModelCapability(lm ai.LanguageModel, url, model string) CapabilityFunc {
	return func(ctx context.Context) error {
		if lm == nil {
			return &CapabilityError{
				Reason:      "no local language model configured",
				Remediation: "Set localModel.url and localModel.model in the config file.",
			}
		}
		if !lm.Available(ctx) {
			return &CapabilityError{
				Reason: fmt.Sprintf("local language model %q is not reachable at %s", model, url),
				Remediation: fmt.Sprintf(
					"Start the model server (ollama serve), pull the model (ollama pull %s), then run the migration again. Progress is kept.",
					model),
			}
		}
		return nil
	}
}
