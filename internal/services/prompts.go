package services

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/example/docflow/internal/blobstore"
)

// PromptSet is the prompt template pair the transform step runs with,
// stored as a YAML blob so operators can edit it without a redeploy.
type PromptSet struct {
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt" json:"user_prompt"`
}

// LoadPrompts reads and validates the prompt blob. Both prompt keys are
// required; failing fast here beats sending an empty system prompt to the
// model.
func LoadPrompts(ctx context.Context, store blobstore.Store, tier, name string) (*PromptSet, error) {
	raw, err := store.Read(ctx, tier, name)
	if err != nil {
		return nil, fmt.Errorf("loading prompt blob %s/%s: %w", tier, name, err)
	}

	var prompts PromptSet
	if err := yaml.Unmarshal(raw, &prompts); err != nil {
		return nil, fmt.Errorf("parsing prompt blob %s/%s: %w", tier, name, err)
	}
	if prompts.SystemPrompt == "" {
		return nil, fmt.Errorf("prompt blob %s/%s: missing required key system_prompt", tier, name)
	}
	if prompts.UserPrompt == "" {
		return nil, fmt.Errorf("prompt blob %s/%s: missing required key user_prompt", tier, name)
	}
	return &prompts, nil
}
