package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/models"
)

// Normalizer turns a free-text dataset description into flat key-value metadata
type Normalizer struct {
	client *ai.StructuredClient[map[string]interface{}]
	logger *internal.Logger
}

// NewNormalizer creates a normalizer backed by the text-generation collaborator
func NewNormalizer(llm ai.Completer, logger *internal.Logger) *Normalizer {
	logger = internal.OrDefault(logger)
	return &Normalizer{
		client: ai.NewStructuredClient[map[string]interface{}](llm, logger),
		logger: logger,
	}
}

// Normalize asks the collaborator for a flat JSON object describing raw.
// Blank input yields empty metadata without a collaborator call.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (causal.Metadata, error) {
	if strings.TrimSpace(raw) == "" {
		return causal.Metadata{}, nil
	}

	decoded, err := n.client.GetJSONResponse(ctx, models.OpMetadataNormalization, ai.PromptMetadataToJSON,
		map[string]string{"METADATA": raw})
	if err != nil {
		return nil, fmt.Errorf("normalize metadata: %w", err)
	}

	md, err := fromObject(*decoded)
	if err != nil {
		n.logger.Warn("[MetadataNormalizer] Rejected reply: %v", err)
		return nil, err
	}
	n.logger.Debug("[MetadataNormalizer] Normalized %d keys", len(md))
	return md, nil
}

// NormalizeOrEmpty behaves like Normalize but always returns usable metadata,
// falling back to an empty map alongside the error.
func (n *Normalizer) NormalizeOrEmpty(ctx context.Context, raw string) (causal.Metadata, error) {
	md, err := n.Normalize(ctx, raw)
	if err != nil {
		return causal.Metadata{}, err
	}
	return md, nil
}

// Parse decodes a collaborator reply into metadata. The reply must be one
// flat JSON object; scalars are stringified and null becomes "".
func Parse(content string) (causal.Metadata, error) {
	decoded, err := ai.DecodeJSON[map[string]interface{}](content)
	if err != nil {
		return nil, err
	}
	return fromObject(*decoded)
}

func fromObject(obj map[string]interface{}) (causal.Metadata, error) {
	const shape = "flat JSON object"
	if obj == nil {
		return nil, core.NewMalformedResponseError(shape, "reply is null")
	}

	md := make(causal.Metadata, len(obj))
	sources := make(map[string]string, len(obj))
	for key, value := range obj {
		s, err := scalarString(value)
		if err != nil {
			return nil, core.NewMalformedResponseError(shape, fmt.Sprintf("key %q: %v", key, err))
		}
		name := strings.TrimSpace(key)
		if prev, dup := sources[name]; dup {
			return nil, core.NewMalformedResponseError(shape, fmt.Sprintf("keys %q and %q collide", prev, key))
		}
		sources[name] = key
		md[name] = s
	}
	return md, nil
}

func scalarString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case map[string]interface{}:
		return "", fmt.Errorf("nested object")
	case []interface{}:
		return "", fmt.Errorf("nested array")
	default:
		return "", fmt.Errorf("unsupported value %T", v)
	}
}
