package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// ErrInvalidJSON reports that the model produced a reply whose content could
// not be parsed into a non-empty JSON object. The completion itself succeeded,
// so this is kept distinct from provider errors: the content contract was
// violated, not the transport.
var ErrInvalidJSON = errors.New("llm: model response is not a non-empty JSON object")

var (
	jsonFencePattern = regexp.MustCompile("(?s)```json\\s*\n(.*?)\n\\s*```")
	anyFencePattern  = regexp.MustCompile("(?s)```\\s*\n?(.*?)\n?\\s*```")
)

// ExtractJSONBlock strips a markdown code fence from the model output.
// A ```json fence wins over a plain fence; text without fences is returned
// trimmed and unchanged.
func ExtractJSONBlock(raw string) string {
	if strings.Contains(raw, "```json") {
		if match := jsonFencePattern.FindStringSubmatch(raw); len(match) > 1 {
			return strings.TrimSpace(match[1])
		}
	}
	if strings.Contains(raw, "```") {
		if match := anyFencePattern.FindStringSubmatch(raw); len(match) > 1 {
			return strings.TrimSpace(match[1])
		}
	}
	return strings.TrimSpace(raw)
}

// decodeObject parses text into a JSON object and rejects null, non-object
// and empty-object payloads.
func decodeObject(text string, out any) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return err
	}
	if len(probe) == 0 {
		return errors.New("object has no properties")
	}
	return json.Unmarshal([]byte(text), out)
}

// GenerateStructured asks the model for JSON output and decodes it into T.
//
// The full prompt is instructions, then input, then an explicit JSON-only
// directive. Extraction tries the raw reply first, then a fenced block.
// No retry happens here; callers decide whether to substitute a default or
// propagate. Provider errors pass through untouched; content failures wrap
// ErrInvalidJSON.
func GenerateStructured[T any](ctx context.Context, c Completer, input, instructions string, tier Tier) (T, error) {
	var result T
	if c == nil {
		return result, errors.New("llm: completer is nil")
	}

	prompt := strings.TrimSpace(instructions) + "\n\n" + strings.TrimSpace(input) + "\n\nRespond only with valid JSON."

	raw, err := c.Complete(ctx, prompt, tier)
	if err != nil {
		return result, err
	}

	if err := decodeObject(raw, &result); err == nil {
		return result, nil
	}

	extracted := ExtractJSONBlock(raw)
	if err := decodeObject(extracted, &result); err != nil {
		log.Printf("llm: structured response rejected: %v", err)
		return result, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return result, nil
}
