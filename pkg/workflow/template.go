package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Ramsey-B/fern/pkg/expressions"
)

// templatePattern matches {{ expression }} patterns
var templatePattern = regexp.MustCompile(`\{\{\s*([^}]+)\s*\}\}`)

// resolveTemplate resolves {{ expression }} patterns in a string against the
// build context.
func resolveTemplate(evaluator *expressions.Evaluator, template string, data map[string]any) (string, error) {
	trimmed := strings.TrimSpace(template)

	// Strings starting with "=" are engine-side runtime expressions; they
	// are evaluated per message by the engine, not at build time.
	if strings.HasPrefix(trimmed, "=") {
		return template, nil
	}

	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		matches := templatePattern.FindAllStringSubmatch(template, -1)
		if len(matches) == 1 {
			expr := strings.TrimSpace(matches[0][1])
			result, err := evaluator.Evaluate(expr, data)
			if err != nil {
				return "", fmt.Errorf("expression evaluation failed: %w", err)
			}
			if str, ok := result.(string); ok {
				return str, nil
			}
			return fmt.Sprintf("%v", result), nil
		}
	}

	var lastErr error
	result := templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		submatches := templatePattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		expr := strings.TrimSpace(submatches[1])
		evalResult, err := evaluator.Evaluate(expr, data)
		if err != nil {
			lastErr = err
			return match
		}

		if evalResult == nil {
			return ""
		}

		if str, ok := evalResult.(string); ok {
			return str
		}
		return fmt.Sprintf("%v", evalResult)
	})

	if lastErr != nil {
		return "", lastErr
	}

	return result, nil
}

// resolveMapTemplates recursively resolves templates in a parameter map.
func resolveMapTemplates(evaluator *expressions.Evaluator, m map[string]any, data map[string]any) (map[string]any, error) {
	result := make(map[string]any)

	for key, value := range m {
		switch v := value.(type) {
		case string:
			resolved, err := resolveTemplate(evaluator, v, data)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
			}
			result[key] = resolved
		case map[string]any:
			resolved, err := resolveMapTemplates(evaluator, v, data)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		case []any:
			resolved, err := resolveSliceTemplates(evaluator, v, data)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		default:
			result[key] = value
		}
	}

	return result, nil
}

func resolveSliceTemplates(evaluator *expressions.Evaluator, s []any, data map[string]any) ([]any, error) {
	result := make([]any, len(s))

	for i, value := range s {
		switch v := value.(type) {
		case string:
			resolved, err := resolveTemplate(evaluator, v, data)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve index %d: %w", i, err)
			}
			result[i] = resolved
		case map[string]any:
			resolved, err := resolveMapTemplates(evaluator, v, data)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		case []any:
			resolved, err := resolveSliceTemplates(evaluator, v, data)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		default:
			result[i] = value
		}
	}

	return result, nil
}
