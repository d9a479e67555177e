// Package catalog recovers structured product records from raw model output.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helmline/simdex/internal/domain"
)

// pageResponse is the loosely-shaped extraction output: either a bare
// product list or an object wrapping one under "products".
type pageResponse struct {
	Products []domain.Product `json:"products"`
}

// ParseProducts recovers a product list from raw, possibly malformed,
// extraction output. The text is first decoded verbatim; on failure the
// outermost {..} span is tried, then the outermost [..] span. Fields not
// in the product schema are dropped by decoding; missing fields stay nil.
// Returns ErrNoExtractableJSON when no candidate decodes.
func ParseProducts(raw string) ([]domain.Product, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty response content: %w", domain.ErrNoExtractableJSON)
	}

	for _, candidate := range jsonCandidates(raw) {
		products, ok := decodeProducts(candidate)
		if ok {
			return products, nil
		}
	}

	return nil, domain.ErrNoExtractableJSON
}

// jsonCandidates returns the substrings to attempt, in order: the text
// itself, the outermost object span, the outermost array span. The span
// heuristic is deliberately greedy (first opener to last closer) and can
// pick an invalid span when free text contains stray braces; in that
// case the candidate simply fails to decode and the next one is tried.
func jsonCandidates(raw string) []string {
	candidates := []string{raw}

	objStart := strings.Index(raw, "{")
	objEnd := strings.LastIndex(raw, "}")
	if objStart != -1 && objEnd > objStart {
		candidates = append(candidates, raw[objStart:objEnd+1])
	}

	arrStart := strings.Index(raw, "[")
	arrEnd := strings.LastIndex(raw, "]")
	if arrStart != -1 && arrEnd > arrStart {
		candidates = append(candidates, raw[arrStart:arrEnd+1])
	}

	return candidates
}

// decodeProducts decodes one candidate. An object is unwrapped through
// its "products" key; a bare array is used as-is; any other valid JSON
// value yields zero records.
func decodeProducts(candidate string) ([]domain.Product, bool) {
	var rawValue json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &rawValue); err != nil {
		return nil, false
	}

	trimmed := strings.TrimSpace(string(rawValue))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var resp pageResponse
		if err := json.Unmarshal(rawValue, &resp); err != nil {
			return nil, false
		}
		return resp.Products, true
	case strings.HasPrefix(trimmed, "["):
		var products []domain.Product
		if err := json.Unmarshal(rawValue, &products); err != nil {
			return nil, false
		}
		return products, true
	default:
		// Valid JSON but not a record container (string, number, ...).
		return nil, true
	}
}
