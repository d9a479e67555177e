package catalog

import (
	"errors"
	"testing"

	"github.com/helmline/simdex/internal/domain"
)

func TestParseProducts_Verbatim(t *testing.T) {
	products, err := ParseProducts(`[{"product_name": "Aria", "model_number": "AR-100"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if products[0].ProductName == nil || *products[0].ProductName != "Aria" {
		t.Errorf("product_name = %v, want Aria", products[0].ProductName)
	}
	if products[0].Dimensions != nil {
		t.Errorf("missing field should stay nil, got %q", *products[0].Dimensions)
	}
}

func TestParseProducts_SurroundingProse(t *testing.T) {
	raw := `Here is the result: {"products": [{"product_name":"X"}]} Thanks!`
	products, err := ParseProducts(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	if products[0].ProductName == nil || *products[0].ProductName != "X" {
		t.Errorf("product_name = %v, want X", products[0].ProductName)
	}
}

func TestParseProducts_ArrayCandidate(t *testing.T) {
	raw := "Sure! " + `[{"product_name":"A"},{"product_name":"B"}]` + " done"
	products, err := ParseProducts(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
}

func TestParseProducts_ObjectTriedBeforeArray(t *testing.T) {
	// Both spans exist; the object decodes and wins.
	raw := `noise {"products":[{"product_name":"obj"}]} noise [`
	products, err := ParseProducts(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 || *products[0].ProductName != "obj" {
		t.Fatalf("expected the object candidate to win, got %+v", products)
	}
}

func TestParseProducts_UnknownFieldsDropped(t *testing.T) {
	products, err := ParseProducts(`[{"product_name":"A","warranty":"5y"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
}

func TestParseProducts_NonContainerJSON(t *testing.T) {
	products, err := ParseProducts(`"just a string"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected 0 products, got %d", len(products))
	}
}

func TestParseProducts_NoCandidate(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json here", "{broken"} {
		if _, err := ParseProducts(raw); !errors.Is(err, domain.ErrNoExtractableJSON) {
			t.Errorf("ParseProducts(%q) error = %v, want ErrNoExtractableJSON", raw, err)
		}
	}
}
