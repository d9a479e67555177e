package domain

import "strings"

// Product is one catalog record recovered from a catalog page.
// Descriptive fields are pointers: nil means the field was absent in the
// source, which is distinct from an empty string. The JSON shape matches
// the extraction output, where missing fields are null.
type Product struct {
	ProductName *string `json:"product_name"`
	ModelNumber *string `json:"model_number"`
	Dimensions  *string `json:"dimensions"`
	Materials   *string `json:"materials"`
	Colors      *string `json:"colors"`
	MountType   *string `json:"mount_type"`
	Pricing     *string `json:"pricing"`
	Notes       *string `json:"notes"`

	// Provenance of the record.
	SourcePDF  string `json:"source_pdf,omitempty"`
	SourcePage int    `json:"source_page,omitempty"`
	ImagePath  string `json:"image_path,omitempty"`
}

// canonicalField is one (label, accessor) pair of the fixed embedding order.
type canonicalField struct {
	label string
	value func(*Product) *string
}

// canonicalOrder is the fixed field order used for embedding text.
// Changing it invalidates every previously built index.
var canonicalOrder = []canonicalField{
	{"Product Name", func(p *Product) *string { return p.ProductName }},
	{"Model Number", func(p *Product) *string { return p.ModelNumber }},
	{"Dimensions", func(p *Product) *string { return p.Dimensions }},
	{"Materials", func(p *Product) *string { return p.Materials }},
	{"Colors", func(p *Product) *string { return p.Colors }},
	{"Mount Type", func(p *Product) *string { return p.MountType }},
	{"Pricing", func(p *Product) *string { return p.Pricing }},
	{"Notes", func(p *Product) *string { return p.Notes }},
}

// CanonicalText renders the product as the text that gets embedded:
// "{label}: {value}" fragments joined by " | " in canonical order.
// Absent and empty fields are omitted. A product with no describable
// fields yields an empty string; that is not an error here, callers
// decide whether to skip the record.
func (p Product) CanonicalText() string {
	parts := make([]string, 0, len(canonicalOrder))
	for _, f := range canonicalOrder {
		v := f.value(&p)
		if v == nil || *v == "" {
			continue
		}
		parts = append(parts, f.label+": "+*v)
	}
	return strings.Join(parts, " | ")
}
