package extract

import (
	"fmt"
	"strings"
)

// FieldSpec describes one field the agent must try to extract.
type FieldSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "boolean"
	Description string `json:"description,omitempty"`
}

// ClaimSchema shapes the candidate a claim extraction must produce.
type ClaimSchema struct {
	ClaimType    string      `json:"claim_type"`
	ClaimSubtype string      `json:"claim_subtype,omitempty"`
	Description  string      `json:"description,omitempty"`
	Fields       []FieldSpec `json:"fields"`

	// PrimaryField names the field whose value represents the fact for
	// triangulation purposes (e.g. "monthly_price" for a pricing claim).
	PrimaryField string `json:"primary_field,omitempty"`
}

// PricingSchema is the stock schema for competitor pricing claims.
func PricingSchema() ClaimSchema {
	return ClaimSchema{
		ClaimType:    "pricing",
		Description:  "Published pricing for the competitor's main offering",
		PrimaryField: "monthly_price",
		Fields: []FieldSpec{
			{Name: "monthly_price", Type: "string", Description: "Price per month, with currency symbol"},
			{Name: "billing_period", Type: "string", Description: "monthly, annual, usage-based"},
			{Name: "tier_name", Type: "string", Description: "Name of the plan or tier"},
		},
	}
}

// FundingSchema is the stock schema for funding claims.
func FundingSchema() ClaimSchema {
	return ClaimSchema{
		ClaimType:    "funding",
		Description:  "Most recent funding round",
		PrimaryField: "amount",
		Fields: []FieldSpec{
			{Name: "amount", Type: "string", Description: "Round size, with currency"},
			{Name: "round", Type: "string", Description: "Seed, Series A/B/C, etc."},
			{Name: "lead_investor", Type: "string", Description: "Lead investor if named"},
		},
	}
}

// buildPrompt renders the extraction prompt: schema description, rules,
// then the evidence text.
func buildPrompt(schema ClaimSchema, evidenceText, context string) string {
	var b strings.Builder

	b.WriteString("Extract a structured claim from the evidence below.\n\n")
	fmt.Fprintf(&b, "Claim type: %s\n", schema.ClaimType)
	if schema.ClaimSubtype != "" {
		fmt.Fprintf(&b, "Claim subtype: %s\n", schema.ClaimSubtype)
	}
	if schema.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", schema.Description)
	}
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n", context)
	}

	b.WriteString("\nFields to extract:\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.Type, f.Description)
	}

	b.WriteString(`
Rules:
1. For every extracted field, include the LITERAL quote from the evidence that supports it.
2. If the evidence does not support a field, set its value to null. Never guess.
3. Respond with exactly this JSON shape:
{"fields": {"<field_name>": {"value": <value or null>, "quote": "<literal supporting quote or empty>"}}, "reasoning": "<one or two sentences>"}

Evidence:
`)
	b.WriteString(evidenceText)

	return b.String()
}
