package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SourceType classifies where a piece of evidence came from. The type
// drives default Admiralty ratings and the triangulation authority order.
type SourceType string

const (
	SourceFiling         SourceType = "filing"          // Legal/regulatory filings (SEC, Companies House)
	SourceAPIVerified    SourceType = "api_verified"    // Data returned by a verified vendor API
	SourceAnalystReport  SourceType = "analyst_report"  // Published analyst research
	SourceManualVerified SourceType = "manual_verified" // Hand-checked by an analyst
	SourceWebsite        SourceType = "website"         // Scraped vendor/competitor pages
	SourceNews           SourceType = "news"            // Press coverage
	SourceEstimate       SourceType = "estimate"        // Derived or modeled values
	SourceDatabase       SourceType = "database"        // Market-data feeds and databases
	SourceUnknown        SourceType = "unknown"         // Not yet classified
)

// sourceAliases maps ingestion-side labels onto the canonical enum.
// Collectors are inconsistent about naming; the core is not.
var sourceAliases = map[string]SourceType{
	"sec_filing":     SourceFiling,
	"regulatory":     SourceFiling,
	"verified_api":   SourceAPIVerified,
	"api":            SourceAPIVerified,
	"analyst":        SourceAnalystReport,
	"manual":         SourceManualVerified,
	"website_scrape": SourceWebsite,
	"web":            SourceWebsite,
	"press":          SourceNews,
	"market_data":    SourceDatabase,
	"feed":           SourceDatabase,
}

// ParseSourceType normalizes a raw source label to a canonical SourceType.
// Unrecognized labels map to SourceUnknown rather than failing.
func ParseSourceType(raw string) SourceType {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch SourceType(s) {
	case SourceFiling, SourceAPIVerified, SourceAnalystReport, SourceManualVerified,
		SourceWebsite, SourceNews, SourceEstimate, SourceDatabase:
		return SourceType(s)
	}
	if t, ok := sourceAliases[s]; ok {
		return t
	}
	return SourceUnknown
}

// Evidence is an immutable piece of raw material about a competitor.
// It is produced by the ingestion collaborator; the core only reads it.
type Evidence struct {
	ID           string     `json:"id"`
	CompetitorID string     `json:"competitor_id"`
	SourceType   SourceType `json:"source_type"`
	ContentHash  string     `json:"content_hash"` // SHA-256 of Content
	Content      string     `json:"content"`      // Raw text or HTML
	FetchedAt    time.Time  `json:"fetched_at"`
}

// AgeDays returns the age of the evidence in whole days at time now.
func (e Evidence) AgeDays(now time.Time) int {
	if e.FetchedAt.IsZero() || now.Before(e.FetchedAt) {
		return 0
	}
	return int(now.Sub(e.FetchedAt).Hours() / 24)
}

// HashContent computes the canonical content hash used for Evidence.ContentHash
// and for commit idempotency keys.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
