// Package vocabulary is the in-process ports.VocabularyRegistry, the
// domain's controlled-vocabulary code sets registered the same way the
// teacher registers its CSV table definitions in internal/core/tables: a
// compile-time map populated at init(), not a table read on every lookup.
// Current per-domain versions come from config.VocabularyConfig, since
// those roll forward with server deploys rather than code changes.
package vocabulary

import (
	"context"
	"sort"
	"sync"

	"github.com/landtenure/intake/internal/intake/ports"
)

// Registry is a static, in-memory ports.VocabularyRegistry.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]string
	codes    map[string]map[string]bool
}

// New builds a Registry seeded with the server's current per-domain
// versions (from config.VocabularyConfig.AsMap()) over the compiled-in
// code sets.
func New(currentVersions map[string]string) *Registry {
	r := &Registry{
		versions: make(map[string]string, len(currentVersions)),
		codes:    cloneCodeSets(),
	}
	for domain, version := range currentVersions {
		r.versions[domain] = version
	}
	return r
}

// CurrentVersion returns the server's current semver for domain.
func (r *Registry) CurrentVersion(ctx context.Context, domain string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[domain]
	return v, ok
}

// IsValidCode reports whether code belongs to domain's controlled
// vocabulary. An unknown domain is never valid.
func (r *Registry) IsValidCode(ctx context.Context, domain, code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.codes[domain]
	if !ok {
		return false
	}
	return set[code]
}

// Domains lists every registered domain, sorted for deterministic output.
func (r *Registry) Domains(ctx context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codes))
	for domain := range r.codes {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

var _ ports.VocabularyRegistry = (*Registry)(nil)

// baseCodeSets is the compiled-in controlled vocabulary, one entry per
// domain named in a manifest's VocabularyVersions map.
var baseCodeSets = map[string][]string{
	"claim_status": {
		"draft", "submitted", "under_review", "approved", "rejected", "withdrawn",
	},
	"tenure_type": {
		"freehold", "leasehold", "customary", "informal_occupancy", "disputed", "state_land",
	},
	"evidence_type": {
		"deed", "tax_receipt", "witness_statement", "survey_record", "utility_bill", "photo", "satellite_image",
	},
	"relation_type": {
		"owner", "co_owner", "heir", "tenant", "occupant", "claimant",
	},
	"document_type": {
		"national_id", "birth_certificate", "marriage_certificate", "court_order", "power_of_attorney",
	},
	"referral_type": {
		"dispute_resolution", "legal_aid", "land_registry", "survey_department",
	},
}

func cloneCodeSets() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(baseCodeSets))
	for domain, codes := range baseCodeSets {
		set := make(map[string]bool, len(codes))
		for _, c := range codes {
			set[c] = true
		}
		out[domain] = set
	}
	return out
}
