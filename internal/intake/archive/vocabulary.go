package archive

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/landtenure/intake/internal/intake/model"
)

// CompareVocabulary evaluates an archive's vocabulary-versions map against
// the server's current per-domain versions using semver rules
// (SPEC_FULL.md §4.1 step 6). Parsed with github.com/Masterminds/semver/v3,
// carried over from the jordigilh-kubernaut member of the pack (listed
// there as a transitive Helm dependency; wired here directly since
// comparing semver-versioned vocabulary snapshots is exactly what it is
// for).
func CompareVocabulary(archiveVersions model.VocabularyVersions, currentVersion func(domain string) (string, bool)) model.VocabularyCompatibility {
	domains := make([]string, 0, len(archiveVersions))
	for d := range archiveVersions {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	result := model.VocabularyCompatibility{
		IsCompatible:      true,
		IsFullyCompatible: true,
	}

	for _, domain := range domains {
		archiveVer := archiveVersions[domain]
		serverVer, known := currentVersion(domain)

		dr := model.VocabularyDomainResult{
			Domain:         domain,
			ArchiveVersion: archiveVer,
			ServerVersion:  serverVer,
		}

		if !known {
			dr.Level = model.VocabUnknownDomain
		} else {
			dr.Level = compareSemver(archiveVer, serverVer)
		}

		if !dr.Level.Compatible() {
			result.IsCompatible = false
		}
		if dr.Level != model.VocabIdentical {
			result.IsFullyCompatible = false
		}

		result.Domains = append(result.Domains, dr)
	}

	return result
}

func compareSemver(archiveVer, serverVer string) model.VocabularyCompatibilityLevel {
	a, errA := semver.NewVersion(archiveVer)
	s, errS := semver.NewVersion(serverVer)
	if errA != nil || errS != nil {
		return model.VocabUnknownDomain
	}

	switch {
	case a.Major() != s.Major():
		return model.VocabMajorDifference
	case a.Minor() != s.Minor():
		return model.VocabMinorDifference
	case a.Patch() != s.Patch():
		return model.VocabPatchDifference
	default:
		return model.VocabIdentical
	}
}
