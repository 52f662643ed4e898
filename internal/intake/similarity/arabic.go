// Package similarity implements the Arabic-name normalization and
// Levenshtein-based scoring the Duplicate Detector uses (SPEC_FULL.md
// §4.4). It is grounded on the teacher's controlled-vocabulary normalizer
// pattern (internal/core/tables/normalizers.go, which folds US state names
// to abbreviations before comparison) generalized from a single Latin
// lookup table to Arabic diacritic and letter-variant folding ahead of a
// Levenshtein comparison.
package similarity

import "strings"

const tatweel = 'ـ'

// diacritics are the Arabic tashkeel marks (harakat, sukun, shadda,
// tanwin) stripped before comparison.
var diacritics = map[rune]bool{
	'ً': true, // FATHATAN
	'ٌ': true, // DAMMATAN
	'ٍ': true, // KASRATAN
	'َ': true, // FATHA
	'ُ': true, // DAMMA
	'ِ': true, // KASRA
	'ّ': true, // SHADDA
	'ْ': true, // SUKUN
	'ٓ': true, // MADDAH ABOVE
	'ٔ': true, // HAMZA ABOVE
	'ٕ': true, // HAMZA BELOW
	'ٰ': true, // SUPERSCRIPT ALEF
}

// alefVariants fold to the bare Alef (ا) so spelling variation in hamza
// placement does not defeat duplicate detection.
var alefVariants = map[rune]rune{
	'أ': 'ا', // ALEF WITH HAMZA ABOVE (أ)
	'إ': 'ا', // ALEF WITH HAMZA BELOW (إ)
	'آ': 'ا', // ALEF WITH MADDA ABOVE (آ)
	'ٱ': 'ا', // ALEF WASLA (ٱ)
}

// NormalizeArabicName applies the folding rules from SPEC_FULL.md §4.4:
// strip tashkeel and tatweel, fold Alef variants to ا, fold Taa Marbutah
// (ة) to ه, fold Alef Maksura (ى) to ي, and collapse whitespace.
func NormalizeArabicName(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if diacritics[r] || r == tatweel {
			continue
		}
		if folded, ok := alefVariants[r]; ok {
			b.WriteRune(folded)
			continue
		}
		switch r {
		case 'ة': // TAA MARBUTA (ة)
			b.WriteRune('ه')
		case 'ى': // ALEF MAKSURA (ى)
			b.WriteRune('ي')
		default:
			b.WriteRune(r)
		}
	}

	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
