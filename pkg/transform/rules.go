package transform

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Rule normalises one raw field value.
type Rule func(value string) string

const (
	SwissProt = "Swiss-Prot"
	TrEMBL    = "TrEMBL"

	cathPrefix          = "G3DSA:"
	signalPeptideMarker = "SIGNAL_PEPTIDE"
)

// Reviewed maps boolean-like and legacy review strings to the database the
// entry lives in.
func Reviewed(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "reviewed", "swiss-prot":
		return SwissProt
	case "false", "unreviewed", "trembl":
		return TrEMBL
	default:
		return value
	}
}

// AnnotationScore truncates a float string to an integer string.
func AnnotationScore(value string) string {
	if value == "" {
		return value
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return value
	}
	if math.Abs(f) >= 1<<63 {
		return strconv.FormatFloat(math.Trunc(f), 'f', 0, 64)
	}
	return strconv.FormatInt(int64(f), 10)
}

// ProteinFamilies keeps the first family of a comma or semicolon separated
// list. An evidence suffix after the last '|' is kept.
func ProteinFamilies(value string) string {
	if value == "" {
		return value
	}
	main, evidence := value, ""
	if i := strings.LastIndex(value, "|"); i >= 0 {
		main, evidence = value[:i], value[i+1:]
	}

	first := main
	if i := strings.Index(main, ","); i >= 0 {
		first = strings.TrimSpace(main[:i])
	} else if i := strings.Index(main, ";"); i >= 0 {
		first = strings.TrimSpace(main[:i])
	}

	if evidence != "" {
		return first + "|" + evidence
	}
	return first
}

// Presence reports "True" for any non-blank value.
func Presence(value string) string {
	if strings.TrimSpace(value) != "" {
		return "True"
	}
	return "False"
}

// Fragment replaces the literal "fragment" with "yes".
func Fragment(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), "fragment") {
		return "yes"
	}
	return value
}

// PassThrough returns value unchanged.
func PassThrough(value string) string {
	return value
}

// Cath strips the G3DSA: prefix from each entry, drops empty entries and
// sorts the rest.
func Cath(value string) string {
	if value == "" {
		return value
	}
	var cleaned []string
	for _, part := range strings.Split(value, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimSpace(strings.ReplaceAll(part, cathPrefix, "")))
	}
	sort.Strings(cleaned)
	return strings.Join(cleaned, ";")
}

// SignalPeptide reports whether the Phobius signal peptide marker is present.
func SignalPeptide(value string) string {
	if strings.Contains(value, signalPeptideMarker) {
		return "True"
	}
	return "False"
}

// GOTerms strips the single-letter aspect prefix (F:, P:, C:) from each
// semicolon separated term.
func GOTerms(value string) string {
	if value == "" {
		return value
	}
	terms := strings.Split(value, ";")
	for i, term := range terms {
		term = strings.TrimSpace(term)
		if len(term) > 2 && term[1] == ':' {
			term = term[2:]
		}
		terms[i] = term
	}
	return strings.Join(terms, ";")
}
