package autocheck

import (
	"regexp"
	"strings"
)

var (
	tpaCodePattern   = regexp.MustCompile(`^TPA[0-9A-Z]+$`)
	insCodePattern   = regexp.MustCompile(`^INS[0-9A-Z]+$`)
	otherCodePattern = regexp.MustCompile(`^(D|DHPO|RIYATI)[0-9A-Z]*$`)
)

// TPACodeBoth searches across all configured TPAs. Used when an appointment
// has no payer information but does carry an Emirates ID.
const TPACodeBoth = "BOTH"

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ExtractTPACode derives the TPA code for an appointment. Code fields win
// over name matching: receiver then payer code against the TPA/INS patterns,
// then against the regulator code patterns, then receiver/payer name through
// the clinic's insurance-name index.
func ExtractTPACode(a *Appointment, nameIndex map[string]string) string {
	receiver := strings.TrimSpace(a.ReceiverCode)
	payer := strings.TrimSpace(a.PayerCode)

	for _, code := range []string{receiver, payer} {
		if code != "" && (tpaCodePattern.MatchString(code) || insCodePattern.MatchString(code)) {
			return code
		}
	}
	for _, code := range []string{receiver, payer} {
		if code != "" && otherCodePattern.MatchString(code) {
			return code
		}
	}

	for _, name := range []string{a.ReceiverName, a.PayerName} {
		if name == "" {
			continue
		}
		if code, ok := nameIndex[normalizeName(name)]; ok {
			return code
		}
	}
	return ""
}

// IsValidTPACode accepts any of the known code shapes plus the BOTH
// wildcard.
func IsValidTPACode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	if code == TPACodeBoth {
		return true
	}
	return tpaCodePattern.MatchString(code) ||
		insCodePattern.MatchString(code) ||
		otherCodePattern.MatchString(code)
}
