package autocheck

import "strings"

// Visit types accepted by the automation service.
var validVisitTypes = map[string]bool{
	"OUTPATIENT": true, "INPATIENT": true, "DENTAL": true, "OPTICAL": true,
	"MATERNITY": true, "PSYCHIATRY": true, "WELLNESS": true, "CHRONIC_OUT": true,
	"EMERGENCY": true, "LIFE": true, "TRAVEL_INSURANCE": true,
}

// specialisationKeywords maps substrings of the HIS specialisation name onto
// visit types. Order matters only for readability; the first matching
// keyword in iteration wins, and the table has no overlapping keys.
var specialisationKeywords = []struct {
	keyword   string
	visitType string
}{
	{"DENTAL", "DENTAL"},
	{"DENTIST", "DENTAL"},
	{"OPTICAL", "OPTICAL"},
	{"OPTOMETRIST", "OPTICAL"},
	{"OPHTHALMOLOGIST", "OPTICAL"},
	{"EYE", "OPTICAL"},
	{"MATERNITY", "MATERNITY"},
	{"OBSTETRIC", "MATERNITY"},
	{"GYNECOLOG", "MATERNITY"},
	{"PSYCHIATRY", "PSYCHIATRY"},
	{"PSYCHIATRIST", "PSYCHIATRY"},
	{"MENTAL", "PSYCHIATRY"},
	{"WELLNESS", "WELLNESS"},
}

// DetermineVisitType maps an appointment onto an automation visit type:
// specialisation keywords first, then the emergency flag, then OUTPATIENT.
func DetermineVisitType(a *Appointment) string {
	if a.SpecialisationName != "" {
		upper := strings.ToUpper(a.SpecialisationName)
		for _, entry := range specialisationKeywords {
			if strings.Contains(upper, entry.keyword) {
				return entry.visitType
			}
		}
	}
	if a.IsEmergency {
		return "EMERGENCY"
	}
	return "OUTPATIENT"
}

func IsValidVisitType(visitType string) bool {
	return validVisitTypes[visitType]
}
