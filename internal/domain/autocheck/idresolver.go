package autocheck

import "strings"

// Identifier types accepted by the automation service.
const (
	IDTypeCardNumber = "CARDNUMBER"
	IDTypeEmiratesID = "EMIRATESID"
	IDTypeDHAMember  = "DHAMEMBERID"
)

// ResolveID picks the identifier to run the check with. Insurance policy
// ids outrank the Emirates ID, which outranks a DHA member id.
func ResolveID(a *Appointment) (idType, idValue string, ok bool) {
	for _, policy := range []string{a.TPAPolicyID, a.InsurancePolicyID, a.PolicyNumber} {
		if v := strings.TrimSpace(policy); v != "" {
			return IDTypeCardNumber, v, true
		}
	}
	for _, national := range []string{a.NationalityID, a.UIDValue} {
		if v := strings.TrimSpace(national); v != "" {
			return IDTypeEmiratesID, v, true
		}
	}
	if v := strings.TrimSpace(a.DHAMemberID); v != "" {
		return IDTypeDHAMember, v, true
	}
	return "", "", false
}
