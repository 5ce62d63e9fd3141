package patientctx

import (
	"encoding/json"
	"time"
)

// PatientContext is the snapshot of patient, visit and insurance identifiers
// gathered across HIS lookups. It is written redundantly under every
// identifier it carries so later flows can resolve it from whichever key
// they hold.
type PatientContext struct {
	MPI           string `json:"mpi,omitempty"`
	PatientID     string `json:"patientId,omitempty"`
	PatientName   string `json:"patientName,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmiratesID    string `json:"emiratesId,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
	EncounterID   int    `json:"encounterId,omitempty"`
	PhysicianID   int    `json:"physicianId,omitempty"`
	VisitType     string `json:"visitType,omitempty"`

	InsuranceName string          `json:"insuranceName,omitempty"`
	TPACode       string          `json:"tpaCode,omitempty"`
	PolicyNumber  string          `json:"policyNumber,omitempty"`
	Insurance     json.RawMessage `json:"insurance,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// HasKey reports whether the snapshot carries at least one cache key.
func (p *PatientContext) HasKey() bool {
	return p.MPI != "" || p.PatientID != "" || p.AppointmentID != ""
}

// merge overlays the non-zero fields of in onto p, copying forward anything
// the update leaves unspecified.
func (p *PatientContext) merge(in *PatientContext) {
	if in.MPI != "" {
		p.MPI = in.MPI
	}
	if in.PatientID != "" {
		p.PatientID = in.PatientID
	}
	if in.PatientName != "" {
		p.PatientName = in.PatientName
	}
	if in.Phone != "" {
		p.Phone = in.Phone
	}
	if in.EmiratesID != "" {
		p.EmiratesID = in.EmiratesID
	}
	if in.AppointmentID != "" {
		p.AppointmentID = in.AppointmentID
	}
	if in.EncounterID != 0 {
		p.EncounterID = in.EncounterID
	}
	if in.PhysicianID != 0 {
		p.PhysicianID = in.PhysicianID
	}
	if in.VisitType != "" {
		p.VisitType = in.VisitType
	}
	if in.InsuranceName != "" {
		p.InsuranceName = in.InsuranceName
	}
	if in.TPACode != "" {
		p.TPACode = in.TPACode
	}
	if in.PolicyNumber != "" {
		p.PolicyNumber = in.PolicyNumber
	}
	if in.Insurance != nil {
		p.Insurance = in.Insurance
	}
}
