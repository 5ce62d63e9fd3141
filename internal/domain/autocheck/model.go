package autocheck

// Appointment is one row of the HIS today-appointments response. The HIS
// emits snake_case field names.
type Appointment struct {
	AppointmentID int    `json:"appointment_id"`
	PatientID     int    `json:"patient_id"`
	PatientName   string `json:"patient_name,omitempty"`
	MPI           string `json:"mpi,omitempty"`
	EncounterID   int    `json:"encounter_id,omitempty"`

	ReceiverCode string `json:"receiver_code,omitempty"`
	PayerCode    string `json:"payer_code,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
	PayerName    string `json:"payer_name,omitempty"`

	NationalityID string `json:"nationality_id,omitempty"`
	UIDValue      string `json:"uid_value,omitempty"`
	DHAMemberID   string `json:"dha_member_id,omitempty"`

	TPAPolicyID       string `json:"tpa_policy_id,omitempty"`
	InsurancePolicyID string `json:"insurance_policy_id,omitempty"`
	PolicyNumber      string `json:"policy_number,omitempty"`

	SpecialisationName string `json:"specialisation_name,omitempty"`
	IsEmergency        bool   `json:"is_emergency_appointment,omitempty"`
}

// HasInsuranceInfo reports whether any payer or receiver field is set.
func (a *Appointment) HasInsuranceInfo() bool {
	return a.ReceiverCode != "" || a.PayerCode != "" || a.ReceiverName != "" || a.PayerName != ""
}

// HasEmiratesID reports whether the appointment carries a national
// identifier usable for an EMIRATESID lookup.
func (a *Appointment) HasEmiratesID() bool {
	return a.NationalityID != "" || a.UIDValue != ""
}

// Metrics counts the outcomes of one processing pass.
type Metrics struct {
	Fetched          int
	Processed        int
	ChecksCreated    int
	Errors           int
	SkippedNoTPA     int
	SkippedNoID      int
	SkippedNoPayer   int
	SkippedProcessed int
}
