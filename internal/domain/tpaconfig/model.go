package tpaconfig

import "time"

// Insurance types carried on a TPA config.
const (
	InsuranceTypeInsurance = 1
	InsuranceTypeTPA       = 2
)

// TPAConfig is the per-clinic record for one TPA or insurance code. InsCode
// is the storage key; TPAID is the legacy identifier older clinics still
// send. The four mapping fields link the code to the HIS insurance-plan
// record and are required before eligibility orders can be submitted.
type TPAConfig struct {
	InsCode string `json:"ins_code"`
	TPAID   string `json:"tpa_id,omitempty"`
	TPAName string `json:"tpa_name,omitempty"`

	HospitalInsuranceMappingID int    `json:"hospital_insurance_mapping_id,omitempty"`
	InsuranceID                int    `json:"insurance_id,omitempty"`
	InsuranceType              int    `json:"insurance_type,omitempty"`
	InsuranceName              string `json:"insurance_name,omitempty"`
	InsPayer                   string `json:"ins_payer,omitempty"`

	SiteID     string `json:"site_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMappingFields reports whether the config carries everything needed to
// submit an eligibility order to the HIS.
func (c *TPAConfig) HasMappingFields() bool {
	return c.HospitalInsuranceMappingID != 0 &&
		c.InsuranceID != 0 &&
		c.InsuranceType != 0 &&
		c.InsuranceName != ""
}

// ValidationResult is returned instead of an error so callers can decide
// what blocks a write. Only Errors blocks; Warnings are advisory.
type ValidationResult struct {
	IsValid       bool     `json:"isValid"`
	MissingFields []string `json:"missingFields"`
	Warnings      []string `json:"warnings"`
	Errors        []string `json:"errors"`
}

// MappingRow is one record of the HIS TPA-to-insurance mapping list.
type MappingRow struct {
	InsCode                    string `json:"ins_code"`
	InsuranceName              string `json:"insurance_name"`
	HospitalInsuranceMappingID int    `json:"hospital_insurance_mapping_id"`
	InsuranceID                int    `json:"insurance_id"`
	InsuranceType              int    `json:"insurance_type"`
	InsPayer                   string `json:"ins_payer,omitempty"`
}

// Diagnosis reports the mapping-field completeness of one config.
type Diagnosis struct {
	InsCode        string   `json:"ins_code"`
	TPAName        string   `json:"tpa_name,omitempty"`
	ReadyForOrders bool     `json:"ready_for_orders"`
	MissingFields  []string `json:"missing_fields,omitempty"`
}
