package planmapping

import "time"

// PlanNetworkMapping links an internal Lifetrenz plan to a Mantys network
// name for one clinic and TPA. At most one mapping per (clinic, TPA, network)
// should carry IsDefault; the reconciler in service.go maintains that
// invariant across imports.
type PlanNetworkMapping struct {
	ID      string `json:"id"`
	TPACode string `json:"tpa_code"`

	LTPlanID   string `json:"lt_plan_id"`
	LTPlanName string `json:"lt_plan_name,omitempty"`
	LTPlanCode string `json:"lt_plan_code,omitempty"`

	MantysNetworkName string `json:"mantys_network_name"`
	IsDefault         bool   `json:"is_default"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportResult summarizes one bulk import pass.
type ImportResult struct {
	Imported      int `json:"imported"`
	Errors        int `json:"errors"`
	DefaultsFixed int `json:"defaults_fixed"`
}
