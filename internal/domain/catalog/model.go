package catalog

import "encoding/json"

// Kind names one of the per-clinic reference collections. The value doubles
// as the key segment in storage.
type Kind string

const (
	KindDoctors        Kind = "doctor"
	KindNetworks       Kind = "network"
	KindPlans          Kind = "plan"
	KindPayers         Kind = "payer"
	KindMantysNetworks Kind = "mantys_network"
)

var validKinds = map[Kind]bool{
	KindDoctors:        true,
	KindNetworks:       true,
	KindPlans:          true,
	KindPayers:         true,
	KindMantysNetworks: true,
}

// KindFromPath maps a URL collection segment to its Kind.
func KindFromPath(segment string) (Kind, bool) {
	switch segment {
	case "doctors":
		return KindDoctors, true
	case "networks":
		return KindNetworks, true
	case "plans":
		return KindPlans, true
	case "payers":
		return KindPayers, true
	case "mantys-networks":
		return KindMantysNetworks, true
	default:
		return "", false
	}
}

// Item is one entry of a reference collection. Meta carries source-specific
// extra fields verbatim.
type Item struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Code string          `json:"code,omitempty"`
	Meta json.RawMessage `json:"meta,omitempty"`
}
