package autocheck

import "testing"

func TestExtractTPACode(t *testing.T) {
	nameIndex := map[string]string{
		"DAMAN ENHANCED": "INS012",
		"NEXTCARE":       "TPA002",
	}

	cases := []struct {
		name string
		appt Appointment
		want string
	}{
		{"receiver tpa code", Appointment{ReceiverCode: "TPA001"}, "TPA001"},
		{"receiver ins code", Appointment{ReceiverCode: "INS012"}, "INS012"},
		{"payer code when receiver unusable", Appointment{ReceiverCode: "XYZ", PayerCode: "TPA009"}, "TPA009"},
		{"receiver code trimmed", Appointment{ReceiverCode: " TPA001 "}, "TPA001"},
		{"regulator code lower priority", Appointment{ReceiverCode: "DHPO42", PayerCode: "TPA001"}, "TPA001"},
		{"dhpo code", Appointment{ReceiverCode: "DHPO42"}, "DHPO42"},
		{"riyati code", Appointment{PayerCode: "RIYATI7"}, "RIYATI7"},
		{"bare d code", Appointment{ReceiverCode: "D123"}, "D123"},
		{"receiver name via index", Appointment{ReceiverName: "Daman Enhanced"}, "INS012"},
		{"name normalized", Appointment{PayerName: "  nextcare  "}, "TPA002"},
		{"code beats name", Appointment{ReceiverCode: "TPA001", ReceiverName: "Daman Enhanced"}, "TPA001"},
		{"nothing usable", Appointment{ReceiverName: "Unknown Payer"}, ""},
		{"lowercase code rejected", Appointment{ReceiverCode: "tpa001"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractTPACode(&tc.appt, nameIndex); got != tc.want {
				t.Errorf("ExtractTPACode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsValidTPACode(t *testing.T) {
	valid := []string{"TPA001", "INS012", "D1", "DHPO42", "RIYATI", "BOTH"}
	for _, code := range valid {
		if !IsValidTPACode(code) {
			t.Errorf("IsValidTPACode(%q) = false, want true", code)
		}
	}
	invalid := []string{"", "both", "XYZ123", "tpa001", "NAS"}
	for _, code := range invalid {
		if IsValidTPACode(code) {
			t.Errorf("IsValidTPACode(%q) = true, want false", code)
		}
	}
}
