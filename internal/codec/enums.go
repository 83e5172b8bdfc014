package codec

// statusLabels maps raw protocol codes to display labels. Codes are shared
// across families: the "19.x" strings come from the Automatic firmware, the
// four-digit numeric codes from the PM5 firmware. Labels never carry a unit.
//
// This is the single canonical table; decode goes through it before any
// coefficient handling, so a raw "19.258" is always "Not Empty" and never a
// scaled number.
var statusLabels = map[string]string{
	"19.18":  "On",
	"19.19":  "Off",
	"19.106": "Constant production",
	"19.115": "Auto Plus",
	"19.176": "Off",
	"19.177": "On",
	"19.195": "Auto",
	"19.257": "Missing",
	"19.258": "Not Empty",
	"19.259": "Empty",

	"7001": "On",
	"7002": "Off",
	"7521": "Full",
	"7522": "Low",
	"7523": "Empty",
	"7524": "Ok",
	"7525": "Info",
	"7526": "Warning",
	"7527": "Alarm",
}

// IsStatusLabel reports whether v is one of the decoded label strings.
func IsStatusLabel(v string) bool {
	for _, label := range statusLabels {
		if label == v {
			return true
		}
	}
	return false
}

// valueToCodeAutomatic is the outbound mapping for Automatic SALT and
// Automatic Cl-pH select entities. Note the firmware quirk: writes use
// 19.17/19.18 for On/Off while reads report 19.18/19.19.
var valueToCodeAutomatic = map[string]string{
	"0.25x":               "19.3",
	"0.5x":                "19.4",
	"0.75x":               "19.5",
	"1.0x":                "19.6",
	"1.25x":               "19.7",
	"1.5x":                "19.8",
	"2x":                  "19.9",
	"3x":                  "19.10",
	"5x":                  "19.11",
	"10x":                 "19.12",
	"On":                  "19.17",
	"Off":                 "19.18",
	"Constant production": "19.106",
	"Auto Plus":           "19.115",
	"Auto":                "19.195",
	"Full":                "19.258",
	"Empty":               "19.259",
}

// valueToCodePM5 is the outbound mapping for PM5 Chlorine select entities.
var valueToCodePM5 = map[string]string{
	"On":   "7408",
	"Off":  "7407",
	"Auto": "7427",
}
