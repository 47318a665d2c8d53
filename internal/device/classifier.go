package device

import "strings"

// vocabulary lists name fragments advertised by vehicle diagnostic adapters:
// protocol abbreviations first, then vendor brands, then generic tokens.
var vocabulary = []string{
	"OBD", "ELM", "OBDII", "OBD2", "OBD-II",
	"VGATE", "VLINK", "CARISTA", "VEEPEAK",
	"KONNWEI", "ANCEL", "BAFX", "BLUEDRIVER",
	"SCAN", "DIAG", "CAN", "TORQUE",
}

// Vocabulary returns a copy of the name fragments used by IsDiagnosticDevice.
func Vocabulary() []string {
	out := make([]string, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// IsDiagnosticDevice reports whether name looks like a diagnostic adapter.
// The match is a case-insensitive substring test; an empty name never matches.
func IsDiagnosticDevice(name string) bool {
	_, ok := MatchFragment(name)
	return ok
}

// MatchFragment returns the first vocabulary fragment contained in name.
func MatchFragment(name string) (string, bool) {
	if name == "" {
		return "", false
	}

	upper := strings.ToUpper(name)
	for _, fragment := range vocabulary {
		if strings.Contains(upper, fragment) {
			return fragment, true
		}
	}
	return "", false
}
