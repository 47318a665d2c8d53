package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDiagnosticDevice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "empty name is never a match", input: "", expected: false},
		{name: "lower case protocol token", input: "obd2-scanner", expected: true},
		{name: "upper case protocol token", input: "OBD2-SCANNER", expected: true},
		{name: "elm clone", input: "ELM327 v1.5", expected: true},
		{name: "vendor brand mixed case", input: "Vgate iCar Pro", expected: true},
		{name: "fragment in the middle", input: "my-konnwei-kw902", expected: true},
		{name: "generic diag token", input: "AutoDiagnostic", expected: true},
		{name: "can token inside a word", input: "Pecan Pie", expected: true},
		{name: "headphones", input: "Sony WH-1000XM4", expected: false},
		{name: "phone", input: "Pixel 8", expected: false},
		{name: "unicode name", input: "Łódź speaker", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDiagnosticDevice(tt.input))
		})
	}
}

func TestIsDiagnosticDevice_OrderIndependent(t *testing.T) {
	// Every fragment must match on its own, regardless of its position in the vocabulary
	for _, fragment := range Vocabulary() {
		assert.True(t, IsDiagnosticDevice("x-"+strings.ToLower(fragment)+"-x"), fragment)
	}
}

func TestMatchFragment(t *testing.T) {
	fragment, ok := MatchFragment("OBDLink MX+")
	require.True(t, ok)
	assert.Equal(t, "OBD", fragment)

	fragment, ok = MatchFragment("Carista")
	require.True(t, ok)
	assert.Equal(t, "CARISTA", fragment)

	fragment, ok = MatchFragment("Sony WH-1000XM4")
	assert.False(t, ok)
	assert.Empty(t, fragment)
}

func TestVocabulary_ReturnsCopy(t *testing.T) {
	v := Vocabulary()
	require.NotEmpty(t, v)
	v[0] = "MUTATED"

	assert.Equal(t, "OBD", Vocabulary()[0])
	assert.False(t, IsDiagnosticDevice("mutated"))
}

func TestDevice(t *testing.T) {
	named := Device{Address: "11:22", Name: "ELM327 v1.5"}
	assert.True(t, named.HasName())
	assert.True(t, named.IsDiagnostic())
	assert.Equal(t, "ELM327 v1.5 (11:22)", named.String())

	anonymous := Device{Address: "AA:BB"}
	assert.False(t, anonymous.HasName())
	assert.False(t, anonymous.IsDiagnostic())
	assert.Equal(t, "AA:BB", anonymous.String())
}

func BenchmarkIsDiagnosticDevice(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = IsDiagnosticDevice("Sony WH-1000XM4")
	}
}
