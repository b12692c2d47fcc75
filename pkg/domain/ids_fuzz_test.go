package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseDomainID checks that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseDomainID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("example.com")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDomainID(input)
		if err == nil {
			roundTrip, err2 := ParseDomainID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("nil ID accepted")
			}
		}

		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures domain and flag IDs share one validation rule.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errDomain := ParseDomainID(input)
		_, errFlag := ParseFlagID(input)
		if (errDomain == nil) != (errFlag == nil) {
			t.Error("inconsistent parsing across ID types")
		}
	})
}
