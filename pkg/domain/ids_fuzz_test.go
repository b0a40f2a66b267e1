package domain

import (
	"testing"

	dErrors "truconn/pkg/domain-errors"
)

// FuzzParseAuditID checks that arbitrary path segments either parse to a
// non-nil ID that survives a String round trip or fail with invalid_input.
func FuzzParseAuditID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("{550e8400-e29b-41d4-a716-446655440000}")
	f.Add("urn:uuid:550e8400-e29b-41d4-a716-446655440000")
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		auditID, err := ParseAuditID(input)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				t.Fatalf("unexpected error code for %q: %v", input, err)
			}
			return
		}
		if auditID.IsNil() {
			t.Fatalf("nil id accepted for %q", input)
		}
		again, err := ParseAuditID(auditID.String())
		if err != nil || again != auditID {
			t.Fatalf("round trip changed %q: %v", input, err)
		}
	})
}
