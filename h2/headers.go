package h2

import (
	"fmt"

	"golang.org/x/net/http/httpguts"

	"github.com/waieez/solicit/h2/hpack"
)

// validateHeaderFields checks a header list against the HTTP/2 field
// rules: pseudo-headers precede regular fields, field names are lowercase
// tokens, and values contain no forbidden octets. Violations on a received
// list are stream errors; on an outgoing list they reject the request
// before anything is sent.
func validateHeaderFields(fields []hpack.HeaderField) error {
	sawRegular := false
	for _, f := range fields {
		if f.IsPseudo() {
			if sawRegular {
				return fmt.Errorf("pseudo-header %q after regular header", f.Name)
			}
			switch f.Name {
			case ":method", ":scheme", ":path", ":authority", ":status":
			default:
				return fmt.Errorf("unknown pseudo-header %q", f.Name)
			}
			continue
		}
		sawRegular = true
		if f.Name == "" {
			return fmt.Errorf("empty header name")
		}
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return fmt.Errorf("invalid header name %q", f.Name)
		}
		for i := 0; i < len(f.Name); i++ {
			if c := f.Name[i]; 'A' <= c && c <= 'Z' {
				return fmt.Errorf("header name %q not lowercase", f.Name)
			}
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("invalid value for header %q", f.Name)
		}
	}
	return nil
}
