package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/shipflow/internal/config"
	"github.com/rpattn/shipflow/internal/tabular"
)

// Deriver computes stable record keys. When the source supplies no
// natural identifier it synthesizes one from row attributes plus a
// nanosecond timestamp; such keys are unique within the run but not
// reproducible across runs, so callers must persist the synthesized
// flag alongside the key.
type Deriver struct {
	synonyms config.Synonyms
	now      func() time.Time
}

// NewDeriver builds a deriver over the configured field synonyms.
func NewDeriver(synonyms config.Synonyms) *Deriver {
	return &Deriver{synonyms: synonyms, now: time.Now}
}

// WithClock overrides the timestamp source. Test hook.
func (d *Deriver) WithClock(now func() time.Time) *Deriver {
	if now != nil {
		d.now = now
	}
	return d
}

// DeriveKey returns the record's unique identifier and whether it had
// to be synthesized. A natural identifier is used verbatim.
func (d *Deriver) DeriveKey(row tabular.RawRow) (string, bool) {
	if natural := row.First(d.synonyms.UniqueID...); natural != "" {
		return natural, false
	}

	parts := []string{
		sanitize(row.First(d.synonyms.Organization...)),
		sanitize(row.First(d.synonyms.Location...)),
		sanitizeDate(row.First(d.synonyms.ShippingDate...)),
		sanitize(row.First(d.synonyms.Material...)),
		sanitize(row.First(d.synonyms.WeightLb...)),
	}

	var filtered []string
	for _, part := range parts {
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	if len(filtered) == 0 {
		filtered = []string{"record"}
	}

	// The timestamp suffix avoids collisions within this run only.
	return fmt.Sprintf("%s-%d", strings.Join(filtered, "-"), d.now().UnixNano()), true
}

// DerivePackageKey groups line items belonging to the same physical
// package: package identifier plus unique id when present, the unique
// id alone otherwise.
func (d *Deriver) DerivePackageKey(row tabular.RawRow, uniqueID string) string {
	pkg := sanitize(row.First(d.synonyms.PackageID...))
	if pkg == "" {
		return uniqueID
	}
	return fmt.Sprintf("%s-%s", pkg, uniqueID)
}

// sanitize keeps letters, digits, dashes and underscores; everything
// else collapses away so keys stay safe in URLs and file names.
func sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			builder.WriteRune(r)
		}
	}
	return strings.Trim(builder.String(), "-")
}

// sanitizeDate truncates a parseable date to the day; unparseable input
// falls back to plain sanitation.
func sanitizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format("20060102")
		}
	}
	return sanitize(value)
}
