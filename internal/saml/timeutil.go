package saml

import (
	"time"

	"github.com/beevik/etree"
)

// issueInstantFormat is the timestamp format rendered into outgoing
// AuthnRequests (seconds precision, always UTC).
const issueInstantFormat = "2006-01-02T15:04:05Z"

// now is swapped out by tests that exercise the Conditions boundaries.
var now = time.Now

// parseSAMLTime parses a protocol timestamp. IdPs emit RFC 3339 with or
// without fractional seconds, so both forms are accepted. The result is
// normalized to UTC.
func parseSAMLTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999999Z0700", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}

// parseTimeAttr reads a timestamp attribute off el. Returns a zero time when
// el is nil or the attribute is absent; an error only for unparseable values.
func parseTimeAttr(el *etree.Element, attr string) (time.Time, error) {
	if el == nil {
		return time.Time{}, nil
	}
	v := el.SelectAttrValue(attr, "")
	if v == "" {
		return time.Time{}, nil
	}
	return parseSAMLTime(v)
}
