// Package normalize maps loosely-structured upstream lead payloads into the
// canonical LeadFields set. It never fails: anything it cannot derive is nil.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/model"
)

// Source field names understood by the normalizer, grouped by canonical
// field. Upstream delivers inconsistent key casing across its sync and push
// paths, so each group lists every observed spelling.
var (
	idKeys        = []string{"id", "leadID", "lead_id"}
	firstNameKeys = []string{"firstName", "first_name"}
	lastNameKeys  = []string{"lastName", "last_name"}
	emailKeys     = []string{"emailAddress", "email"}

	// Phone precedence: mobile, then primary, then office.
	phoneKeys = []string{"mobilePhoneNumber", "phoneNumber", "officePhoneNumber"}
)

// clock returns the current time; swapped out in tests for the synthesized
// identifier path.
var clock = time.Now

// Payload normalizes one raw upstream payload. The input is whatever a JSON
// decode produced: a map, a bare string, or nil; any shape is accepted.
func Payload(raw any) *model.LeadFields {
	if s, ok := raw.(string); ok {
		return nameOnly(s)
	}

	m, _ := raw.(map[string]any)
	if len(m) == 0 {
		zap.L().Warn("normalize: payload empty, synthesizing identifier")
		return &model.LeadFields{ExternalID: synthesizeID()}
	}

	m = unwrap(m)

	// A single remaining field that is a plain display name means the
	// upstream sent only "name"; synthesize first/last from it.
	if len(m) == 1 {
		if name, ok := soleDisplayName(m); ok {
			return nameOnly(name)
		}
	}

	f := &model.LeadFields{
		Name:              joinName(firstOf(m, firstNameKeys), firstOf(m, lastNameKeys)),
		Email:             firstOf(m, emailKeys),
		Phone:             firstOf(m, phoneKeys),
		UpstreamScore:     intField(m, "leadScoreWeighted"),
		Status:            stringField(m, "leadStatus"),
		Company:           stringField(m, "companyName"),
		Title:             stringField(m, "title"),
		Website:           stringField(m, "website"),
		LeadSource:        stringField(m, "leadSource"),
		InitialLeadSource: stringField(m, "initialLeadSource"),
		Timeframe:         stringField(m, "time_frame"),
		City:              stringField(m, "city"),
		State:             stringField(m, "state"),
		PostalCode:        stringField(m, "zipcode"),
		IsCustomer:        boolField(m, "isCustomer"),
		IsQualified:       boolField(m, "isQualified"),
		IsUnsubscribed:    boolField(m, "isUnsubscribed"),
		Tags:              tagsField(m, "tags"),
		LastContacted:     timeField(m, "lastContacted"),
	}

	if id := firstRaw(m, idKeys); id != nil {
		f.ExternalID = stringify(id)
	} else {
		f.ExternalID = synthesizeID()
	}

	return f
}

// unwrap handles alternate wrapper shapes: when the payload itself has no
// id-like field and no first/last-name field, the first nested object (in
// sorted key order) holding an id, first name, or email is adopted as the
// working payload. Only one level is unwrapped; deeper nesting is not
// resolved.
func unwrap(m map[string]any) map[string]any {
	if firstRaw(m, idKeys) != nil || firstRaw(m, firstNameKeys) != nil || firstRaw(m, lastNameKeys) != nil {
		return m
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		nested, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		if firstRaw(nested, idKeys) != nil || firstRaw(nested, firstNameKeys) != nil || firstRaw(nested, emailKeys) != nil {
			zap.L().Warn("normalize: adopted nested payload", zap.String("wrapper_key", k))
			return nested
		}
	}
	return m
}

// nameOnly synthesizes a minimal record from a bare display name. The
// identifier is time-based; repeated normalization of the same input yields
// different ids on this path only.
func nameOnly(name string) *model.LeadFields {
	zap.L().Warn("normalize: name-only payload, synthesizing record", zap.String("name", name))

	f := &model.LeadFields{ExternalID: synthesizeID()}
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return f
	}
	first := tokens[0]
	var last *string
	if len(tokens) > 1 {
		l := strings.Join(tokens[1:], " ")
		last = &l
	}
	f.Name = joinName(&first, last)
	return f
}

// soleDisplayName reports whether the map's single entry is a plain name
// string under a name-like key.
func soleDisplayName(m map[string]any) (string, bool) {
	for k, v := range m {
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		switch k {
		case "name", "displayName", "display_name":
			return s, true
		}
	}
	return "", false
}

func synthesizeID() string {
	return fmt.Sprintf("webhook-%d", clock().UnixMilli())
}

// joinName joins first and last with a single space, omitting whichever is
// absent. An empty result is nil, never the empty string.
func joinName(first, last *string) *string {
	var parts []string
	if first != nil && *first != "" {
		parts = append(parts, *first)
	}
	if last != nil && *last != "" {
		parts = append(parts, *last)
	}
	if len(parts) == 0 {
		return nil
	}
	name := strings.Join(parts, " ")
	return &name
}

// firstRaw returns the first present value among the given keys, nil when
// none is set (a stored nil value also counts as absent).
func firstRaw(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstOf returns the first non-empty string value among the given keys.
func firstOf(m map[string]any, keys []string) *string {
	for _, k := range keys {
		if s := stringField(m, k); s != nil {
			return s
		}
	}
	return nil
}

func stringField(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s := stringify(v)
	if s == "" {
		return nil
	}
	return &s
}

// boolField coerces the upstream's string-encoded flags: "1" is true, "0"
// or anything else is false.
func boolField(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "1"
	case float64:
		return t == 1
	}
	return false
}

// intField parses numeric-ish values that encode integers as strings.
// Unparseable or absent values are nil.
func intField(m map[string]any, key string) *int {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func tagsField(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		var tags []string
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		if t == "" {
			return nil
		}
		var tags []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

func timeField(m map[string]any, key string) *time.Time {
	s := stringField(m, key)
	if s == nil {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, *s); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

// stringify renders an id-like value as a string. JSON numbers arrive as
// float64; integral values must not pick up a decimal point.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", t)
	}
}
