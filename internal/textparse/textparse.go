// Package textparse extracts labeled sections from AI-generated message
// drafts. Model output varies run to run ("SMS:", "**SMS Message:**",
// "Email Subject:"), so matching is line-based and tolerant of markdown
// noise and filler words in the labels.
package textparse

import "strings"

// Labels configures the recognized section labels. Aliases are matched
// against the text before the first colon on a line, after markdown
// characters and qualifier words are stripped.
type Labels struct {
	SMS        []string `yaml:"sms" mapstructure:"sms"`
	Subject    []string `yaml:"subject" mapstructure:"subject"`
	Body       []string `yaml:"body" mapstructure:"body"`
	Qualifiers []string `yaml:"qualifiers" mapstructure:"qualifiers"`
}

// DefaultLabels returns the label vocabulary used when no override is
// configured.
func DefaultLabels() Labels {
	return Labels{
		SMS:        []string{"sms", "text"},
		Subject:    []string{"subject", "email subject"},
		Body:       []string{"body", "email body", "email"},
		Qualifiers: []string{"message", "copy", "draft", "content", "line", "version"},
	}
}

// Sections holds the extracted message parts. Absent sections are empty
// strings.
type Sections struct {
	SMS     string
	Subject string
	Body    string
}

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionSMS
	sectionSubject
	sectionBody
)

// Parse scans text line by line for labeled sections. A line whose prefix
// (before the first colon) matches a configured alias starts a section;
// following lines belong to it until the next label. Text with no
// recognized labels at all is returned whole as the Body.
func Parse(text string, labels Labels) Sections {
	var out Sections
	current := sectionNone
	var sms, subject, body []string

	appendLine := func(kind sectionKind, line string) {
		switch kind {
		case sectionSMS:
			sms = append(sms, line)
		case sectionSubject:
			subject = append(subject, line)
		case sectionBody:
			body = append(body, line)
		}
	}

	sawLabel := false
	for _, line := range strings.Split(text, "\n") {
		if kind, rest, ok := matchLabel(line, labels); ok {
			sawLabel = true
			current = kind
			if rest != "" {
				appendLine(current, rest)
			}
			continue
		}
		if current != sectionNone {
			appendLine(current, line)
		}
	}

	if !sawLabel {
		out.Body = strings.TrimSpace(text)
		return out
	}

	out.SMS = strings.TrimSpace(strings.Join(sms, "\n"))
	out.Subject = strings.TrimSpace(strings.Join(subject, "\n"))
	out.Body = strings.TrimSpace(strings.Join(body, "\n"))
	return out
}

func matchLabel(line string, labels Labels) (sectionKind, string, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return sectionNone, "", false
	}

	candidate := normalizeLabel(line[:idx], labels.Qualifiers)
	if candidate == "" {
		return sectionNone, "", false
	}

	rest := strings.TrimSpace(stripMarkdown(line[idx+1:]))
	switch {
	case matchesAlias(candidate, labels.SMS, labels.Qualifiers):
		return sectionSMS, rest, true
	case matchesAlias(candidate, labels.Subject, labels.Qualifiers):
		return sectionSubject, rest, true
	case matchesAlias(candidate, labels.Body, labels.Qualifiers):
		return sectionBody, rest, true
	}
	return sectionNone, "", false
}

func matchesAlias(candidate string, aliases, qualifiers []string) bool {
	for _, alias := range aliases {
		if candidate == normalizeLabel(alias, qualifiers) {
			return true
		}
	}
	return false
}

// normalizeLabel lowercases, strips markdown decoration, and drops
// qualifier words so "**SMS Message**" and "sms" compare equal.
func normalizeLabel(s string, qualifiers []string) string {
	fields := strings.Fields(strings.ToLower(stripMarkdown(s)))
	kept := fields[:0]
	for _, f := range fields {
		if isQualifier(f, qualifiers) || isListMarker(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// isListMarker reports whether a token is bullet or numbering noise,
// like "-" or "1." at the start of a label line.
func isListMarker(word string) bool {
	for _, r := range word {
		switch {
		case r == '-' || r == '+':
		case r >= '0' && r <= '9':
		case r == '.' || r == ')':
		default:
			return false
		}
	}
	return true
}

func isQualifier(word string, qualifiers []string) bool {
	for _, q := range qualifiers {
		if word == strings.ToLower(q) {
			return true
		}
	}
	return false
}

func stripMarkdown(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '_', '#', '`', '>':
			return -1
		}
		return r
	}, s)
}
