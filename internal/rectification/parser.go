// Package rectification turns the change list written into a rectification
// request into subject field updates. It has no side effects.
//
// Each recognised line has the shape
//
//	- <Label>: Valor actual "<old>" => Nuevo valor "<new>"
//
// Lines with unknown labels, or prose, are ignored.
package rectification

import (
	"regexp"
	"sort"
	"strings"

	"compliance/internal/subject"
)

// Diff is either NoChanges or Changes.
type Diff interface {
	isDiff()
}

// NoChanges means nothing in the description can be applied automatically.
type NoChanges struct{}

// Changes maps subject fields to their proposed values.
type Changes map[subject.Field]string

func (NoChanges) isDiff() {}
func (Changes) isDiff()   {}

// Fields converts the changes into a directory update.
func (c Changes) Fields() subject.Fields {
	out := make(subject.Fields, len(c))
	for f, v := range c {
		out[f] = v
	}
	return out
}

// SortedFields lists the changed fields in a stable order.
func (c Changes) SortedFields() []subject.Field {
	out := make([]subject.Field, 0, len(c))
	for f := range c {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var lineRe = regexp.MustCompile(`^\s*-\s*([^:]+?)\s*:\s*Valor actual\s*"(.*?)"\s*=>\s*Nuevo valor\s*"(.*)"\s*$`)

const fullNameLabel = "nombre completo"

var labelFields = map[string]subject.Field{
	"nombre":       subject.FieldName,
	"apellidos":    subject.FieldSurname,
	"razón social": subject.FieldSurname,
	"email":        subject.FieldEmail,
	"teléfono":     subject.FieldPhone,
	"dni / nif":    subject.FieldTaxID,
	"dirección":    subject.FieldAddress,
}

// ParseChanges extracts the proposed values from a request description.
// When a field appears more than once the last line wins.
func ParseChanges(description string) Diff {
	changes := Changes{}
	for _, line := range strings.Split(description, "\n") {
		m := lineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(m[1]))
		value := strings.TrimSpace(m[3])

		if label == fullNameLabel {
			first, rest, _ := strings.Cut(value, " ")
			changes[subject.FieldName] = first
			changes[subject.FieldSurname] = strings.TrimSpace(rest)
			continue
		}
		if f, ok := labelFields[label]; ok {
			changes[f] = value
		}
	}
	if len(changes) == 0 {
		return NoChanges{}
	}
	return changes
}

// Request is the view of a data subject request the satisfaction check needs.
type Request interface {
	IsRectification() bool
	IsCompleted() bool
	RequestDetails() string
}

// IsSatisfied reports whether the subject record already holds every value
// the request proposes. Requests that are not pending rectifications, and
// descriptions without recognised lines, are trivially satisfied.
func IsSatisfied(req Request, s *subject.Subject) bool {
	if !req.IsRectification() || req.IsCompleted() {
		return true
	}
	changes, ok := ParseChanges(req.RequestDetails()).(Changes)
	if !ok {
		return true
	}
	if s == nil {
		return false
	}
	for f, proposed := range changes {
		if strings.TrimSpace(s.Value(f)) != strings.TrimSpace(proposed) {
			return false
		}
	}
	return true
}
