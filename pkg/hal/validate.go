package hal

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationIssue describes a structural problem in a HAL document. Issues
// are informational; a document with issues is still usable.
type ValidationIssue struct {
	Path    string
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Validate checks the resource for a self link and for links without an
// href. Embedded resources are checked recursively but are not required to
// have a self link.
func (r *Resource) Validate() []ValidationIssue {
	return r.validate("$")
}

func (r *Resource) validate(path string) []ValidationIssue {
	var issues []ValidationIssue

	if !r.embeddedFragment && r.Link(selfRel) == nil {
		issues = append(issues, ValidationIssue{
			Path:    path + "._links",
			Message: "resource has no self link",
		})
	}

	for _, rel := range r.LinkRels() {
		for i, l := range r.links[rel] {
			if err := validation.ValidateStruct(&l,
				validation.Field(&l.Href, validation.Required),
			); err != nil {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("%s._links.%s[%d]", path, rel, i),
					Message: err.Error(),
				})
			}
		}
	}

	for i, c := range r.curies {
		if err := validation.ValidateStruct(&c,
			validation.Field(&c.Name, validation.Required),
			validation.Field(&c.Href, validation.Required),
		); err != nil {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("%s._links.curies[%d]", path, i),
				Message: err.Error(),
			})
		}
	}

	for _, rel := range r.EmbeddedRels() {
		for i, doc := range r.embedded[rel] {
			issues = append(issues,
				doc.validate(fmt.Sprintf("%s._embedded.%s[%d]", path, rel, i))...)
		}
	}

	return issues
}
