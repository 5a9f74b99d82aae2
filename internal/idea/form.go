// Package idea collects and validates the product idea submitted for
// analysis, from flags, text or PDF files, or a landing page.
package idea

import (
	"regexp"
	"strings"

	"github.com/kalambet/waypoint/internal/analysis"
)

// MinLength is the shortest accepted product description, after trimming.
const MinLength = 10

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// FieldError is one rejected form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every rejected field of a form.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Form is the raw submission input.
type Form struct {
	ProductIdea string
	Tier        string
	Email       string
}

// ValidateForm checks f and returns the normalized request. The tier
// defaults to prelaunch.
func ValidateForm(f Form) (analysis.SubmitRequest, error) {
	var errs []FieldError

	productIdea := strings.TrimSpace(f.ProductIdea)
	switch {
	case productIdea == "":
		errs = append(errs, FieldError{"product_idea", "Please describe your product idea"})
	case len([]rune(productIdea)) < MinLength:
		errs = append(errs, FieldError{"product_idea", "Please provide more detail (at least 10 characters)"})
	}

	email := strings.TrimSpace(f.Email)
	switch {
	case email == "":
		errs = append(errs, FieldError{"email", "Email is required"})
	case !emailPattern.MatchString(email):
		errs = append(errs, FieldError{"email", "Please enter a valid email address"})
	}

	tier := analysis.Tier(strings.ToLower(strings.TrimSpace(f.Tier)))
	switch tier {
	case "":
		tier = analysis.TierPrelaunch
	case analysis.TierPrelaunch, analysis.TierPostlaunch:
	default:
		errs = append(errs, FieldError{"tier", "Tier must be prelaunch or postlaunch"})
	}

	if len(errs) > 0 {
		return analysis.SubmitRequest{}, &ValidationError{Fields: errs}
	}
	return analysis.SubmitRequest{ProductIdea: productIdea, Tier: tier, Email: email}, nil
}
