// Package validation holds the immutable reference lists (suburbs, alert
// categories) and the input checks shared by every handler.
package validation

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	MinShareDuration     = 15
	MaxShareDuration     = 120
	DefaultShareDuration = 30

	MinRadiusKm = 0.1
	MaxRadiusKm = 20.0

	MinTitleLength    = 5
	MinPasswordLength = 6

	DefaultCategory = "General"
)

//go:embed reference.yaml
var referenceYAML []byte

var validate = validator.New()

type referenceFile struct {
	Suburbs           []string `yaml:"suburbs"`
	Categories        []string `yaml:"categories"`
	DefaultCategories []string `yaml:"default_categories"`
}

// Reference is a read-only view of the allowed suburbs and categories.
// Lookups are case-insensitive; the canonical spelling is what gets stored.
type Reference struct {
	suburbs    map[string]string
	categories map[string]string

	suburbList        []string
	categoryList      []string
	defaultCategories []string
}

// Load parses a reference document. Every default category must itself be a
// known category.
func Load(data []byte) (*Reference, error) {
	var f referenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference lists: %w", err)
	}
	if len(f.Suburbs) == 0 || len(f.Categories) == 0 {
		return nil, fmt.Errorf("reference lists must not be empty")
	}

	ref := &Reference{
		suburbs:    make(map[string]string, len(f.Suburbs)),
		categories: make(map[string]string, len(f.Categories)),
	}
	for _, s := range f.Suburbs {
		s = strings.TrimSpace(s)
		ref.suburbs[strings.ToLower(s)] = s
		ref.suburbList = append(ref.suburbList, s)
	}
	for _, c := range f.Categories {
		c = strings.TrimSpace(c)
		ref.categories[strings.ToLower(c)] = c
		ref.categoryList = append(ref.categoryList, c)
	}
	for _, c := range f.DefaultCategories {
		canonical, ok := ref.NormalizeCategory(c)
		if !ok {
			return nil, fmt.Errorf("default category %q is not a known category", c)
		}
		ref.defaultCategories = append(ref.defaultCategories, canonical)
	}
	return ref, nil
}

var defaultReference = sync.OnceValue(func() *Reference {
	ref, err := Load(referenceYAML)
	if err != nil {
		panic(err)
	}
	return ref
})

// Default returns the embedded reference lists, parsed once per process.
func Default() *Reference {
	return defaultReference()
}

func (r *Reference) NormalizeSuburb(s string) (string, bool) {
	canonical, ok := r.suburbs[strings.ToLower(strings.TrimSpace(s))]
	return canonical, ok
}

func (r *Reference) NormalizeCategory(c string) (string, bool) {
	canonical, ok := r.categories[strings.ToLower(strings.TrimSpace(c))]
	return canonical, ok
}

func (r *Reference) IsValidSuburb(s string) bool {
	_, ok := r.NormalizeSuburb(s)
	return ok
}

func (r *Reference) IsValidCategory(c string) bool {
	_, ok := r.NormalizeCategory(c)
	return ok
}

// Suburbs returns a copy of the suburb list in reference order.
func (r *Reference) Suburbs() []string {
	return append([]string(nil), r.suburbList...)
}

// Categories returns a copy of the category list in reference order.
func (r *Reference) Categories() []string {
	return append([]string(nil), r.categoryList...)
}

// DefaultCategories are the notification categories new users subscribe to.
func (r *Reference) DefaultCategories() []string {
	return append([]string(nil), r.defaultCategories...)
}

func IsValidSuburb(s string) bool   { return Default().IsValidSuburb(s) }
func IsValidCategory(c string) bool { return Default().IsValidCategory(c) }

func IsValidDuration(minutes int) bool {
	return minutes >= MinShareDuration && minutes <= MaxShareDuration
}

func IsValidRadius(km float64) bool {
	return km >= MinRadiusKm && km <= MaxRadiusKm
}

func IsValidLatitude(v float64) bool  { return v >= -90 && v <= 90 }
func IsValidLongitude(v float64) bool { return v >= -180 && v <= 180 }

func IsValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// NormalizeEmail lower-cases and trims an address for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeEmails validates, normalizes and deduplicates a contact list,
// preserving first-seen order. The first invalid address is returned as an error.
func NormalizeEmails(emails []string) ([]string, error) {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := NormalizeEmail(e)
		if !IsValidEmail(n) {
			return nil, fmt.Errorf("invalid email address: %q", e)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
