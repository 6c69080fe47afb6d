package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	MaxTitleLength = 80
	MaxNoteLength  = 200
)

type (
	// Kind decides the sign of a record in every aggregate.
	Kind string

	// Record is one income or expense event owned by a single user.
	// Amount is always stored positive; Signed derives the sign from Kind.
	Record struct {
		ID        string          `json:"id"`
		OwnerID   string          `json:"userId"`
		Title     string          `json:"title"`
		Amount    decimal.Decimal `json:"amount"`
		Kind      Kind            `json:"type"`
		Category  string          `json:"category"`
		Date      Date            `json:"date"`
		Note      string          `json:"note,omitempty"`
		CreatedAt time.Time       `json:"createdAt,omitempty"`
		UpdatedAt time.Time       `json:"updatedAt,omitempty"`
	}

	// Fields are the client-supplied parts of a record.
	Fields struct {
		Title    string          `json:"title"`
		Amount   decimal.Decimal `json:"amount"`
		Kind     Kind            `json:"type"`
		Category string          `json:"category"`
		Date     Date            `json:"date"`
		Note     string          `json:"note"`
	}

	// Patch is a partial update. Nil members are left untouched.
	Patch struct {
		Title    *string          `json:"title,omitempty"`
		Amount   *decimal.Decimal `json:"amount,omitempty"`
		Kind     *Kind            `json:"type,omitempty"`
		Category *string          `json:"category,omitempty"`
		Date     *Date            `json:"date,omitempty"`
		Note     *string          `json:"note,omitempty"`
	}
)

var (
	ErrEmptyTitle      = errors.New("title is required")
	ErrTitleTooLong    = fmt.Errorf("title too long (max %d characters)", MaxTitleLength)
	ErrInvalidAmount   = errors.New("enter a valid positive amount")
	ErrInvalidKind     = errors.New("type must be income or expense")
	ErrEmptyCategory   = errors.New("select a category")
	ErrUnknownCategory = errors.New("category is not valid for this type")
	ErrEmptyDate       = errors.New("date is required")
	ErrInvalidDate     = errors.New("date must be in YYYY-MM-DD form")
	ErrFutureDate      = errors.New("date cannot be in the future")
	ErrNoteTooLong     = fmt.Errorf("note too long (max %d characters)", MaxNoteLength)
	ErrEmptyPatch      = errors.New("nothing to update")
)

// ValidationError collects one error per offending field.
type ValidationError struct {
	Fields map[string]error
}

func (e *ValidationError) add(field string, err error) {
	if e.Fields == nil {
		e.Fields = make(map[string]error)
	}
	e.Fields[field] = err
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name].Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-field sentinels to errors.Is.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields))
	for _, err := range e.Fields {
		errs = append(errs, err)
	}
	return errs
}

// Messages returns field -> human message, suitable for form display.
func (e *ValidationError) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for name, err := range e.Fields {
		out[name] = err.Error()
	}
	return out
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Signed returns +Amount for income and -Amount for expense.
func (r Record) Signed() decimal.Decimal {
	if r.Kind == Expense {
		return r.Amount.Neg()
	}
	return r.Amount
}

// Normalize trims the free-text members the way the entry form does.
func (f Fields) Normalize() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Note = strings.TrimSpace(f.Note)
	f.Category = strings.TrimSpace(f.Category)
	f.Date = Date(strings.TrimSpace(string(f.Date)))
	return f
}

// Validate checks a full set of fields against the entry rules. now is the
// reference instant for the no-future-date policy.
func (f Fields) Validate(now time.Time) error {
	verr := &ValidationError{}
	if err := validateTitle(f.Title); err != nil {
		verr.add("title", err)
	}
	if err := validateAmount(f.Amount); err != nil {
		verr.add("amount", err)
	}
	if !f.Kind.Valid() {
		verr.add("type", ErrInvalidKind)
	}
	if strings.TrimSpace(f.Category) == "" {
		verr.add("category", ErrEmptyCategory)
	} else if f.Kind.Valid() && !ValidFor(f.Kind, f.Category) {
		verr.add("category", ErrUnknownCategory)
	}
	if err := f.Date.Validate(now); err != nil {
		verr.add("date", err)
	}
	if utf8.RuneCountInString(f.Note) > MaxNoteLength {
		verr.add("note", ErrNoteTooLong)
	}
	return verr.orNil()
}

// Record builds the stored shape for the given id and owner.
func (f Fields) Record(id, ownerID string, createdAt time.Time) Record {
	return Record{
		ID:        id,
		OwnerID:   ownerID,
		Title:     f.Title,
		Amount:    f.Amount,
		Kind:      f.Kind,
		Category:  f.Category,
		Date:      f.Date,
		Note:      f.Note,
		CreatedAt: createdAt,
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Amount == nil && p.Kind == nil &&
		p.Category == nil && p.Date == nil && p.Note == nil
}

// Normalize trims the free-text members that are present.
func (p Patch) Normalize() Patch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	p.Title = trim(p.Title)
	p.Note = trim(p.Note)
	p.Category = trim(p.Category)
	if p.Date != nil {
		d := Date(strings.TrimSpace(string(*p.Date)))
		p.Date = &d
	}
	return p
}

// Validate checks only the members present. Changing the kind requires a
// category from the new kind's set; a category alone must be a known key.
// Whether that key fits the stored record's kind is left to ValidateFor.
func (p Patch) Validate(now time.Time) error {
	if p.IsEmpty() {
		return &ValidationError{Fields: map[string]error{"patch": ErrEmptyPatch}}
	}
	verr := &ValidationError{}
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			verr.add("title", err)
		}
	}
	if p.Amount != nil {
		if err := validateAmount(*p.Amount); err != nil {
			verr.add("amount", err)
		}
	}
	if p.Kind != nil && !p.Kind.Valid() {
		verr.add("type", ErrInvalidKind)
	}
	switch {
	case p.Category != nil && *p.Category == "":
		verr.add("category", ErrEmptyCategory)
	case p.Kind != nil && p.Category == nil:
		verr.add("category", ErrEmptyCategory)
	case p.Kind != nil && p.Kind.Valid() && !ValidFor(*p.Kind, *p.Category):
		verr.add("category", ErrUnknownCategory)
	case p.Kind == nil && p.Category != nil && !Known(*p.Category):
		verr.add("category", ErrUnknownCategory)
	}
	if p.Date != nil {
		if err := p.Date.Validate(now); err != nil {
			verr.add("date", err)
		}
	}
	if p.Note != nil && utf8.RuneCountInString(*p.Note) > MaxNoteLength {
		verr.add("note", ErrNoteTooLong)
	}
	return verr.orNil()
}

// ValidateFor checks the patch against the record it will be applied to.
// Besides Validate, the merged record must pair its kind with a category
// of that kind, so a category alone cannot cross into the other kind.
func (p Patch) ValidateFor(current Record, now time.Time) error {
	if err := p.Validate(now); err != nil {
		return err
	}
	return p.ValidateMerged(current)
}

// ValidateMerged checks only the kind and category of current after the
// patch is applied. Writers run it against the stored record.
func (p Patch) ValidateMerged(current Record) error {
	if p.Kind == nil && p.Category == nil {
		return nil
	}
	merged := p.Apply(current)
	if !ValidFor(merged.Kind, merged.Category) {
		return &ValidationError{Fields: map[string]error{"category": ErrUnknownCategory}}
	}
	return nil
}

// Apply returns r with the patch members replaced. ID and OwnerID never change.
func (p Patch) Apply(r Record) Record {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Kind != nil {
		r.Kind = *p.Kind
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Note != nil {
		r.Note = *p.Note
	}
	return r
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
