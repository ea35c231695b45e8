package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

const (
	maxNameLength  = 200
	maxNotesLength = 1000
)

type (
	Kind   string
	Period string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID        string    `json:"id"`
		OwnerID   string    `json:"ownerId"`
		Name      string    `json:"name"`
		Amount    Money     `json:"amount"`
		Kind      Kind      `json:"kind"`
		Category  string    `json:"category"`
		Date      Date      `json:"date"`
		Notes     string    `json:"notes,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Budget is a per-category spending ceiling. Spent is derived from the
	// owner's expense transactions and is never edited by hand.
	Budget struct {
		ID       string `json:"id"`
		OwnerID  string `json:"ownerId"`
		Category string `json:"category"`
		Amount   Money  `json:"amount"`
		Period   Period `json:"period"`
		Spent    Money  `json:"spent"`
	}

	// TransactionPatch carries the fields of an update; nil fields are left untouched.
	TransactionPatch struct {
		Name     *string `json:"name,omitempty"`
		Amount   *Money  `json:"amount,omitempty"`
		Kind     *Kind   `json:"kind,omitempty"`
		Category *string `json:"category,omitempty"`
		Date     *Date   `json:"date,omitempty"`
		Notes    *string `json:"notes,omitempty"`
	}

	BudgetPatch struct {
		Amount *Money  `json:"amount,omitempty"`
		Period *Period `json:"period,omitempty"`
	}
)

// ParseKind accepts the two canonical kinds only.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Income, Expense:
		return k, nil
	default:
		return "", NewValidationError("kind", fmt.Sprintf("invalid kind %q: must be income or expense", s))
	}
}

func (k Kind) Valid() bool { return k == Income || k == Expense }

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Weekly, Monthly, Yearly:
		return p, nil
	default:
		return "", NewValidationError("period", fmt.Sprintf("invalid period %q: must be weekly, monthly or yearly", s))
	}
}

func (p Period) Valid() bool { return p == Weekly || p == Monthly || p == Yearly }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("date", fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", s))
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return NewValidationError("date", "date is required")
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return NewValidationError("date", "date must be a YYYY-MM-DD string")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxAmountCents {
		return ErrAmountTooLarge
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > maxNameLength {
		return NewValidationError("name", fmt.Sprintf("name too long (max %d characters)", maxNameLength))
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return NewValidationError("kind", "kind must be income or expense")
	}
	if err := ValidateCategory(t.Kind, t.Category); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Notes) > maxNotesLength {
		return NewValidationError("notes", fmt.Sprintf("notes too long (max %d characters)", maxNotesLength))
	}
	return nil
}

// Signed returns the amount with the display sign of its kind.
func (t Transaction) Signed() int64 {
	if t.Kind == Expense {
		return -t.Amount.Cents
	}
	return t.Amount.Cents
}

func (b Budget) Validate() error {
	if err := ValidateCategory(Expense, b.Category); err != nil {
		return err
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() {
		return NewValidationError("period", "period must be weekly, monthly or yearly")
	}
	if b.Spent.Cents < 0 {
		return NewValidationError("spent", "spent cannot be negative")
	}
	return nil
}

// Apply merges the patch over t. The result is not validated.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	return t
}

func (p TransactionPatch) IsEmpty() bool {
	return p.Name == nil && p.Amount == nil && p.Kind == nil &&
		p.Category == nil && p.Date == nil && p.Notes == nil
}

func (p BudgetPatch) Apply(b Budget) Budget {
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.Period != nil {
		b.Period = *p.Period
	}
	return b
}
