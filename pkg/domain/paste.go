package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// PasteRecord is the stored state of a paste. TTLSeconds and MaxViews are nil when unset.
type PasteRecord struct {
	ID          string
	Content     string
	TTLSeconds  *int64
	MaxViews    *int64
	CreatedAtMs int64
	ViewsUsed   int64
}

// ExpiresAtMs reports the expiry instant, if the record has a TTL.
func (r *PasteRecord) ExpiresAtMs() (int64, bool) {
	if r.TTLSeconds == nil {
		return 0, false
	}
	return r.CreatedAtMs + *r.TTLSeconds*1000, true
}

func (r *PasteRecord) RemainingViews() *int64 {
	if r.MaxViews == nil {
		return nil
	}
	rem := *r.MaxViews - r.ViewsUsed
	return &rem
}

// Clone copies r without sharing the optional fields.
func (r *PasteRecord) Clone() PasteRecord {
	c := *r
	if r.TTLSeconds != nil {
		v := *r.TTLSeconds
		c.TTLSeconds = &v
	}
	if r.MaxViews != nil {
		v := *r.MaxViews
		c.MaxViews = &v
	}
	return c
}

// Bounds keep every stored number, and createdAtMs+ttl*1000, within the
// integers a float64 holds exactly, which is how the Redis scripts do
// arithmetic.
const (
	MaxSafeInteger = 1<<53 - 1
	MaxTTLSeconds  = 1000000000000
	MaxViewLimit   = MaxSafeInteger
	MaxCreatedAtMs = MaxSafeInteger - MaxTTLSeconds*1000
)

type CreateParams struct {
	ID         string `validate:"required"`
	Content    string `validate:"required"`
	TTLSeconds *int64 `validate:"omitempty,min=1,max=1000000000000"`
	MaxViews   *int64 `validate:"omitempty,min=1,max=9007199254740991"`
	NowMs      int64  `validate:"gte=0,max=8007199254740991"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects params the ledger must never persist. Messages name the
// JSON field the caller sent.
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return NewValidationErr("content must be a non-empty string")
	}
	if !utf8.ValidString(p.Content) {
		return NewValidationErr("content must be valid UTF-8")
	}
	if err := validate.Struct(p); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok || len(verrs) == 0 {
			return ErrInvalidRequest
		}
		switch verrs[0].Field() {
		case "TTLSeconds":
			if verrs[0].Tag() == "max" {
				return NewValidationErr("ttl_seconds must be at most 1000000000000")
			}
			return NewValidationErr("ttl_seconds must be an integer >= 1")
		case "MaxViews":
			if verrs[0].Tag() == "max" {
				return NewValidationErr("max_views must be at most 9007199254740991")
			}
			return NewValidationErr("max_views must be an integer >= 1")
		case "ID":
			return NewValidationErr("id is required")
		case "NowMs":
			return NewValidationErr("creation time out of range")
		}
		return ErrInvalidRequest
	}
	return nil
}

// Record builds the initial stored state for the params.
func (p CreateParams) Record() *PasteRecord {
	return &PasteRecord{
		ID:          p.ID,
		Content:     p.Content,
		TTLSeconds:  p.TTLSeconds,
		MaxViews:    p.MaxViews,
		CreatedAtMs: p.NowMs,
		ViewsUsed:   0,
	}
}

type Status int

const (
	StatusMissing Status = iota
	StatusExpired
	StatusExhausted
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusExpired:
		return "expired"
	case StatusExhausted:
		return "exhausted"
	case StatusOK:
		return "ok"
	}
	return "unknown"
}

// Evaluate decides the outcome of a consume attempt before any mutation.
// A nil record is missing. Expiry is checked before exhaustion, and the
// expiry instant itself is already unavailable.
func Evaluate(r *PasteRecord, nowMs int64) Status {
	if r == nil {
		return StatusMissing
	}
	if exp, ok := r.ExpiresAtMs(); ok && nowMs >= exp {
		return StatusExpired
	}
	if r.MaxViews != nil && r.ViewsUsed >= *r.MaxViews {
		return StatusExhausted
	}
	return StatusOK
}

// Outcome is the result of a consume attempt. Content, RemainingViews and
// ExpiresAtMs are only meaningful when Status is StatusOK; nil pointers mean
// unlimited views and no expiry.
type Outcome struct {
	Status         Status
	Content        string
	RemainingViews *int64
	ExpiresAtMs    *int64
}

func Missing() Outcome   { return Outcome{Status: StatusMissing} }
func Expired() Outcome   { return Outcome{Status: StatusExpired} }
func Exhausted() Outcome { return Outcome{Status: StatusExhausted} }

// Consumed is the ok outcome for a record whose ViewsUsed already includes the
// view being consumed.
func Consumed(r *PasteRecord) Outcome {
	o := Outcome{
		Status:         StatusOK,
		Content:        r.Content,
		RemainingViews: r.RemainingViews(),
	}
	if exp, ok := r.ExpiresAtMs(); ok {
		o.ExpiresAtMs = &exp
	}
	return o
}

func (o Outcome) OK() bool { return o.Status == StatusOK }

// Err maps a non-ok outcome to its sentinel. It returns nil for ok.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusOK:
		return nil
	case StatusExpired:
		return ErrPasteExpired
	case StatusExhausted:
		return ErrPasteExhausted
	}
	return ErrPasteNotFound
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func (o Outcome) ExpiresAt() *time.Time {
	if o.ExpiresAtMs == nil {
		return nil
	}
	t := time.UnixMilli(*o.ExpiresAtMs).UTC()
	return &t
}

// ExpiresAtISO formats the expiry as UTC with millisecond precision, e.g.
// 1970-01-01T00:00:10.000Z. It returns nil when the paste never expires.
func (o Outcome) ExpiresAtISO() *string {
	t := o.ExpiresAt()
	if t == nil {
		return nil
	}
	s := t.Format(isoMillis)
	return &s
}
