package harvester

import (
	"errors"
	"time"
)

// validation errors
var (
	ErrRequesterRequired = errors.New("requester is required")
	ErrDateRequired      = errors.New("date or date_from/date_to is required")
	ErrInvalidDate       = errors.New("dates must be in YYYY-MM-DD format")
	ErrFutureDate        = errors.New("date range cannot end in the future")
	ErrInvertedRange     = errors.New("date_from must not be after date_to")
	ErrRangeTooWide      = errors.New("date range cannot span more than 30 days")
)

// maxRangeDays caps how many days one request may cover.
const maxRangeDays = 30

const dateLayout = "2006-01-02"

// HarvestRequest is a request to harvest one day or a date range.
type HarvestRequest struct {
	// Requester identifies who asked. One requester has at most one run
	// in flight at a time; different requesters do not block each other.
	Requester string `json:"requester"`

	// Account - label from the accounts file. Empty means all accounts.
	Account string `json:"account,omitempty"`

	// Date - single day to harvest (YYYY-MM-DD).
	// Ignored when DateFrom/DateTo are set.
	Date string `json:"date,omitempty"`

	// DateFrom/DateTo - inclusive range of days (YYYY-MM-DD).
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
}

// Validate performs basic validation of the request.
// Does not check that the account exists (that needs config access).
func (r *HarvestRequest) Validate() error {
	if r.Requester == "" {
		return ErrRequesterRequired
	}

	from, to, err := r.span()
	if err != nil {
		return err
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if to.After(today) {
		return ErrFutureDate
	}
	if from.After(to) {
		return ErrInvertedRange
	}
	if int(to.Sub(from).Hours()/24) >= maxRangeDays {
		return ErrRangeTooWide
	}

	return nil
}

// Dates returns the validated inclusive day range.
func (r *HarvestRequest) Dates() (from, to time.Time) {
	from, to, _ = r.span()
	return from, to
}

func (r *HarvestRequest) span() (time.Time, time.Time, error) {
	if r.DateFrom != "" || r.DateTo != "" {
		from, err := time.Parse(dateLayout, r.DateFrom)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDate
		}
		to, err := time.Parse(dateLayout, r.DateTo)
		if err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDate
		}
		return from, to, nil
	}

	if r.Date == "" {
		return time.Time{}, time.Time{}, ErrDateRequired
	}
	day, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	return day, day, nil
}
