/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry
  minor units and nanosecond timestamps; DTOs carry decimal strings in
  major units and RFC3339 times.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Every amount is rendered twice: "amount" as a decimal string in major
  units (1.5 USDC) and "minor_units" as the raw integer string (1500000).
  Requests accept decimal strings only.

DURATIONS:
  Billing and grace periods accept Go duration strings ("720h") or whole
  days ("30d").

SEE ALSO:
  - handlers.go: Uses these types
  - finance/coin.go: Decimal conversion
*/
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/lease-loan/finance"
	"github.com/warp/lease-loan/lease"
	"github.com/warp/lease-loan/loan"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// OpenLoanRequest is the request to open a loan.
type OpenLoanRequest struct {
	ID             string `json:"id,omitempty"`
	Currency       string `json:"currency"`
	Principal      string `json:"principal"`
	AnnualInterest string `json:"annual_interest"` // percent, e.g. "12.5"
	MarginInterest string `json:"margin_interest"`
	BillingPeriod  string `json:"billing_period"`
	GracePeriod    string `json:"grace_period,omitempty"`
	Start          string `json:"start,omitempty"` // RFC3339
}

// RepayRequest is the request to repay a loan.
type RepayRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	At             string `json:"at,omitempty"` // RFC3339
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CoinDTO is an amount in one currency.
type CoinDTO struct {
	Amount     string `json:"amount"`
	MinorUnits string `json:"minor_units"`
	Currency   string `json:"currency"`
}

// LoanDTO represents a loan record.
type LoanDTO struct {
	ID              string  `json:"id"`
	Currency        string  `json:"currency"`
	Principal       CoinDTO `json:"principal"`
	PrincipalDue    CoinDTO `json:"principal_due"`
	AnnualInterest  string  `json:"annual_interest"`
	MarginInterest  string  `json:"margin_interest"`
	BillingPeriod   string  `json:"billing_period"`
	GracePeriod     string  `json:"grace_period"`
	DuePeriodStart  string  `json:"due_period_start"`
	DuePeriodLength string  `json:"due_period_length"`
	InterestPaidBy  string  `json:"interest_paid_by"`
	OpenedAt        string  `json:"opened_at"`
	ClosedAt        *string `json:"closed_at,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

// OverdueDTO is either accrued overdue amounts or the time until they start.
type OverdueDTO struct {
	Accrued  bool     `json:"accrued"`
	Interest *CoinDTO `json:"interest,omitempty"`
	Margin   *CoinDTO `json:"margin,omitempty"`
	StartsIn string   `json:"starts_in,omitempty"`
}

// StateDTO is a loan state snapshot.
type StateDTO struct {
	LoanID               string     `json:"loan_id"`
	At                   string     `json:"at"`
	AnnualInterest       string     `json:"annual_interest"`
	AnnualMarginInterest string     `json:"annual_margin_interest"`
	PrincipalDue         CoinDTO    `json:"principal_due"`
	DueInterest          CoinDTO    `json:"due_interest"`
	DueMarginInterest    CoinDTO    `json:"due_margin_interest"`
	Overdue              OverdueDTO `json:"overdue"`
	TotalDue             CoinDTO    `json:"total_due"`
}

// RepaymentDTO is an applied repayment and its allocation.
type RepaymentDTO struct {
	ID              string  `json:"id"`
	LoanID          string  `json:"loan_id"`
	IdempotencyKey  string  `json:"idempotency_key"`
	PaidAt          string  `json:"paid_at"`
	Payment         CoinDTO `json:"payment"`
	OverdueInterest CoinDTO `json:"overdue_interest"`
	OverdueMargin   CoinDTO `json:"overdue_margin"`
	DueInterest     CoinDTO `json:"due_interest"`
	DueMargin       CoinDTO `json:"due_margin"`
	Principal       CoinDTO `json:"principal"`
	Change          CoinDTO `json:"change"`
	Closed          bool    `json:"closed"`
}

// GracePeriodDTO reports the current and the next grace period end.
type GracePeriodDTO struct {
	LoanID  string `json:"loan_id"`
	Current string `json:"current"`
	Next    string `json:"next"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCoinDTO(c finance.Coin) CoinDTO {
	return CoinDTO{
		Amount:     c.Decimal().String(),
		MinorUnits: strconv.FormatUint(c.Amount, 10),
		Currency:   c.Currency.String(),
	}
}

func formatTime(t finance.Timestamp) string {
	return t.Time().Format(time.RFC3339)
}

func toLoanDTO(r lease.Record) LoanDTO {
	dto := LoanDTO{
		ID:              string(r.ID),
		Currency:        r.Currency.String(),
		Principal:       toCoinDTO(r.Principal),
		PrincipalDue:    toCoinDTO(r.Position.PrincipalDue),
		AnnualInterest:  r.Position.AnnualInterest.String(),
		MarginInterest:  r.MarginRate.String(),
		BillingPeriod:   r.Spec.BillingPeriod.String(),
		GracePeriod:     r.Spec.GracePeriod.String(),
		DuePeriodStart:  formatTime(r.DuePeriodStart),
		DuePeriodLength: r.DuePeriodLength.String(),
		InterestPaidBy:  formatTime(r.Position.InterestPaidBy),
		OpenedAt:        formatTime(r.OpenedAt),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ClosedAt != nil {
		closed := formatTime(*r.ClosedAt)
		dto.ClosedAt = &closed
	}
	return dto
}

func toLoanDTOs(records []lease.Record) []LoanDTO {
	dtos := make([]LoanDTO, len(records))
	for i, r := range records {
		dtos[i] = toLoanDTO(r)
	}
	return dtos
}

func toOverdueDTO(o loan.Overdue) OverdueDTO {
	if !o.IsAccrued() {
		return OverdueDTO{StartsIn: o.StartIn().String()}
	}
	interest, margin := toCoinDTO(o.Interest()), toCoinDTO(o.Margin())
	return OverdueDTO{Accrued: true, Interest: &interest, Margin: &margin}
}

func toStateDTO(id lease.LoanID, at time.Time, s loan.State) StateDTO {
	return StateDTO{
		LoanID:               string(id),
		At:                   at.UTC().Format(time.RFC3339),
		AnnualInterest:       s.AnnualInterest.String(),
		AnnualMarginInterest: s.AnnualMarginInterest.String(),
		PrincipalDue:         toCoinDTO(s.PrincipalDue),
		DueInterest:          toCoinDTO(s.DueInterest),
		DueMarginInterest:    toCoinDTO(s.DueMarginInterest),
		Overdue:              toOverdueDTO(s.Overdue),
		TotalDue:             toCoinDTO(s.TotalDue()),
	}
}

func toRepaymentDTO(r lease.Repayment) RepaymentDTO {
	return RepaymentDTO{
		ID:              r.ID,
		LoanID:          string(r.LoanID),
		IdempotencyKey:  r.IdempotencyKey,
		PaidAt:          formatTime(r.PaidAt),
		Payment:         toCoinDTO(r.Payment),
		OverdueInterest: toCoinDTO(r.OverdueInterest),
		OverdueMargin:   toCoinDTO(r.OverdueMargin),
		DueInterest:     toCoinDTO(r.DueInterest),
		DueMargin:       toCoinDTO(r.DueMargin),
		Principal:       toCoinDTO(r.Principal),
		Change:          toCoinDTO(r.Change),
		Closed:          r.Closed,
	}
}

func toRepaymentDTOs(rs []lease.Repayment) []RepaymentDTO {
	dtos := make([]RepaymentDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRepaymentDTO(r)
	}
	return dtos
}

// =============================================================================
// PARSING
// =============================================================================

// maxDays keeps day counts within a nanosecond Duration.
const maxDays = uint64(^uint64(0) / uint64(finance.Day))

// parseDuration accepts Go duration strings and whole days ("30d").
func parseDuration(field, s string) (finance.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseUint(days, 10, 32)
		if err != nil || n > maxDays {
			return 0, &lease.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a whole number of days", s)}
		}
		return finance.FromDays(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, &lease.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a duration", s)}
	}
	return finance.FromStd(d), nil
}

// parseTime parses an optional RFC3339 time. Empty means zero.
func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &lease.ValidationError{Field: field, Message: "use RFC3339"}
	}
	if t.Before(time.Unix(0, 0)) {
		return time.Time{}, &lease.ValidationError{Field: field, Message: "before 1970"}
	}
	return t, nil
}

func (r OpenLoanRequest) toDomain() (lease.OpenRequest, error) {
	principal, err := finance.ParseCoin(r.Principal, r.Currency)
	if err != nil {
		return lease.OpenRequest{}, err
	}
	annual, err := finance.ParsePercent(r.AnnualInterest)
	if err != nil {
		return lease.OpenRequest{}, fmt.Errorf("annual_interest: %w", err)
	}
	margin, err := finance.ParsePercent(r.MarginInterest)
	if err != nil {
		return lease.OpenRequest{}, fmt.Errorf("margin_interest: %w", err)
	}
	billing, err := parseDuration("billing_period", r.BillingPeriod)
	if err != nil {
		return lease.OpenRequest{}, err
	}
	grace, err := parseDuration("grace_period", r.GracePeriod)
	if err != nil {
		return lease.OpenRequest{}, err
	}
	start, err := parseTime("start", r.Start)
	if err != nil {
		return lease.OpenRequest{}, err
	}
	return lease.OpenRequest{
		ID:             lease.LoanID(r.ID),
		Principal:      principal,
		AnnualInterest: annual,
		MarginInterest: margin,
		Spec:           loan.NewPaymentSpec(billing, grace),
		At:             start,
	}, nil
}

func (r RepayRequest) toDomain(id lease.LoanID) (lease.RepayRequest, error) {
	amount, err := finance.ParseCoin(r.Amount, r.Currency)
	if err != nil {
		return lease.RepayRequest{}, err
	}
	at, err := parseTime("at", r.At)
	if err != nil {
		return lease.RepayRequest{}, err
	}
	return lease.RepayRequest{
		LoanID:         id,
		Amount:         amount,
		At:             at,
		IdempotencyKey: r.IdempotencyKey,
	}, nil
}
