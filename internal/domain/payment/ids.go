package payment

import "strings"

// LoanRef is a loan identity as it appears on the wire: listing payloads carry
// loanId while confirm responses and older endpoints carry _id.
type LoanRef struct {
	LoanID string `json:"loanId,omitempty"`
	ID     string `json:"_id,omitempty"`
}

// PaymentRef is a payment identity, paymentId preferred over _id.
type PaymentRef struct {
	PaymentID string `json:"paymentId,omitempty"`
	ID        string `json:"_id,omitempty"`
}

// ResolveID returns the first non-blank candidate.
func ResolveID(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return v, true
		}
	}
	return "", false
}

func (r LoanRef) Resolve() (string, bool) {
	return ResolveID(r.LoanID, r.ID)
}

func (r PaymentRef) Resolve() (string, bool) {
	return ResolveID(r.PaymentID, r.ID)
}

// SameLoan reports whether any populated field of a equals any populated field of b.
func SameLoan(a, b LoanRef) bool {
	return anyMatch([]string{a.LoanID, a.ID}, []string{b.LoanID, b.ID})
}

func SamePayment(a, b PaymentRef) bool {
	return anyMatch([]string{a.PaymentID, a.ID}, []string{b.PaymentID, b.ID})
}

func anyMatch(left, right []string) bool {
	for _, l := range left {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		for _, r := range right {
			if l == strings.TrimSpace(r) {
				return true
			}
		}
	}
	return false
}
