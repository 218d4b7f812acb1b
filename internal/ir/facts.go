package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// FactType identifies one of the closed set of fact records.
type FactType uint8

const (
	TypeUnknown FactType = iota
	TypeCustomer
	TypeTransaction
	TypeSecurityAlert
)

// String returns the schema name of the fact type.
func (t FactType) String() string {
	switch t {
	case TypeCustomer:
		return "Customer"
	case TypeTransaction:
		return "Transaction"
	case TypeSecurityAlert:
		return "SecurityAlert"
	default:
		return fmt.Sprintf("FactType(%d)", uint8(t))
	}
}

// ParseFactType accepts schema names and their snake_case or plural forms.
func ParseFactType(s string) (FactType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "customers":
		return TypeCustomer, nil
	case "transaction", "transactions":
		return TypeTransaction, nil
	case "securityalert", "security_alert", "security_alerts", "alert", "alerts":
		return TypeSecurityAlert, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown fact type %q", s)
	}
}

// RiskLevel is a customer's risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Status is a customer's account status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Fact is the sealed interface implemented by every fact record.
// Facts are referenced by pointer and must not be mutated after ingestion.
type Fact interface {
	FactType() FactType
	isFact()
}

// Customer is an account holder.
type Customer struct {
	ID        int64     `json:"id" yaml:"id" validate:"gte=0"`
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level" validate:"oneof=low medium high"`
	Status    Status    `json:"status" yaml:"status" validate:"oneof=active inactive"`
}

func (*Customer) FactType() FactType { return TypeCustomer }
func (*Customer) isFact()            {}

// Transaction is a payment made by a customer at a location.
// CustomerID is not enforced to reference a live Customer.
type Transaction struct {
	ID         int64       `json:"id" yaml:"id" validate:"gte=0"`
	CustomerID int64       `json:"customer_id" yaml:"customer_id"`
	Amount     apd.Decimal `json:"amount" yaml:"-" validate:"decimal_nonneg"`
	Location   string      `json:"location" yaml:"location" validate:"required"`
}

func (*Transaction) FactType() FactType { return TypeTransaction }
func (*Transaction) isFact()            {}

// SecurityAlert flags a location. It has no natural identity; the fact store
// assigns a handle on insertion.
type SecurityAlert struct {
	Location string `json:"location" yaml:"location" validate:"required"`
	Severity int64  `json:"severity" yaml:"severity" validate:"min=1,max=5"`
}

func (*SecurityAlert) FactType() FactType { return TypeSecurityAlert }
func (*SecurityAlert) isFact()            {}

// FactID is the stable identity of a live fact.
type FactID struct {
	Type FactType `json:"type"`
	Key  int64    `json:"key"`
}

// String renders the id as Type#key, e.g. Customer#1.
func (id FactID) String() string {
	return id.Type.String() + "#" + strconv.FormatInt(id.Key, 10)
}

// ParseFactID parses the Type#key form produced by String.
func ParseFactID(s string) (FactID, error) {
	name, key, ok := strings.Cut(s, "#")
	if !ok {
		return FactID{}, fmt.Errorf("fact id %q: missing '#'", s)
	}
	t, err := ParseFactType(name)
	if err != nil {
		return FactID{}, fmt.Errorf("fact id %q: %w", s, err)
	}
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return FactID{}, fmt.Errorf("fact id %q: %w", s, err)
	}
	return FactID{Type: t, Key: n}, nil
}

// Clone returns a shallow copy of f that shares no mutable state with it.
func Clone(f Fact) Fact {
	switch v := f.(type) {
	case *Customer:
		c := *v
		return &c
	case *Transaction:
		t := Transaction{ID: v.ID, CustomerID: v.CustomerID, Location: v.Location}
		t.Amount.Set(&v.Amount)
		return &t
	case *SecurityAlert:
		a := *v
		return &a
	default:
		return f
	}
}
