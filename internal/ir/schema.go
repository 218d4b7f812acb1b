package ir

import (
	"fmt"
	"slices"
)

// FieldKind describes the value domain of a schema field.
type FieldKind string

const (
	KindInt     FieldKind = "int"
	KindDecimal FieldKind = "decimal"
	KindString  FieldKind = "string"
	KindEnum    FieldKind = "enum"
)

// Field is one column of a fact schema.
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
	// Values lists the allowed values of an enum field.
	Values []string `json:"values,omitempty"`
}

// Schema describes a fact type to the network builder.
//
// Identity returns the natural key of a fact and true, or false when the
// fact store must assign one. Sample returns a representative fact used to
// probe key functions when a constraint is built.
type Schema struct {
	Type     FactType
	Name     string
	Fields   []Field
	Identity func(Fact) (int64, bool)
	Sample   func() Fact
}

// Registry is the table of registered fact schemas.
type Registry struct {
	schemas map[FactType]Schema
	order   []FactType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[FactType]Schema)}
}

// Register adds a schema. Registering a type twice is an error.
func (r *Registry) Register(s Schema) error {
	if s.Type == TypeUnknown {
		return fmt.Errorf("register schema %q: unknown fact type", s.Name)
	}
	if _, exists := r.schemas[s.Type]; exists {
		return fmt.Errorf("register schema %q: type %s already registered", s.Name, s.Type)
	}
	if s.Identity == nil || s.Sample == nil {
		return fmt.Errorf("register schema %q: identity and sample functions are required", s.Name)
	}
	r.schemas[s.Type] = s
	r.order = append(r.order, s.Type)
	return nil
}

// Lookup returns the schema for t.
func (r *Registry) Lookup(t FactType) (Schema, bool) {
	s, ok := r.schemas[t]
	return s, ok
}

// Has reports whether t is registered.
func (r *Registry) Has(t FactType) bool {
	_, ok := r.schemas[t]
	return ok
}

// Types returns registered types in registration order.
func (r *Registry) Types() []FactType {
	return slices.Clone(r.order)
}

// DefaultRegistry returns a registry holding Customer, Transaction and
// SecurityAlert.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Schema{CustomerSchema(), TransactionSchema(), SecurityAlertSchema()} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

func CustomerSchema() Schema {
	return Schema{
		Type: TypeCustomer,
		Name: "Customer",
		Fields: []Field{
			{Name: "id", Kind: KindInt},
			{Name: "risk_level", Kind: KindEnum, Values: []string{string(RiskLow), string(RiskMedium), string(RiskHigh)}},
			{Name: "status", Kind: KindEnum, Values: []string{string(StatusActive), string(StatusInactive)}},
		},
		Identity: func(f Fact) (int64, bool) { return f.(*Customer).ID, true },
		Sample: func() Fact {
			return &Customer{RiskLevel: RiskLow, Status: StatusActive}
		},
	}
}

func TransactionSchema() Schema {
	return Schema{
		Type: TypeTransaction,
		Name: "Transaction",
		Fields: []Field{
			{Name: "id", Kind: KindInt},
			{Name: "customer_id", Kind: KindInt},
			{Name: "amount", Kind: KindDecimal},
			{Name: "location", Kind: KindString},
		},
		Identity: func(f Fact) (int64, bool) { return f.(*Transaction).ID, true },
		Sample: func() Fact {
			return &Transaction{Location: "sample"}
		},
	}
}

func SecurityAlertSchema() Schema {
	return Schema{
		Type: TypeSecurityAlert,
		Name: "SecurityAlert",
		Fields: []Field{
			{Name: "location", Kind: KindString},
			{Name: "severity", Kind: KindInt},
		},
		Identity: func(Fact) (int64, bool) { return 0, false },
		Sample: func() Fact {
			return &SecurityAlert{Location: "sample", Severity: 1}
		},
	}
}
