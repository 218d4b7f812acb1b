// Package testutil holds fact builders and deterministic stand-ins shared by
// tests.
package testutil

import "github.com/roach88/greynet/internal/ir"

// Customer builds a customer.
func Customer(id int64, risk ir.RiskLevel, status ir.Status) *ir.Customer {
	return &ir.Customer{ID: id, RiskLevel: risk, Status: status}
}

// Transaction builds a transaction; amount is a decimal string.
func Transaction(id, customerID int64, amount, location string) *ir.Transaction {
	return &ir.Transaction{ID: id, CustomerID: customerID, Amount: *ir.MustDecimal(amount), Location: location}
}

// Alert builds a security alert.
func Alert(location string, severity int64) *ir.SecurityAlert {
	return &ir.SecurityAlert{Location: location, Severity: severity}
}

// Transactions builds n transactions of customer with ids first..first+n-1.
func Transactions(first int64, n int, customer int64, amount, location string) []ir.Fact {
	out := make([]ir.Fact, n)
	for i := range n {
		out[i] = Transaction(first+int64(i), customer, amount, location)
	}
	return out
}
