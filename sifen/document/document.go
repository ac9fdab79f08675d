// Package document builds the canonical in-memory model of an electronic
// tax document (DE) from a transaction snapshot and serializes it to the
// rDE XML that gets signed.
package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document type codes from the authority catalog.
const (
	TypeInvoice    = "01"
	TypeCreditNote = "05"
)

// Tax categories for a line item.
type TaxCategory int

const (
	TaxUnresolved TaxCategory = iota // not assigned yet; blocks building
	TaxExempt
	TaxRate5
	TaxRate10
)

func (c TaxCategory) Rate() decimal.Decimal {
	switch c {
	case TaxRate5:
		return decimal.NewFromInt(5)
	case TaxRate10:
		return decimal.NewFromInt(10)
	default:
		return decimal.Zero
	}
}

// ReceiverKind distinguishes how the buyer is identified.
type ReceiverKind int

const (
	// ReceiverRUC is a registered taxpayer identified by RUC + check digit.
	ReceiverRUC ReceiverKind = iota
	// ReceiverNaturalID is a natural person identified by a document number.
	ReceiverNaturalID
	// ReceiverAnonymous is the unnamed consumer: identity type 5, number 0.
	ReceiverAnonymous
)

type Receiver struct {
	Kind       ReceiverKind
	RUC        string
	RUCDigit   string
	DocumentID string
	Name       string
}

type LineItem struct {
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Tax         TaxCategory
}

// Subtotal is quantity x unit price for the line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// TaxAmount extracts the VAT included in the line subtotal
// (price is tax-inclusive: base = subtotal * 100 / (100 + rate)).
func (li LineItem) TaxAmount() decimal.Decimal {
	rate := li.Tax.Rate()
	if rate.IsZero() {
		return decimal.Zero
	}
	sub := li.Subtotal()
	base := sub.Mul(decimal.NewFromInt(100)).Div(rate.Add(decimal.NewFromInt(100)))
	return sub.Sub(base).Round(0)
}

// PaymentMean is one entry of the payment breakdown.
type PaymentMean struct {
	TypeCode    string // authority catalog: 1 cash, 3 transfer, 2 cheque...
	Description string
	Amount      decimal.Decimal
	Currency    string
}

// Reference points a credit note at the invoice it corrects.
type Reference struct {
	ControlCode string // CDC of the original invoice
	ReasonCode  int    // iMotEmi catalog value
}

// Emitter identifies the issuing establishment.
type Emitter struct {
	RUC           string
	RUCDigit      string
	Name          string
	Address       string
	Establishment string
	PointOfSale   string
	StampNumber   string // timbrado
	StampBegin    time.Time
}

// Document is the canonical representation of one tax event. Once the
// document has been serialized for signing its byte content is immutable:
// corrections rebuild the whole Document, they never patch the signed bytes.
type Document struct {
	Type         string
	Emitter      Emitter
	Sequence     string
	IssueTime    time.Time
	Currency     string
	EmissionMode string
	Receiver     Receiver
	Items        []LineItem
	Payments     []PaymentMean
	Reference    *Reference

	// Totals are reconciled against the caller-supplied values, never
	// recomputed-and-overwritten.
	TotalExempt decimal.Decimal
	TotalTax5   decimal.Decimal
	TotalTax10  decimal.Decimal
	Total       decimal.Decimal

	ControlCode  string
	SecurityCode string
}

// TotalTax is the VAT sum embedded in the QR link.
func (d *Document) TotalTax() decimal.Decimal {
	return d.TotalTax5.Add(d.TotalTax10)
}

// ReceiverCategory maps the receiver to the 1-digit CDC field.
func (d *Document) ReceiverCategory() string {
	if d.Receiver.Kind == ReceiverRUC {
		return "2"
	}
	return "1"
}
