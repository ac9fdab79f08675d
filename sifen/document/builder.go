package document

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/cdc"
)

var logger = logrus.WithField("component", "sifen.document")

// Snapshot is the caller's view of one transaction. The builder validates it
// as a whole and reports every problem at once; it never fails on the first.
type Snapshot struct {
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

	// Declared totals from the source system. Reconciled against the item
	// lines; a mismatch is an error, not something to silently fix.
	TotalExempt decimal.Decimal
	TotalTax5   decimal.Decimal
	TotalTax10  decimal.Decimal
	Total       decimal.Decimal

	// SecurityCode pins the CDC security code; leave empty for a random one.
	SecurityCode string
}

// Build validates the snapshot, reconciles totals and assembles the Document
// with its control code. On validation failure it returns a
// *sifen.ValidationError listing every error and warning found.
func Build(snap Snapshot) (*Document, error) {
	v := &sifen.ValidationError{}

	validateHeader(snap, v)
	validateReceiver(snap.Receiver, v)
	validateItems(snap.Items, v)
	validateReference(snap, v)
	reconcileTotals(snap, v)

	if v.HasErrors() {
		return nil, v
	}
	for _, w := range v.Warnings {
		logger.Warnf("document %s-%s-%s: %s",
			snap.Emitter.Establishment, snap.Emitter.PointOfSale, snap.Sequence, w)
	}

	doc := &Document{
		Type:         snap.Type,
		Emitter:      snap.Emitter,
		Sequence:     snap.Sequence,
		IssueTime:    snap.IssueTime,
		Currency:     currencyOrDefault(snap.Currency),
		EmissionMode: emissionModeOrDefault(snap.EmissionMode),
		Receiver:     snap.Receiver,
		Items:        snap.Items,
		Payments:     snap.Payments,
		Reference:    snap.Reference,
		TotalExempt:  snap.TotalExempt,
		TotalTax5:    snap.TotalTax5,
		TotalTax10:   snap.TotalTax10,
		Total:        snap.Total,
	}

	code, err := cdc.Build(cdc.Fields{
		DocType:          doc.Type,
		EmitterRUC:       doc.Emitter.RUC,
		EmitterRUCDigit:  doc.Emitter.RUCDigit,
		Establishment:    doc.Emitter.Establishment,
		PointOfSale:      doc.Emitter.PointOfSale,
		Sequence:         doc.Sequence,
		ReceiverCategory: doc.ReceiverCategory(),
		IssueDate:        doc.IssueTime,
		EmissionMode:     doc.EmissionMode,
		SecurityCode:     snap.SecurityCode,
	})
	if err != nil {
		return nil, err
	}
	doc.ControlCode = code
	info, err := cdc.Parse(code)
	if err != nil {
		return nil, err
	}
	doc.SecurityCode = info.SecurityCode

	logger.Debugf("built document %s CDC %s", doc.Type, cdc.Format(code))
	return doc, nil
}

func validateHeader(snap Snapshot, v *sifen.ValidationError) {
	switch snap.Type {
	case TypeInvoice, TypeCreditNote:
	case "":
		v.Errors = append(v.Errors, "document type is required")
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("unsupported document type %q", snap.Type))
	}
	if cdc.DigitsOnly(snap.Emitter.RUC) == "" {
		v.Errors = append(v.Errors, "emitter RUC is required")
	}
	if cdc.DigitsOnly(snap.Emitter.RUCDigit) == "" {
		v.Errors = append(v.Errors, "emitter RUC check digit is required")
	}
	if snap.Emitter.Name == "" {
		v.Errors = append(v.Errors, "emitter name is required")
	}
	if snap.Emitter.StampNumber == "" {
		v.Errors = append(v.Errors, "stamp number (timbrado) is required")
	}
	if cdc.DigitsOnly(snap.Sequence) == "" {
		v.Errors = append(v.Errors, "document sequence number is required")
	}
	if snap.IssueTime.IsZero() {
		v.Errors = append(v.Errors, "issue timestamp is required")
	}
	if snap.Emitter.Address == "" {
		v.Warnings = append(v.Warnings, "emitter address is empty")
	}
}

func validateReceiver(r Receiver, v *sifen.ValidationError) {
	switch r.Kind {
	case ReceiverRUC:
		if cdc.DigitsOnly(r.RUC) == "" {
			v.Errors = append(v.Errors, "receiver RUC is required for a RUC receiver")
		}
		if cdc.DigitsOnly(r.RUCDigit) == "" {
			v.Errors = append(v.Errors, "receiver RUC check digit is required for a RUC receiver")
		}
		if r.Name == "" {
			v.Errors = append(v.Errors, "receiver name is required for a RUC receiver")
		}
	case ReceiverNaturalID:
		if r.DocumentID == "" {
			v.Errors = append(v.Errors, "receiver document number is required for a natural-person receiver")
		}
		if r.Name == "" {
			v.Errors = append(v.Errors, "receiver name is required for a natural-person receiver")
		}
	case ReceiverAnonymous:
		// identity is fixed to type 5 / number 0 at serialization time
	default:
		v.Errors = append(v.Errors, fmt.Sprintf("unknown receiver kind %d", r.Kind))
	}
}

func validateItems(items []LineItem, v *sifen.ValidationError) {
	if len(items) == 0 {
		v.Errors = append(v.Errors, "document has no line items")
		return
	}
	for i, li := range items {
		n := i + 1
		if li.Description == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: description is required", n))
		}
		if li.Quantity.Sign() <= 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: quantity must be positive", n))
		}
		if li.UnitPrice.Sign() < 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: unit price must not be negative", n))
		}
		if li.Tax == TaxUnresolved {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: tax category not assigned", n))
		}
		if li.Code == "" {
			v.Warnings = append(v.Warnings, fmt.Sprintf("line %d: internal item code is empty", n))
		}
	}
}

func validateReference(snap Snapshot, v *sifen.ValidationError) {
	if snap.Type != TypeCreditNote {
		if snap.Reference != nil {
			v.Warnings = append(v.Warnings, "associated document reference ignored for a non credit note")
		}
		return
	}
	if snap.Reference == nil {
		v.Errors = append(v.Errors, "credit note requires the original invoice reference")
		return
	}
	if !cdc.Validate(snap.Reference.ControlCode) {
		v.Errors = append(v.Errors, "credit note reference is not a valid control code")
	}
	if snap.Reference.ReasonCode == 0 {
		v.Errors = append(v.Errors, "credit note requires an emission reason code")
	}
}

// reconcileTotals recomputes exempt/5%/10% sums from the lines and compares
// them with the declared totals. Declared values win the XML; a disagreement
// blocks the build.
func reconcileTotals(snap Snapshot, v *sifen.ValidationError) {
	var exempt, tax5, tax10, grand decimal.Decimal
	for _, li := range snap.Items {
		sub := li.Subtotal()
		grand = grand.Add(sub)
		switch li.Tax {
		case TaxExempt:
			exempt = exempt.Add(sub)
		case TaxRate5:
			tax5 = tax5.Add(li.TaxAmount())
		case TaxRate10:
			tax10 = tax10.Add(li.TaxAmount())
		}
	}

	check := func(name string, declared, computed decimal.Decimal) {
		if !declared.Equal(computed) {
			v.Errors = append(v.Errors, fmt.Sprintf(
				"%s mismatch: declared %s, computed %s", name, declared, computed))
		}
	}
	check("exempt total", snap.TotalExempt, exempt)
	check("5% tax total", snap.TotalTax5, tax5)
	check("10% tax total", snap.TotalTax10, tax10)
	check("grand total", snap.Total, grand)

	if len(snap.Payments) > 0 {
		var paid decimal.Decimal
		for _, p := range snap.Payments {
			paid = paid.Add(p.Amount)
		}
		if !paid.Equal(snap.Total) {
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"payment breakdown %s does not cover grand total %s", paid, snap.Total))
		}
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "PYG"
	}
	return c
}

func emissionModeOrDefault(m string) string {
	if m == "" {
		return "1"
	}
	return m
}
