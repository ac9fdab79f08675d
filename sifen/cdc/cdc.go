// Package cdc computes and validates the 44-digit control code (CDC) that
// names an electronic tax document, plus the RUC check digit that shares the
// same weighted mod-11 core.
package cdc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// CDC layout, 44 digits total:
//
//	2  document type
//	8  emitter RUC
//	1  RUC check digit
//	3  establishment
//	3  point of sale
//	7  sequence number
//	1  receiver category
//	8  issue date YYYYMMDD
//	1  emission mode
//	9  security code
//	1  check digit

const Length = 44

// Fields is everything needed to assemble a CDC. SecurityCode may be empty,
// in which case a random 9-digit code is generated.
type Fields struct {
	DocType          string
	EmitterRUC       string
	EmitterRUCDigit  string
	Establishment    string
	PointOfSale      string
	Sequence         string
	ReceiverCategory string
	IssueDate        time.Time
	EmissionMode     string
	SecurityCode     string
}

// ComputeCheckDigit runs the weighted mod-11 rule over a digit string:
// weights cycle 2..9 starting from the rightmost digit, dv = 11 - sum%11,
// and 10 or 11 collapse to 0. The authority recomputes this exact rule and
// rejects mismatches, so it must not be "improved".
func ComputeCheckDigit(digits string) (byte, error) {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, errors.Errorf("non-digit %q at position %d", c, i)
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv >= 10 {
		dv = 0
	}
	return byte('0' + dv), nil
}

// RUCCheckDigit applies the same mod-11 core over the RUC digits alone.
func RUCCheckDigit(ruc string) (byte, error) {
	digits := DigitsOnly(ruc)
	if digits == "" {
		return 0, errors.New("RUC has no digits")
	}
	if len(digits) > 16 {
		return 0, errors.Errorf("RUC longer than 16 digits: %d", len(digits))
	}
	return ComputeCheckDigit(digits)
}

// Build assembles the 44-digit CDC from the fields. Each field is reduced to
// digits, left-padded with zeros, and on overflow keeps the RIGHTMOST digits:
// leading zeros are significant and overflow happens on the left.
func Build(f Fields) (string, error) {
	secCode := f.SecurityCode
	if strings.TrimSpace(secCode) == "" {
		var err error
		secCode, err = randomSecurityCode()
		if err != nil {
			return "", errors.Wrap(err, "generate security code")
		}
	}

	var b strings.Builder
	b.Grow(Length)
	b.WriteString(pack(f.DocType, 2))
	b.WriteString(pack(f.EmitterRUC, 8))
	b.WriteString(pack(f.EmitterRUCDigit, 1))
	b.WriteString(pack(f.Establishment, 3))
	b.WriteString(pack(f.PointOfSale, 3))
	b.WriteString(pack(f.Sequence, 7))
	b.WriteString(pack(f.ReceiverCategory, 1))
	b.WriteString(f.IssueDate.Format("20060102"))
	b.WriteString(pack(f.EmissionMode, 1))
	b.WriteString(pack(secCode, 9))

	head := b.String()
	if len(head) != Length-1 {
		return "", errors.Errorf("assembled %d digits, want %d", len(head), Length-1)
	}
	dv, err := ComputeCheckDigit(head)
	if err != nil {
		return "", err
	}
	return head + string(dv), nil
}

// Validate strips non-digits, checks length and recomputes the trailing
// check digit.
func Validate(code string) bool {
	digits := DigitsOnly(code)
	if len(digits) != Length {
		return false
	}
	dv, err := ComputeCheckDigit(digits[:Length-1])
	if err != nil {
		return false
	}
	return digits[Length-1] == dv
}

// Info is the positional breakdown of a CDC.
type Info struct {
	DocType          string
	EmitterRUC       string
	EmitterRUCDigit  string
	Establishment    string
	PointOfSale      string
	Sequence         string
	ReceiverCategory string
	IssueDate        string
	EmissionMode     string
	SecurityCode     string
	CheckDigit       string
}

func Parse(code string) (*Info, error) {
	digits := DigitsOnly(code)
	if len(digits) != Length {
		return nil, errors.Errorf("CDC must have %d digits, got %d", Length, len(digits))
	}
	return &Info{
		DocType:          digits[0:2],
		EmitterRUC:       digits[2:10],
		EmitterRUCDigit:  digits[10:11],
		Establishment:    digits[11:14],
		PointOfSale:      digits[14:17],
		Sequence:         digits[17:24],
		ReceiverCategory: digits[24:25],
		IssueDate:        digits[25:33],
		EmissionMode:     digits[33:34],
		SecurityCode:     digits[34:43],
		CheckDigit:       digits[43:44],
	}, nil
}

func (i *Info) ParseIssueDate() (time.Time, error) {
	return time.Parse("20060102", i.IssueDate)
}

// Format groups the CDC in blocks of 4 for display. Anything that is not a
// 44-digit code is returned unchanged.
func Format(code string) string {
	digits := DigitsOnly(code)
	if len(digits) != Length {
		return code
	}
	parts := make([]string, 0, Length/4)
	for i := 0; i < Length; i += 4 {
		parts = append(parts, digits[i:i+4])
	}
	return strings.Join(parts, " ")
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VisibleNumber formats establishment, point of sale and sequence as the
// printed document number, e.g. 001-002-0000611.
func VisibleNumber(establishment, pointOfSale, sequence string) string {
	return fmt.Sprintf("%s-%s-%s", pack(establishment, 3), pack(pointOfSale, 3), pack(sequence, 7))
}

func pack(value string, width int) string {
	digits := DigitsOnly(value)
	if digits == "" {
		return strings.Repeat("0", width)
	}
	if len(digits) > width {
		return digits[len(digits)-width:]
	}
	return strings.Repeat("0", width-len(digits)) + digits
}

func randomSecurityCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000_000
	return fmt.Sprintf("%09d", n), nil
}
