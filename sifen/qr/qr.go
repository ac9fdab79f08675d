// Package qr builds the public verification link embedded in every printed
// document. Parameter order and the trailing cHashQR are fixed by the
// authority's validator: reordering or re-encoding a value invalidates the
// link even when the document itself is fine.
package qr

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "sifen.qr")

// Params carries everything the verification link encodes.
type Params struct {
	ControlCode string
	IssueTime   time.Time
	// ReceiverRUC holds the receiver's RUC digits; empty means an unnamed
	// receiver and is encoded as "0".
	ReceiverRUC string
	Total       decimal.Decimal
	TotalTax    decimal.Decimal
	ItemCount   int
	// DigestB64 is the base64 DigestValue text lifted from the signature.
	// The link carries the hex of those base64 CHARACTERS, not of the
	// decoded bytes; the validator compares against the former.
	DigestB64 string
	CSC       string
	IdCSC     string
}

const timeLayout = "2006-01-02T15:04:05"

// BuildVerificationURL assembles the link against the given base
// (Environment.QRBaseURL). cHashQR is SHA-256 over the full link text up to
// the cHashQR parameter plus the CSC secret, lowercase hex.
func BuildVerificationURL(base string, p Params) (string, error) {
	if p.ControlCode == "" {
		return "", errors.New("control code is required")
	}
	if p.DigestB64 == "" {
		return "", errors.New("signature digest is required")
	}
	if p.CSC == "" {
		return "", errors.New("CSC secret is required")
	}

	ruc := p.ReceiverRUC
	if ruc == "" {
		ruc = "0"
	}

	var b strings.Builder
	b.WriteString("nVersion=150")
	b.WriteString("&Id=" + p.ControlCode)
	b.WriteString("&dFeEmiDE=" + hexOfText(p.IssueTime.Format(timeLayout)))
	b.WriteString("&dRucRec=" + ruc)
	b.WriteString("&dTotGralOpe=" + integer(p.Total))
	b.WriteString("&dTotIVA=" + integer(p.TotalTax))
	b.WriteString("&cItems=" + strconv.Itoa(p.ItemCount))
	b.WriteString("&DigestValue=" + hexOfText(p.DigestB64))
	b.WriteString("&IdCSC=" + normalizeIdCSC(p.IdCSC))

	link := base + "?" + b.String()
	url := link + "&cHashQR=" + hashOf(link, p.CSC)
	logger.Debugf("verification link for %s: %d bytes", p.ControlCode, len(url))
	return url, nil
}

// VerifyHash recomputes cHashQR of a link against the CSC secret.
func VerifyHash(rawURL, csc string) bool {
	if strings.IndexByte(rawURL, '?') < 0 {
		return false
	}
	cut := strings.LastIndex(rawURL, "&cHashQR=")
	if cut < 0 {
		return false
	}
	return hashOf(rawURL[:cut], csc) == rawURL[cut+len("&cHashQR="):]
}

// ExtractParams splits the query into its key/value pairs, preserving order.
func ExtractParams(rawURL string) (map[string]string, error) {
	idx := strings.IndexByte(rawURL, '?')
	if idx < 0 {
		return nil, errors.New("no query string in URL")
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(rawURL[idx+1:], "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return nil, errors.Errorf("malformed parameter %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

func hashOf(link, csc string) string {
	sum := sha256.Sum256([]byte(link + csc))
	return hex.EncodeToString(sum[:])
}

func hexOfText(s string) string {
	return hex.EncodeToString([]byte(s))
}

// integer renders a money amount as a whole number, half up.
func integer(d decimal.Decimal) string {
	return d.Round(0).String()
}

// normalizeIdCSC drops leading zeros; the validator compares against the
// bare numeric form.
func normalizeIdCSC(id string) string {
	id = strings.TrimLeft(id, "0")
	if id == "" {
		return "1"
	}
	return id
}
