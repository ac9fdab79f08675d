// Package png renders the printed QR code for a signed document's
// verification link.
package png

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/skip2/go-qrcode"

	"github.com/sistemia/go-sifen/sifen/sign"
)

func Qr(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, 300)
}

// Payload renders the verification link carried by a signed document.
func Payload(p *sign.SignedPayload) ([]byte, error) {
	if p.QRURL == "" {
		return nil, errors.New("payload has no verification link")
	}
	return Qr(p.QRURL)
}

// WriteFile renders the QR straight to disk for print pipelines.
func WriteFile(path string, p *sign.SignedPayload) error {
	img, err := Payload(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}
