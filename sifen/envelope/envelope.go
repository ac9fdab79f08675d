// Package envelope wraps signed documents and queries into the SOAP
// envelopes the authority's endpoints accept. Shells are merged from text
// templates around the raw signed bytes: signed XML is never re-parsed or
// re-serialized on its way into an envelope.
package envelope

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "sifen.envelope")

const (
	// SIFENNamespace qualifies every request body element.
	SIFENNamespace = "http://ekuatia.set.gov.py/sifen/xsd"
	SOAP12NS       = "http://www.w3.org/2003/05/soap-envelope"
	SOAP11NS       = "http://schemas.xmlsoap.org/soap/envelope/"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

// shell controls the SOAP wrapper shape. The zero value is not useful;
// defaultShell is the accepted production form.
type shell struct {
	Prefix      string
	NS          string
	Declaration bool
	Header      bool
}

var defaultShell = shell{Prefix: "env", NS: SOAP12NS, Declaration: true, Header: true}

func (s shell) wrap(body string) []byte {
	var b strings.Builder
	if s.Declaration {
		b.WriteString(xmlDeclaration)
	}
	fmt.Fprintf(&b, `<%s:Envelope xmlns:%s=%q>`, s.Prefix, s.Prefix, s.NS)
	if s.Header {
		fmt.Fprintf(&b, `<%s:Header/>`, s.Prefix)
	}
	fmt.Fprintf(&b, `<%s:Body>%s</%s:Body></%s:Envelope>`, s.Prefix, body, s.Prefix, s.Prefix)
	return []byte(b.String())
}

// NewDId builds the per-request message id: timestamp to the second plus two
// random digits, 16 digits total.
func NewDId(now time.Time) (string, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errors.Wrap(err, "random suffix")
	}
	n := binary.BigEndian.Uint16(buf[:]) % 100
	return now.Format("20060102150405") + fmt.Sprintf("%02d", n), nil
}

// Sync wraps one signed rDE for the synchronous receive endpoint. The signed
// bytes go inline into xDE with their XML declaration stripped; the rest of
// the payload is untouched.
func Sync(signedRDE []byte, dID string) []byte {
	return defaultShell.wrap(syncBody(signedRDE, dID, syncOptions{}))
}

type syncOptions struct {
	cdata          bool
	zipped         bool
	stripNamespace bool
}

func syncBody(signedRDE []byte, dID string, o syncOptions) string {
	content := stripDeclaration(string(signedRDE))
	if o.stripNamespace {
		content = strings.Replace(content, ` xmlns="`+SIFENNamespace+`"`, "", 1)
	}
	if o.zipped {
		if packed, err := compressZipB64([]byte(content)); err == nil {
			content = packed
		}
	}
	if o.cdata {
		content = "<![CDATA[" + content + "]]>"
	}
	return fmt.Sprintf(`<rEnviDe xmlns=%q><dId>%s</dId><xDE>%s</xDE></rEnviDe>`,
		SIFENNamespace, dID, content)
}

// QueryDE builds the consult-by-CDC request.
func QueryDE(dID, controlCode string) []byte {
	body := fmt.Sprintf(`<rEnviConsDeRequest xmlns=%q><dId>%s</dId><dCDC>%s</dCDC></rEnviConsDeRequest>`,
		SIFENNamespace, dID, controlCode)
	return defaultShell.wrap(body)
}

// QueryBatch builds the consult-batch request for a dProtConsLote id.
func QueryBatch(dID, batchID string) []byte {
	body := fmt.Sprintf(`<rEnviConsLoteDe xmlns=%q><dId>%s</dId><dProtConsLote>%s</dProtConsLote></rEnviConsLoteDe>`,
		SIFENNamespace, dID, batchID)
	return defaultShell.wrap(body)
}

// QueryRUC builds the taxpayer lookup request.
func QueryRUC(dID, ruc string) []byte {
	body := fmt.Sprintf(`<rEnviConsRUC xmlns=%q><dId>%s</dId><dRUCCons>%s</dRUCCons></rEnviConsRUC>`,
		SIFENNamespace, dID, ruc)
	return defaultShell.wrap(body)
}

func stripDeclaration(xml string) string {
	trimmed := strings.TrimLeft(xml, " \t\r\n")
	if strings.HasPrefix(trimmed, "<?xml") {
		if end := strings.Index(trimmed, "?>"); end >= 0 {
			return strings.TrimLeft(trimmed[end+2:], " \t\r\n")
		}
	}
	return trimmed
}
