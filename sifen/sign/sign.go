package sign

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/cdc"
	"github.com/sistemia/go-sifen/sifen/document"
	"github.com/sistemia/go-sifen/sifen/qr"
)

var logger = logrus.WithField("component", "sifen.sign")

// SignedPayload is the immutable result of signing: the exact bytes that go
// on the wire, serialized once. Re-serializing signed XML is forbidden, any
// whitespace or attribute-order change breaks the digest.
type SignedPayload struct {
	XML         []byte
	ControlCode string
	// DigestB64 is the base64 DigestValue text of the enveloped reference.
	DigestB64 string
	QRURL     string
}

// Engine signs documents with one credential and stamps their QR link.
type Engine struct {
	credential *Credential
	csc        string
	idCSC      string
	qrBase     string
}

func NewEngine(cred *Credential, cfg *sifen.Config) (*Engine, error) {
	if cred == nil {
		return nil, sifen.ErrNoCredential
	}
	if cfg.CSC == "" {
		return nil, errors.New("config has no CSC secret for QR links")
	}
	return &Engine{
		credential: cred,
		csc:        cfg.CSC,
		idCSC:      cfg.IdCSC,
		qrBase:     cfg.Env.QRBaseURL(),
	}, nil
}

// Sign serializes the document, signs the DE element with an enveloped
// RSA-SHA256 signature over exclusive C14N, places the Signature after DE
// inside rDE, then fills dCarQR with the digest-bearing verification link.
// The QR carrier is outside the signed scope, so injection happens after
// signing and the tree is written out exactly once.
func (e *Engine) Sign(doc *document.Document) (*SignedPayload, error) {
	tree, err := document.BuildTree(doc)
	if err != nil {
		return nil, errors.Wrap(err, "serialize document")
	}
	root := tree.Root()
	de := root.FindElement("DE")
	if de == nil {
		return nil, errors.New("tree has no DE element")
	}

	sig, err := EnvelopedSignature(e.credential, de)
	if err != nil {
		return nil, errors.Wrap(err, "sign DE")
	}
	root.InsertChildAt(de.Index()+1, sig)

	digestEl := findDescendant(sig, "DigestValue")
	if digestEl == nil {
		return nil, errors.New("signature has no DigestValue")
	}
	digest := digestEl.Text()

	url, err := qr.BuildVerificationURL(e.qrBase, qr.Params{
		ControlCode: doc.ControlCode,
		IssueTime:   doc.IssueTime,
		ReceiverRUC: receiverRUC(doc),
		Total:       doc.Total,
		TotalTax:    doc.TotalTax(),
		ItemCount:   len(doc.Items),
		DigestB64:   digest,
		CSC:         e.csc,
		IdCSC:       e.idCSC,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build verification link")
	}
	carrier := root.FindElement("gCamFuFD/dCarQR")
	if carrier == nil {
		return nil, errors.New("tree has no dCarQR carrier")
	}
	carrier.SetText(url)

	xml, err := tree.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "write signed tree")
	}
	logger.Debugf("signed %s, %d bytes", doc.ControlCode, len(xml))
	return &SignedPayload{
		XML:         xml,
		ControlCode: doc.ControlCode,
		DigestB64:   digest,
		QRURL:       url,
	}, nil
}

// EnvelopedSignature computes an enveloped RSA-SHA256 signature over the
// element (exclusive C14N, reference by its Id attribute) and returns the
// detached Signature element for the caller to place. The input element is
// not modified.
func EnvelopedSignature(cred *Credential, el *etree.Element) (*etree.Element, error) {
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{cred.Certificate.Raw},
		PrivateKey:  cred.Key,
	}))
	ctx.Hash = crypto.SHA256
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	ctx.IdAttribute = "Id"

	signed, err := ctx.SignEnveloped(el)
	if err != nil {
		return nil, err
	}
	sig := signed.FindElement(dsig.DefaultPrefix + ":Signature")
	if sig == nil {
		return nil, errors.New("signing produced no Signature element")
	}
	signed.RemoveChild(sig)
	return sig, nil
}

// Verify checks the enveloped signature of a signed rDE against the given
// certificate. Intended for tests and received-document validation. On the
// wire the Signature travels as a sibling of DE; validation wants the
// enveloped form, so the signature is folded back under the signed element
// before checking the reference.
func Verify(signedXML []byte, cert *x509.Certificate) error {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(signedXML); err != nil {
		return errors.Wrap(err, "parse signed XML")
	}
	root := tree.Root()
	if root == nil {
		return errors.New("empty XML")
	}
	de := root.FindElement("DE")
	if de == nil {
		return errors.New("signed XML has no DE element")
	}
	sig := root.FindElement(dsig.DefaultPrefix + ":Signature")
	if sig == nil {
		return errors.New("signed XML has no Signature element")
	}
	root.RemoveChild(sig)
	de.AddChild(sig)

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	ctx.IdAttribute = "Id"
	if _, err := ctx.Validate(de); err != nil {
		return errors.Wrap(err, "signature validation")
	}
	return nil
}

func receiverRUC(doc *document.Document) string {
	if doc.Receiver.Kind == document.ReceiverRUC {
		return cdc.DigitsOnly(doc.Receiver.RUC)
	}
	return ""
}

func findDescendant(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findDescendant(child, tag); found != nil {
			return found
		}
	}
	return nil
}
