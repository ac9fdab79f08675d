package sign

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/document"
	"github.com/sistemia/go-sifen/sifen/qr"
)

func testCredential(t *testing.T) *Credential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Sistemia S.A."},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Credential{Certificate: cert, Key: key}
}

func testDocument(t *testing.T) *document.Document {
	t.Helper()
	doc, err := document.Build(document.Snapshot{
		Type: document.TypeInvoice,
		Emitter: document.Emitter{
			RUC:           "4952197",
			RUCDigit:      "0",
			Name:          "Sistemia S.A.",
			Address:       "Avda. Mcal. López 1234",
			Establishment: "1",
			PointOfSale:   "2",
			StampNumber:   "12558946",
		},
		Sequence:  "611",
		IssueTime: time.Date(2026, 1, 14, 10, 30, 0, 0, time.Local),
		Receiver: document.Receiver{
			Kind:     document.ReceiverRUC,
			RUC:      "80012345",
			RUCDigit: "9",
			Name:     "Cliente de Prueba S.R.L.",
		},
		Items: []document.LineItem{
			{Code: "A1", Description: "Servicio mensual", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(55000), Tax: document.TaxRate10},
			{Code: "A2", Description: "Soporte extendido", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(55000), Tax: document.TaxRate10},
		},
		TotalTax10: decimal.NewFromInt(10000),
		Total:      decimal.NewFromInt(110000),
	})
	require.NoError(t, err)
	return doc
}

func testEngine(t *testing.T, cred *Credential) *Engine {
	t.Helper()
	cfg, err := sifen.NewConfig(sifen.Test)
	require.NoError(t, err)
	cfg.CSC = "ABCD0000000000000000000000000000"
	cfg.IdCSC = "1"
	engine, err := NewEngine(cred, cfg)
	require.NoError(t, err)
	return engine
}

func TestSign_ProducesVerifiablePayload(t *testing.T) {
	cred := testCredential(t)
	doc := testDocument(t)

	payload, err := testEngine(t, cred).Sign(doc)
	require.NoError(t, err)

	assert.Equal(t, doc.ControlCode, payload.ControlCode)
	assert.NotEmpty(t, payload.DigestB64)
	require.NoError(t, Verify(payload.XML, cred.Certificate))
}

func TestSign_SignaturePlacedBetweenDEAndCarrier(t *testing.T) {
	cred := testCredential(t)
	payload, err := testEngine(t, cred).Sign(testDocument(t))
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(payload.XML))
	root := tree.Root()

	tags := make([]string, 0, 4)
	for _, el := range root.ChildElements() {
		tags = append(tags, el.Tag)
	}
	assert.Equal(t, []string{"dVerFor", "DE", "Signature", "gCamFuFD"}, tags)

	// the signature never lives inside the signed element
	assert.Nil(t, root.FindElement("DE/Signature"))
}

func TestSign_InjectsQRLinkWithSignatureDigest(t *testing.T) {
	cred := testCredential(t)
	payload, err := testEngine(t, cred).Sign(testDocument(t))
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(payload.XML))
	carrier := tree.Root().FindElement("gCamFuFD/dCarQR")
	require.NotNil(t, carrier)
	assert.NotEqual(t, document.QRPlaceholder, carrier.Text())
	assert.Equal(t, payload.QRURL, carrier.Text())
	assert.True(t, qr.VerifyHash(carrier.Text(), "ABCD0000000000000000000000000000"))

	params, err := qr.ExtractParams(carrier.Text())
	require.NoError(t, err)
	assert.Equal(t, payload.ControlCode, params["Id"])
}

func TestVerify_AcceptsSignatureNextToDE(t *testing.T) {
	cred := testCredential(t)
	payload, err := testEngine(t, cred).Sign(testDocument(t))
	require.NoError(t, err)

	// the wire layout keeps the signature outside the signed element
	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(payload.XML))
	require.Nil(t, tree.Root().FindElement("DE/Signature"))
	require.NotNil(t, tree.Root().FindElement("Signature"))

	require.NoError(t, Verify(payload.XML, cred.Certificate))
}

func TestVerify_RejectsUnsignedDocument(t *testing.T) {
	cred := testCredential(t)
	tree, err := document.BuildTree(testDocument(t))
	require.NoError(t, err)
	xml, err := tree.WriteToBytes()
	require.NoError(t, err)

	assert.Error(t, Verify(xml, cred.Certificate))
}

func TestVerify_FailsOnMutation(t *testing.T) {
	cred := testCredential(t)
	payload, err := testEngine(t, cred).Sign(testDocument(t))
	require.NoError(t, err)

	mutated := bytes.Replace(payload.XML, []byte("Servicio mensual"), []byte("Servicio  mensual"), 1)
	require.NotEqual(t, payload.XML, mutated)
	assert.Error(t, Verify(mutated, cred.Certificate))
}

func TestVerify_FailsWithForeignCertificate(t *testing.T) {
	cred := testCredential(t)
	other := testCredential(t)

	payload, err := testEngine(t, cred).Sign(testDocument(t))
	require.NoError(t, err)
	assert.Error(t, Verify(payload.XML, other.Certificate))
}

func TestNewEngine_RequiresCredentialAndSecret(t *testing.T) {
	cfg, err := sifen.NewConfig(sifen.Test)
	require.NoError(t, err)
	cfg.CSC = "x"

	_, err = NewEngine(nil, cfg)
	assert.ErrorIs(t, err, sifen.ErrNoCredential)

	cfg.CSC = ""
	_, err = NewEngine(testCredential(t), cfg)
	assert.Error(t, err)
}

func TestLoadCredential_EncryptedPKCS8(t *testing.T) {
	cred := testCredential(t)
	dir := t.TempDir()

	certPath := filepath.Join(dir, "cert.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cred.Certificate.Raw})
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))

	encDER, err := pkcs8.MarshalPrivateKey(cred.Key, []byte("hunter2"), nil)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "key.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encDER})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	loaded, err := LoadCredential(certPath, keyPath, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, cred.Certificate.SerialNumber, loaded.Certificate.SerialNumber)
	assert.Equal(t, 0, loaded.Key.N.Cmp(cred.Key.N))

	_, err = LoadCredential(certPath, keyPath, "wrong")
	var cerr *sifen.CredentialError
	assert.ErrorAs(t, err, &cerr)

	_, err = LoadCredential(certPath, keyPath, "")
	assert.ErrorAs(t, err, &cerr)
}

func TestCredentialFromPEM_PlainKeys(t *testing.T) {
	cred := testCredential(t)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cred.Certificate.Raw})

	pkcs8DER, err := x509.MarshalPKCS8PrivateKey(cred.Key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8DER})
	loaded, err := CredentialFromPEM(certPEM, keyPEM, "")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Key.N.Cmp(cred.Key.N))

	pkcs1PEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(cred.Key)})
	loaded, err = CredentialFromPEM(certPEM, pkcs1PEM, "")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Key.N.Cmp(cred.Key.N))
}

func TestCredentialFromPEM_Mismatch(t *testing.T) {
	a := testCredential(t)
	b := testCredential(t)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.Certificate.Raw})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(b.Key)})

	_, err := CredentialFromPEM(certPEM, keyPEM, "")
	var cerr *sifen.CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, strings.Contains(cerr.Reason, "mismatch"))
}
