package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/sign"
)

const okResponse = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body>` +
	`<ns2:rRetEnviDe xmlns:ns2="http://ekuatia.set.gov.py/sifen/xsd">` +
	`<ns2:rProtDe><ns2:dCodRes>0260</ns2:dCodRes><ns2:dMsgRes>Autorizado el DE</ns2:dMsgRes></ns2:rProtDe>` +
	`</ns2:rRetEnviDe></env:Body></env:Envelope>`

func testCredential(t *testing.T) *sign.Credential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Sistemia S.A."},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &sign.Credential{Certificate: cert, Key: key}
}

func testClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(testCredential(t), sifen.TLSAcceptAll, timeout)
	require.NoError(t, err)
	return c
}

func TestCall_SubmitHeadersAndResponse(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	resp, err := testClient(t, time.Second).Call(context.Background(), srv.URL, []byte("<env/>"), Submit)
	require.NoError(t, err)

	assert.Equal(t, "text/xml; charset=utf-8", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "Java/1.8.0_341", gotHeaders.Get("User-Agent"))
	_, hasAction := gotHeaders["Soapaction"]
	assert.True(t, hasAction)

	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Equal(t, "0260", resp.Field("dCodRes").Value())
	assert.Equal(t, "Autorizado el DE", resp.Field("dMsgRes").Value())
}

func TestCall_QueryHasNoSOAPAction(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	_, err := testClient(t, time.Second).Call(context.Background(), srv.URL, []byte("<env/>"), Query)
	require.NoError(t, err)
	_, hasAction := gotHeaders["Soapaction"]
	assert.False(t, hasAction)
}

func TestCall_SubmitTimeoutIsAmbiguous(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := testClient(t, 50*time.Millisecond).Call(context.Background(), srv.URL, []byte("<env/>"), Submit)
	var amb *sifen.AmbiguousOutcome
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, srv.URL, amb.URL)
}

func TestCall_QueryTimeoutIsPlainTransportError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := testClient(t, 50*time.Millisecond).Call(context.Background(), srv.URL, []byte("<env/>"), Query)
	var terr *sifen.TransportError
	require.ErrorAs(t, err, &terr)
	var amb *sifen.AmbiguousOutcome
	assert.False(t, errors.As(err, &amb))
}

func TestCall_ConnectionRefused(t *testing.T) {
	_, err := testClient(t, time.Second).Call(context.Background(), "https://127.0.0.1:1", []byte("<env/>"), Submit)
	var terr *sifen.TransportError
	assert.ErrorAs(t, err, &terr)
}

func TestNewClient_RequiresCredential(t *testing.T) {
	_, err := NewClient(nil, sifen.TLSVerify, time.Second)
	assert.ErrorIs(t, err, sifen.ErrNoCredential)
}
