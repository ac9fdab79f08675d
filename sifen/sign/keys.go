// Package sign produces the enveloped XML signature of an electronic
// document and stamps the verification QR link derived from its digest.
package sign

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/go-faster/errors"
	"github.com/youmark/pkcs8"

	"github.com/sistemia/go-sifen/sifen"
)

// Credential is the loaded signing material: one certificate and its RSA
// private key. The same pair authenticates the mutual-TLS transport.
type Credential struct {
	Certificate *x509.Certificate
	Key         *rsa.PrivateKey
}

// TLSCertificate adapts the credential for the HTTP client.
func (c *Credential) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.Certificate.Raw},
		PrivateKey:  c.Key,
		Leaf:        c.Certificate,
	}
}

// LoadCredential reads a PEM certificate and a PEM private key from disk.
// The key may be an encrypted PKCS#8 block (passphrase required), a plain
// PKCS#8 block or a PKCS#1 RSA block.
func LoadCredential(certPath, keyPath, passphrase string) (*Credential, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, &sifen.CredentialError{Reason: "read certificate file", Err: err}
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &sifen.CredentialError{Reason: "read key file", Err: err}
	}
	return CredentialFromPEM(certPEM, keyPEM, passphrase)
}

func CredentialFromPEM(certPEM, keyPEM []byte, passphrase string) (*Credential, error) {
	cert, err := parseCertificate(certPEM)
	if err != nil {
		return nil, &sifen.CredentialError{Reason: "parse certificate", Err: err}
	}
	key, err := parsePrivateKey(keyPEM, passphrase)
	if err != nil {
		return nil, &sifen.CredentialError{Reason: "parse private key", Err: err}
	}
	if pub, ok := cert.PublicKey.(*rsa.PublicKey); !ok || pub.N.Cmp(key.N) != 0 {
		return nil, &sifen.CredentialError{
			Reason: "certificate and key mismatch",
			Err:    errors.New("certificate public key does not match the private key"),
		}
	}
	return &Credential{Certificate: cert, Key: key}, nil
}

func parseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	for len(pemBytes) > 0 {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
	return nil, errors.New("no CERTIFICATE block found in PEM")
}

func parsePrivateKey(pemBytes []byte, passphrase string) (*rsa.PrivateKey, error) {
	for len(pemBytes) > 0 {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}

		switch block.Type {
		case "ENCRYPTED PRIVATE KEY":
			if passphrase == "" {
				return nil, errors.New("passphrase required for ENCRYPTED PRIVATE KEY")
			}
			keyAny, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
			if err != nil {
				return nil, errors.Wrap(err, "decrypt PKCS#8 key")
			}
			return asRSA(keyAny)
		case "PRIVATE KEY":
			keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, errors.Wrap(err, "parse PKCS#8 key")
			}
			return asRSA(keyAny)
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		}
	}
	return nil, errors.New("no private key block found in PEM")
}

func asRSA(key any) (*rsa.PrivateKey, error) {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("unsupported key type %T, RSA required", key)
	}
	return rsaKey, nil
}
