// Package transport performs the HTTPS calls against the authority's
// endpoints over mutual TLS. One call is exactly one attempt: retry policy
// belongs to the caller, who knows whether the outcome was ambiguous.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/sign"
)

var logger = logrus.WithField("component", "sifen.transport")

// userAgent matches what the authority's gateway whitelists. Other values
// have been observed to produce spurious malformed-request rejections.
const userAgent = "Java/1.8.0_341"

// Kind distinguishes submits from queries: submits carry a SOAPAction header
// and report timeouts as ambiguous, queries are always safe to repeat.
type Kind int

const (
	Submit Kind = iota
	Query
)

type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient builds the mutual-TLS client. The policy is fixed per client
// instance, never per process: a test client with TLSAcceptAll and a
// production client with TLSVerify can coexist.
func NewClient(cred *sign.Credential, policy sifen.TLSPolicy, timeout time.Duration) (*Client, error) {
	if cred == nil {
		return nil, sifen.ErrNoCredential
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Certificates:       []tls.Certificate{cred.TLSCertificate()},
		InsecureSkipVerify: policy == sifen.TLSAcceptAll,
	}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
			Timeout:   timeout,
		},
		timeout: timeout,
	}, nil
}

// Call posts one envelope and parses the SOAP response. Exactly one attempt;
// a timeout on a Submit returns *sifen.AmbiguousOutcome because the payload
// may already be registered remotely, every other network failure returns
// *sifen.TransportError.
func (c *Client) Call(ctx context.Context, url string, envelope []byte, kind Kind) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(envelope))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	if kind == Submit {
		req.Header.Set("SOAPAction", "")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if kind == Submit && isTimeout(err) {
			return nil, &sifen.AmbiguousOutcome{URL: url, Err: err}
		}
		return nil, &sifen.TransportError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if kind == Submit && isTimeout(err) {
			return nil, &sifen.AmbiguousOutcome{URL: url, Err: err}
		}
		return nil, &sifen.TransportError{URL: url, Err: err}
	}

	logger.WithFields(logrus.Fields{
		"url":     url,
		"status":  resp.StatusCode,
		"elapsed": time.Since(started).Round(time.Millisecond),
		"bytes":   len(body),
	}).Debug("endpoint call finished")

	return ParseResponse(body, resp.StatusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
