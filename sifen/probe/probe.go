// Package probe runs the envelope variant diagnostic. When a submission
// keeps bouncing with the malformed-request code it is usually the SOAP
// wrapper the endpoint dislikes, not the signed document; the probe replays
// the same payload under every known envelope rendition to find one the
// gateway parses. Diagnostic tooling only: it is never invoked by the
// production submit path.
package probe

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/envelope"
	"github.com/sistemia/go-sifen/sifen/sign"
	"github.com/sistemia/go-sifen/sifen/status"
	"github.com/sistemia/go-sifen/sifen/transport"
)

var logger = logrus.WithField("component", "sifen.probe")

// Result is one variant's outcome.
type Result struct {
	Variant string
	Code    string
	Message string
	// Err is set when the call never produced a parseable response.
	Err error
}

// Report is the full diagnostic run.
type Report struct {
	Results []Result
	// Winner names the first variant the gateway did not reject as
	// malformed; empty when every variant bounced.
	Winner string
}

// Runner drives the diagnostic.
type Runner struct {
	sender status.Sender
	cfg    *sifen.Config

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

func New(sender status.Sender, cfg *sifen.Config) *Runner {
	return &Runner{sender: sender, cfg: cfg, Now: time.Now}
}

// Run replays the payload through the variant registry in order, stopping at
// the first response that is not the malformed-request code. Transport
// failures are recorded and skipped; they say nothing about the envelope
// shape. The returned error is non-nil only when no variant could even be
// attempted.
func (r *Runner) Run(ctx context.Context, payload *sign.SignedPayload) (*Report, error) {
	report := &Report{}

	for _, v := range envelope.Variants() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dID, err := envelope.NewDId(r.Now())
		if err != nil {
			return report, err
		}
		env, err := v.Build(payload.XML, dID)
		if err != nil {
			report.Results = append(report.Results, Result{Variant: v.Name, Err: err})
			continue
		}

		url := r.cfg.EndpointURL(sifen.EndpointReceiveDE)
		if v.Batch {
			url = r.cfg.EndpointURL(sifen.EndpointReceiveBatch)
		}

		resp, err := r.sender.Call(ctx, url, env, transport.Submit)
		if err != nil {
			logger.Warnf("variant %s: %v", v.Name, err)
			report.Results = append(report.Results, Result{Variant: v.Name, Err: err})
			continue
		}

		code := resp.Field("dCodRes").Value()
		msg := resp.Field("dMsgRes").Or("")
		report.Results = append(report.Results, Result{Variant: v.Name, Code: code, Message: msg})

		if code != status.CodeMalformed {
			report.Winner = v.Name
			logger.Infof("variant %s got past the gateway with code %s", v.Name, code)
			break
		}
	}
	return report, nil
}
