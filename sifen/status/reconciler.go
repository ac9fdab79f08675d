package status

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/envelope"
	"github.com/sistemia/go-sifen/sifen/sign"
	"github.com/sistemia/go-sifen/sifen/transport"
)

var logger = logrus.WithField("component", "sifen.status")

// CancellationWindow is how long after acceptance the authority still
// accepts a document's cancellation. Enforced locally before any network call.
const CancellationWindow = 48 * time.Hour

// Sender posts one envelope. Satisfied by *transport.Client.
type Sender interface {
	Call(ctx context.Context, url string, envelope []byte, kind transport.Kind) (*transport.Response, error)
}

// Reconciler drives TransmissionRecords through the state machine, one
// endpoint call per method. It never retries on its own: a malformed
// rejection in particular must reach a human, not a retry loop.
type Reconciler struct {
	sender Sender
	cfg    *sifen.Config
	cred   *sign.Credential

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

func NewReconciler(sender Sender, cfg *sifen.Config, cred *sign.Credential) *Reconciler {
	return &Reconciler{sender: sender, cfg: cfg, cred: cred, Now: time.Now}
}

// Sender exposes the underlying sender for diagnostic tooling.
func (r *Reconciler) Sender() Sender { return r.sender }

// Submit posts one signed document to the synchronous endpoint and advances
// the record. A transport failure leaves the record PENDING (nothing was
// committed remotely); an ambiguous timeout leaves it SENT so the caller
// consults before re-submitting.
func (r *Reconciler) Submit(ctx context.Context, rec *TransmissionRecord, payload *sign.SignedPayload) error {
	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return err
	}
	env := envelope.Sync(payload.XML, dID)

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointReceiveDE), env, transport.Submit)
	if err != nil {
		rec.addAttempt(Attempt{At: r.Now(), Operation: "submit", Request: env, Message: err.Error()})
		var amb *sifen.AmbiguousOutcome
		if errors.As(err, &amb) {
			rec.Status = Sent
		}
		return err
	}

	code := resp.Field("dCodRes").Value()
	msg := resp.Field("dMsgRes").Or("")
	rec.addAttempt(Attempt{
		At: r.Now(), Operation: "submit",
		Request: env, Response: resp.Body,
		Code: code, Message: msg,
	})

	switch code {
	case CodeApproved:
		rec.Status = Accepted
		rec.AcceptedAt = r.Now()
		logger.Infof("document %s accepted", rec.ControlCode)
		return nil
	case CodeMalformed:
		rec.Status = Rejected
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionMalformed}
	default:
		rec.Status = Rejected
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionBusinessRule}
	}
}

// SubmitBatch posts several signed documents to the asynchronous endpoint.
// A 0300 acknowledgment parks every record in SENT with the batch handle;
// resolution comes later through ConsultBatch.
func (r *Reconciler) SubmitBatch(ctx context.Context, recs []*TransmissionRecord, payloads []*sign.SignedPayload) error {
	if len(recs) != len(payloads) {
		return errors.Errorf("%d records for %d payloads", len(recs), len(payloads))
	}
	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return err
	}
	xmls := make([][]byte, len(payloads))
	for i, p := range payloads {
		xmls[i] = p.XML
	}
	env, err := envelope.Batch(xmls, dID, r.cfg.LegacyGzip)
	if err != nil {
		return err
	}

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointReceiveBatch), env, transport.Submit)
	if err != nil {
		for _, rec := range recs {
			rec.addAttempt(Attempt{At: r.Now(), Operation: "submit-batch", Message: err.Error()})
			var amb *sifen.AmbiguousOutcome
			if errors.As(err, &amb) {
				rec.Status = Sent
			}
		}
		return err
	}

	code := resp.Field("dCodRes").Value()
	msg := resp.Field("dMsgRes").Or("")
	batchID := resp.Field("dProtConsLote").Or("")
	for _, rec := range recs {
		rec.addAttempt(Attempt{
			At: r.Now(), Operation: "submit-batch",
			Response: resp.Body, Code: code, Message: msg,
		})
	}

	switch code {
	case CodeBatchReceived, CodeBatchQueued:
		for _, rec := range recs {
			rec.Status = Sent
			rec.BatchID = batchID
		}
		logger.Infof("batch of %d documents received, handle %s", len(recs), batchID)
		return nil
	case CodeMalformed:
		for _, rec := range recs {
			rec.Status = Rejected
		}
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionMalformed}
	default:
		for _, rec := range recs {
			rec.Status = Rejected
		}
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionBusinessRule}
	}
}

// Consult asks the authority for the document's current state and folds the
// answer into the record. Safe to repeat at any time.
func (r *Reconciler) Consult(ctx context.Context, rec *TransmissionRecord) error {
	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return err
	}
	env := envelope.QueryDE(dID, rec.ControlCode)

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointQueryDE), env, transport.Query)
	if err != nil {
		rec.addAttempt(Attempt{At: r.Now(), Operation: "consult", Message: err.Error()})
		return err
	}

	code := resp.Field("dCodRes").Value()
	msg := resp.Field("dMsgRes").Or("")
	state := resp.Field("dEstRes").Or("")
	rec.addAttempt(Attempt{
		At: r.Now(), Operation: "consult",
		Response: resp.Body, Code: code, Message: msg,
	})

	// a terminal record never moves backward; the only thing a consult can
	// still add is the cancelled-elsewhere flag
	if rec.Status.Terminal() {
		if state == "Cancelado" {
			rec.AlreadyCancelled = true
		}
		return nil
	}

	switch code {
	case CodeNotFound, CodeNotFoundAlt:
		rec.Status = NotFound
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionNotFound}
	}

	switch state {
	case "Aprobado":
		rec.Status = Accepted
		if rec.AcceptedAt.IsZero() {
			rec.AcceptedAt = r.Now()
		}
	case "Cancelado":
		rec.Status = Accepted
		rec.AlreadyCancelled = true
	case "Rechazado":
		rec.Status = Rejected
	default:
		logger.Warnf("consult of %s returned code %s state %q, record unchanged",
			rec.ControlCode, code, state)
	}
	return nil
}

// ConsultBatch resolves a batch handle. While the batch is still in the
// processing queue the records stay SENT.
func (r *Reconciler) ConsultBatch(ctx context.Context, recs []*TransmissionRecord) error {
	if len(recs) == 0 {
		return errors.New("no records to consult")
	}
	batchID := recs[0].BatchID
	if batchID == "" {
		return errors.New("records carry no batch handle")
	}
	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return err
	}
	env := envelope.QueryBatch(dID, batchID)

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointQueryBatch), env, transport.Query)
	if err != nil {
		for _, rec := range recs {
			rec.addAttempt(Attempt{At: r.Now(), Operation: "consult-batch", Message: err.Error()})
		}
		return err
	}

	code := resp.Field("dCodRes").Value()
	msg := resp.Field("dMsgRes").Or("")
	for _, rec := range recs {
		rec.addAttempt(Attempt{
			At: r.Now(), Operation: "consult-batch",
			Response: resp.Body, Code: code, Message: msg,
		})
	}

	switch code {
	case CodeBatchQueued, CodeBatchProcessing:
		return nil
	}

	// per-document results arrive in submission order
	states := resp.Fields("dEstRes")
	for i, rec := range recs {
		if i >= len(states) {
			break
		}
		if rec.Status.Terminal() {
			continue
		}
		switch states[i] {
		case "Aprobado":
			rec.Status = Accepted
			if rec.AcceptedAt.IsZero() {
				rec.AcceptedAt = r.Now()
			}
		case "Rechazado":
			rec.Status = Rejected
		}
	}
	return nil
}

// Cancel registers the cancellation event for an accepted document. The
// 48-hour window runs from the acceptance timestamp (issue time when
// acceptance was never recorded) and is checked locally first: outside it
// the call never leaves the process.
func (r *Reconciler) Cancel(ctx context.Context, rec *TransmissionRecord, eventID, reason string) error {
	if rec.Status != Accepted || rec.AlreadyCancelled {
		return sifen.ErrNotCancellable
	}
	anchor := rec.AcceptedAt
	if anchor.IsZero() {
		anchor = rec.IssuedAt
	}
	if r.Now().Sub(anchor) > CancellationWindow {
		return sifen.ErrWindowExpired
	}

	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return err
	}
	env, err := envelope.CancelEvent(r.cred, dID, envelope.CancelParams{
		EventID:     eventID,
		ControlCode: rec.ControlCode,
		Reason:      reason,
		SignedAt:    r.Now(),
	})
	if err != nil {
		return err
	}

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointEvents), env, transport.Submit)
	if err != nil {
		rec.addAttempt(Attempt{At: r.Now(), Operation: "cancel", Request: env, Message: err.Error()})
		return err
	}

	code := resp.Field("dCodRes").Value()
	msg := resp.Field("dMsgRes").Or("")
	rec.addAttempt(Attempt{
		At: r.Now(), Operation: "cancel",
		Request: env, Response: resp.Body,
		Code: code, Message: msg,
	})

	if code != CodeEventRegistered {
		return &sifen.RemoteRejection{Code: code, Message: msg, Kind: sifen.RejectionBusinessRule}
	}
	rec.Status = Cancelled
	logger.Infof("document %s cancelled", rec.ControlCode)
	return nil
}

// RUCInfo is the taxpayer registry answer.
type RUCInfo struct {
	RUC    string
	Name   string
	Status string
}

// ConsultRUC looks a taxpayer up in the registry.
func (r *Reconciler) ConsultRUC(ctx context.Context, ruc string) (*RUCInfo, error) {
	dID, err := envelope.NewDId(r.Now())
	if err != nil {
		return nil, err
	}
	env := envelope.QueryRUC(dID, ruc)

	resp, err := r.sender.Call(ctx, r.cfg.EndpointURL(sifen.EndpointQueryRUC), env, transport.Query)
	if err != nil {
		return nil, err
	}
	code := resp.Field("dCodRes").Value()
	switch code {
	case CodeNotFound, CodeNotFoundAlt:
		return nil, &sifen.RemoteRejection{
			Code: code, Message: resp.Field("dMsgRes").Or(""), Kind: sifen.RejectionNotFound,
		}
	}
	return &RUCInfo{
		RUC:    resp.Field("dRUCCons").Or(ruc),
		Name:   resp.Field("dRazCons").Or(""),
		Status: resp.Field("dDesEstCons").Or(""),
	}, nil
}
