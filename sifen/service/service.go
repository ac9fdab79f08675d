// Package service is the high level facade: build, sign and transmit in one
// call, plus consult, cancel and the pending-queue flush. Submissions of the
// same transaction are serialized through a keyed lock; everything else runs
// concurrently.
package service

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/cdc"
	"github.com/sistemia/go-sifen/sifen/document"
	"github.com/sistemia/go-sifen/sifen/mutex"
	"github.com/sistemia/go-sifen/sifen/probe"
	"github.com/sistemia/go-sifen/sifen/sign"
	"github.com/sistemia/go-sifen/sifen/status"
	"github.com/sistemia/go-sifen/sifen/transport"
)

var logger = logrus.WithField("component", "sifen.service")

type Service struct {
	cfg    *sifen.Config
	cred   *sign.Credential
	engine *sign.Engine
	recon  *status.Reconciler
	locks  mutex.KeyedRWMutex[string]
}

// New loads the credential from the config paths and wires the full stack.
func New(cfg *sifen.Config) (*Service, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		return nil, sifen.ErrNoCredential
	}
	cred, err := sign.LoadCredential(cfg.CertPath, cfg.KeyPath, cfg.KeyPassphrase)
	if err != nil {
		return nil, err
	}
	client, err := transport.NewClient(cred, cfg.EffectiveTLS(), cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, cred, client)
}

// NewWithSender wires the service on top of an explicit sender. Tests and
// callers with a custom transport use this.
func NewWithSender(cfg *sifen.Config, cred *sign.Credential, sender status.Sender) (*Service, error) {
	engine, err := sign.NewEngine(cred, cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		cred:   cred,
		engine: engine,
		recon:  status.NewReconciler(sender, cfg, cred),
	}, nil
}

// transactionKey identifies the business transaction behind a snapshot. Two
// concurrent submits of the same establishment/point-of-sale/sequence are
// the same document and must not race.
func transactionKey(snap document.Snapshot) string {
	return cdc.VisibleNumber(snap.Emitter.Establishment, snap.Emitter.PointOfSale, snap.Sequence)
}

// BuildAndSign validates the snapshot and produces the signed payload plus a
// fresh PENDING record, without transmitting anything.
func (s *Service) BuildAndSign(snap document.Snapshot) (*sign.SignedPayload, *status.TransmissionRecord, error) {
	doc, err := document.Build(snap)
	if err != nil {
		return nil, nil, err
	}
	payload, err := s.engine.Sign(doc)
	if err != nil {
		return nil, nil, err
	}
	return payload, status.NewRecord(doc.ControlCode, doc.IssueTime), nil
}

// Send builds, signs and submits synchronously. The returned record reflects
// the outcome and must be persisted by the caller even when err is non-nil:
// a rejection or an ambiguous timeout is part of the document's history.
func (s *Service) Send(ctx context.Context, snap document.Snapshot) (*status.TransmissionRecord, *sign.SignedPayload, error) {
	payload, rec, err := s.BuildAndSign(snap)
	if err != nil {
		return nil, nil, err
	}

	key := transactionKey(snap)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	err = s.recon.Submit(ctx, rec, payload)
	return rec, payload, err
}

// SendBatch builds and signs every snapshot, then submits them as one
// asynchronous batch. Validation failures abort before anything is sent.
func (s *Service) SendBatch(ctx context.Context, snaps []document.Snapshot) ([]*status.TransmissionRecord, error) {
	if len(snaps) == 0 {
		return nil, errors.New("empty batch")
	}
	recs := make([]*status.TransmissionRecord, len(snaps))
	payloads := make([]*sign.SignedPayload, len(snaps))
	for i, snap := range snaps {
		payload, rec, err := s.BuildAndSign(snap)
		if err != nil {
			return nil, errors.Wrapf(err, "document %d", i)
		}
		recs[i] = rec
		payloads[i] = payload
	}

	err := s.recon.SubmitBatch(ctx, recs, payloads)
	return recs, err
}

// Resubmit pushes an already signed payload again, serialized by its control
// code. For NOT_FOUND recovery after an ambiguous outcome.
func (s *Service) Resubmit(ctx context.Context, rec *status.TransmissionRecord, payload *sign.SignedPayload) error {
	s.locks.Lock(rec.ControlCode)
	defer s.locks.Unlock(rec.ControlCode)
	return s.recon.Submit(ctx, rec, payload)
}

// Consult refreshes the record from the authority.
func (s *Service) Consult(ctx context.Context, rec *status.TransmissionRecord) error {
	return s.recon.Consult(ctx, rec)
}

// ConsultBatch resolves a parked batch.
func (s *Service) ConsultBatch(ctx context.Context, recs []*status.TransmissionRecord) error {
	return s.recon.ConsultBatch(ctx, recs)
}

// ConsultRUC looks a taxpayer up.
func (s *Service) ConsultRUC(ctx context.Context, ruc string) (*status.RUCInfo, error) {
	return s.recon.ConsultRUC(ctx, ruc)
}

// Cancel registers the cancellation event for an accepted document.
func (s *Service) Cancel(ctx context.Context, rec *status.TransmissionRecord, eventID, reason string) error {
	s.locks.Lock(rec.ControlCode)
	defer s.locks.Unlock(rec.ControlCode)
	return s.recon.Cancel(ctx, rec, eventID, reason)
}

// Probe runs the envelope variant diagnostic for a payload that keeps being
// rejected as malformed. Explicitly operator-invoked, never automatic.
func (s *Service) Probe(ctx context.Context, payload *sign.SignedPayload) (*probe.Report, error) {
	return probe.New(s.recon.Sender(), s.cfg).Run(ctx, payload)
}
