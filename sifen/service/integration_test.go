package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/status"
)

// Runs against the real test environment. Needs live signing material, so
// it skips unless the credential env vars are set.
func TestSend_AgainstTestEnvironment(t *testing.T) {
	certPath := os.Getenv("SIFEN_CERT")
	keyPath := os.Getenv("SIFEN_KEY")
	csc := os.Getenv("SIFEN_CSC")
	if certPath == "" || keyPath == "" || csc == "" {
		t.Skipf("SIFEN_CERT, SIFEN_KEY and SIFEN_CSC are required for the integration test")
	}

	cfg, err := sifen.NewConfig(sifen.Test)
	require.NoError(t, err)
	cfg.CertPath = certPath
	cfg.KeyPath = keyPath
	cfg.KeyPassphrase = os.Getenv("SIFEN_KEY_PASS")
	cfg.CSC = csc
	cfg.IdCSC = os.Getenv("SIFEN_CSC_ID")

	svc, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	snap := testSnapshot(os.Getenv("SIFEN_SEQ"))
	snap.Emitter.RUC = os.Getenv("SIFEN_RUC")
	snap.Emitter.RUCDigit = os.Getenv("SIFEN_RUC_DV")
	snap.Emitter.StampNumber = os.Getenv("SIFEN_TIMBRADO")
	snap.IssueTime = time.Now()

	rec, payload, err := svc.Send(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, status.Accepted, rec.Status)

	t.Log("accepted", rec.ControlCode)
	t.Log("qr", payload.QRURL)
}
