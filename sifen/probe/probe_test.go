package probe

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemia/go-sifen/sifen"
	"github.com/sistemia/go-sifen/sifen/envelope"
	"github.com/sistemia/go-sifen/sifen/sign"
	"github.com/sistemia/go-sifen/sifen/transport"
)

type scriptedSender struct {
	calls []string // URLs in call order
	codes []string // popped per call; "ERR" scripts a transport failure
}

func (s *scriptedSender) Call(_ context.Context, url string, _ []byte, _ transport.Kind) (*transport.Response, error) {
	s.calls = append(s.calls, url)
	if len(s.codes) == 0 {
		return nil, fmt.Errorf("scriptedSender: out of codes")
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	if code == "ERR" {
		return nil, &sifen.TransportError{URL: url, Err: fmt.Errorf("reset")}
	}
	body := `<r><dCodRes>` + code + `</dCodRes><dMsgRes>m</dMsgRes></r>`
	return transport.ParseResponse([]byte(body), 200)
}

func testPayload() *sign.SignedPayload {
	return &sign.SignedPayload{
		XML:         []byte(`<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd"><DE Id="x"/></rDE>`),
		ControlCode: "x",
	}
}

func testRunner(t *testing.T, sender *scriptedSender) *Runner {
	t.Helper()
	cfg, err := sifen.NewConfig(sifen.Test)
	require.NoError(t, err)
	return New(sender, cfg)
}

func TestRun_StopsAtFirstNonMalformed(t *testing.T) {
	sender := &scriptedSender{codes: []string{"0160", "0160", "0260"}}
	report, err := testRunner(t, sender).Run(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Len(t, sender.calls, 3)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, "sync-no-header", report.Winner)
	assert.Equal(t, "0260", report.Results[2].Code)
}

func TestRun_AllMalformed(t *testing.T) {
	variants := len(envelope.Variants())
	codes := make([]string, variants)
	for i := range codes {
		codes[i] = "0160"
	}
	sender := &scriptedSender{codes: codes}

	report, err := testRunner(t, sender).Run(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Empty(t, report.Winner)
	assert.Len(t, report.Results, variants)
	assert.Len(t, sender.calls, variants)
}

func TestRun_TransportErrorsAreSkippedNotFatal(t *testing.T) {
	sender := &scriptedSender{codes: []string{"ERR", "0160", "0300"}}
	report, err := testRunner(t, sender).Run(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, "sync-no-header", report.Winner)
	require.Len(t, report.Results, 3)
	assert.Error(t, report.Results[0].Err)
	assert.Equal(t, "0160", report.Results[1].Code)
}

func TestRun_BatchVariantsHitBatchEndpoint(t *testing.T) {
	variants := envelope.Variants()
	codes := make([]string, len(variants))
	for i := range codes {
		codes[i] = "0160"
	}
	sender := &scriptedSender{codes: codes}

	_, err := testRunner(t, sender).Run(context.Background(), testPayload())
	require.NoError(t, err)

	require.Len(t, sender.calls, len(variants))
	for i, v := range variants {
		if v.Batch {
			assert.Contains(t, sender.calls[i], "/de/ws/async/recibe-lote", v.Name)
		} else {
			assert.Contains(t, sender.calls[i], "/de/ws/sync/recibe-de", v.Name)
		}
	}
}

func TestRun_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &scriptedSender{}
	report, err := testRunner(t, sender).Run(ctx, testPayload())
	assert.Error(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, sender.calls)
}
