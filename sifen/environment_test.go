package sifen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_URLs(t *testing.T) {
	assert.Equal(t, "https://sifen-test.set.gov.py", Test.BaseURL())
	assert.Equal(t, "https://sifen.set.gov.py", Prod.BaseURL())
	assert.Equal(t, "https://ekuatia.set.gov.py/consultas-test/qr", Test.QRBaseURL())
	assert.Equal(t, "https://ekuatia.set.gov.py/consultas/qr", Prod.QRBaseURL())

	assert.Equal(t, "https://sifen-test.set.gov.py/de/ws/sync/recibe-de", Test.ReceiveDEURL())
	assert.Equal(t, "https://sifen.set.gov.py/de/ws/async/recibe-lote", Prod.ReceiveBatchURL())
	assert.Equal(t, "https://sifen-test.set.gov.py/de/ws/eventos/evento", Test.EventsURL())
}

func TestEnvironment_UnmarshalText(t *testing.T) {
	var e Environment
	require.NoError(t, e.UnmarshalText([]byte(" Prod ")))
	assert.Equal(t, Prod, e)
	require.NoError(t, e.UnmarshalText([]byte("test")))
	assert.Equal(t, Test, e)
	assert.Error(t, e.UnmarshalText([]byte("staging")))
}

func TestConfig_EndpointOverrides(t *testing.T) {
	c, err := NewConfig(Test)
	require.NoError(t, err)

	assert.Equal(t, Test.ReceiveDEURL(), c.EndpointURL(EndpointReceiveDE))
	c.ReceiveDEURL = "https://mirror.example/recibe-de"
	assert.Equal(t, "https://mirror.example/recibe-de", c.EndpointURL(EndpointReceiveDE))
	assert.Equal(t, Test.QueryDEURL(), c.EndpointURL(EndpointQueryDE))
}

func TestConfig_EffectiveTLS(t *testing.T) {
	c, err := NewConfig(Test)
	require.NoError(t, err)
	c.TLS = TLSAcceptAll
	assert.Equal(t, TLSAcceptAll, c.EffectiveTLS())

	// production never skips server validation, whatever the caller asked
	c.Env = Prod
	assert.Equal(t, TLSVerify, c.EffectiveTLS())
}

func TestValidationError_Message(t *testing.T) {
	e := &ValidationError{Errors: []string{"a", "b"}, Warnings: []string{"w"}}
	assert.True(t, e.HasErrors())
	assert.Contains(t, e.Error(), "a; b")

	warnOnly := &ValidationError{Warnings: []string{"w"}}
	assert.False(t, warnOnly.HasErrors())
}
