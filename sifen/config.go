package sifen

import "time"

// TLSPolicy selects server certificate validation per call. There is no
// process-wide toggle: a Config for test can skip verification while a
// production Config keeps standard validation, and the two never share state.
type TLSPolicy int

const (
	// TLSVerify is standard chain validation. Mandatory for Prod.
	TLSVerify TLSPolicy = iota
	// TLSAcceptAll disables server verification. Test environments only;
	// EffectiveTLS ignores it for Prod.
	TLSAcceptAll
)

// Config is the consumed (not owned) configuration surface of the engine.
type Config struct {
	Env Environment

	// Signing/transport credential material.
	CertPath      string
	KeyPath       string
	KeyPassphrase string

	// CSC is the shared secret used to hash the QR verification URL,
	// IdCSC its authority-assigned identifier.
	CSC   string
	IdCSC string

	TLS     TLSPolicy
	Timeout time.Duration

	// LegacyGzip switches batch compression from the default single-entry
	// ZIP to raw GZip for endpoints that still expect the old format.
	LegacyGzip bool

	// Endpoint overrides, mostly for pointing query calls at a mirror.
	// Empty values fall back to Env defaults.
	ReceiveDEURL    string
	ReceiveBatchURL string
	QueryDEURL      string
	QueryBatchURL   string
	QueryRUCURL     string
	EventsURL       string
}

func NewConfig(env Environment) (*Config, error) {
	c := &Config{
		Env:     env,
		TLS:     TLSVerify,
		Timeout: 45 * time.Second,
	}
	return c, nil
}

func (c *Config) receiveDEURL() string {
	if c.ReceiveDEURL != "" {
		return c.ReceiveDEURL
	}
	return c.Env.ReceiveDEURL()
}

func (c *Config) receiveBatchURL() string {
	if c.ReceiveBatchURL != "" {
		return c.ReceiveBatchURL
	}
	return c.Env.ReceiveBatchURL()
}

func (c *Config) queryDEURL() string {
	if c.QueryDEURL != "" {
		return c.QueryDEURL
	}
	return c.Env.QueryDEURL()
}

func (c *Config) queryBatchURL() string {
	if c.QueryBatchURL != "" {
		return c.QueryBatchURL
	}
	return c.Env.QueryBatchURL()
}

func (c *Config) queryRUCURL() string {
	if c.QueryRUCURL != "" {
		return c.QueryRUCURL
	}
	return c.Env.QueryRUCURL()
}

func (c *Config) eventsURL() string {
	if c.EventsURL != "" {
		return c.EventsURL
	}
	return c.Env.EventsURL()
}

// Endpoint identifies one authority operation for URL resolution.
type Endpoint int

const (
	EndpointReceiveDE Endpoint = iota
	EndpointReceiveBatch
	EndpointQueryDE
	EndpointQueryBatch
	EndpointQueryRUC
	EndpointEvents
)

// EndpointURL resolves the URL for an operation, honoring overrides.
func (c *Config) EndpointURL(ep Endpoint) string {
	switch ep {
	case EndpointReceiveDE:
		return c.receiveDEURL()
	case EndpointReceiveBatch:
		return c.receiveBatchURL()
	case EndpointQueryDE:
		return c.queryDEURL()
	case EndpointQueryBatch:
		return c.queryBatchURL()
	case EndpointQueryRUC:
		return c.queryRUCURL()
	case EndpointEvents:
		return c.eventsURL()
	}
	panic("invalid endpoint")
}

// EffectiveTLS downgrades an accept-all request to standard validation when
// the environment is production.
func (c *Config) EffectiveTLS() TLSPolicy {
	if c.Env == Prod {
		return TLSVerify
	}
	return c.TLS
}
