package sifen

import (
	"fmt"
	"strings"
)

type Environment int

const (
	Test Environment = iota
	Prod
)

func (e Environment) BaseURL() string {
	switch e {
	case Prod:
		return "https://sifen.set.gov.py"
	case Test:
		return "https://sifen-test.set.gov.py"
	}
	panic("Invalid environment")
}

// QRBaseURL returns the public verification base for dCarQR links.
// The QR host is shared between environments; only the path differs.
func (e Environment) QRBaseURL() string {
	switch e {
	case Prod:
		return "https://ekuatia.set.gov.py/consultas/qr"
	case Test:
		return "https://ekuatia.set.gov.py/consultas-test/qr"
	}
	panic("Invalid environment")
}

func (e Environment) Name() string {
	switch e {
	case Prod:
		return "prod"
	case Test:
		return "test"
	}
	panic("Invalid environment")
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "prod":
		*e = Prod
	case "test":
		*e = Test
	default:
		return fmt.Errorf("invalid SIFEN_ENV: %q (allowed: prod, test)", val)
	}
	return nil
}

// Service endpoint paths. POST targets, without the .wsdl suffix.
const (
	PathReceiveDE    = "/de/ws/sync/recibe-de"
	PathReceiveBatch = "/de/ws/async/recibe-lote"
	PathQueryDE      = "/de/ws/consultas/consulta-de"
	PathQueryBatch   = "/de/ws/consultas/consulta-lote"
	PathQueryRUC     = "/de/ws/consultas/consulta-ruc"
	PathEvents       = "/de/ws/eventos/evento"
)

func (e Environment) ReceiveDEURL() string    { return e.BaseURL() + PathReceiveDE }
func (e Environment) ReceiveBatchURL() string { return e.BaseURL() + PathReceiveBatch }
func (e Environment) QueryDEURL() string      { return e.BaseURL() + PathQueryDE }
func (e Environment) QueryBatchURL() string   { return e.BaseURL() + PathQueryBatch }
func (e Environment) QueryRUCURL() string     { return e.BaseURL() + PathQueryRUC }
func (e Environment) EventsURL() string       { return e.BaseURL() + PathEvents }
