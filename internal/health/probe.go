// Package health checks whether the ARCA fiscal services are up by calling
// their dummy operations, which need no ticket.
package health

import (
	"fmt"
	"time"

	"github.com/rezonia/arca-auth/internal/endpoint"
	"github.com/rezonia/arca-auth/internal/model"
)

// DefaultTimeout bounds a probe when the Probe sets none
const DefaultTimeout = 30 * time.Second

// Probe describes one dummy call and the tags holding its component states
type Probe struct {
	Name     string
	URL      string
	Envelope string
	AppTag   string
	DBTag    string
	AuthTag  string
	Timeout  time.Duration
}

const feDummyEnvelope = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
 <soapenv:Body>
  <tns:FEDummy xmlns:tns="http://ar.gov.afip.dif.FEV1/"/>
 </soapenv:Body>
</soapenv:Envelope>`

const fexDummyEnvelope = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
 <soapenv:Body>
  <tns:FEXDummy xmlns:tns="http://ar.gov.afip.dif.fexv1/"></tns:FEXDummy>
 </soapenv:Body>
</soapenv:Envelope>`

const mtxcaDummyEnvelope = `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
 <soapenv:Body>
  <tns:dummy xmlns:tns="http://impl.service.wsmtxca.afip.gov.ar/service/"></tns:dummy>
 </soapenv:Body>
</soapenv:Envelope>`

// WSFEv1 probes FEDummy
func WSFEv1(env model.Environment) Probe {
	return Probe{
		Name:     "wsfev1",
		URL:      endpoint.MustURL(model.ServiceWSFE, env),
		Envelope: feDummyEnvelope,
		AppTag:   "AppServer",
		DBTag:    "DbServer",
		AuthTag:  "AuthServer",
	}
}

// WSFEXv1 probes FEXDummy
func WSFEXv1(env model.Environment) Probe {
	return Probe{
		Name:     "wsfexv1",
		URL:      endpoint.MustURL(model.ServiceWSFEX, env),
		Envelope: fexDummyEnvelope,
		AppTag:   "AppServer",
		DBTag:    "DbServer",
		AuthTag:  "AuthServer",
	}
}

// WSMTXCA probes dummy. A zero timeout means DefaultTimeout.
func WSMTXCA(env model.Environment, timeout time.Duration) Probe {
	return Probe{
		Name:     "wsmtxca",
		URL:      endpoint.MustURL(model.ServiceWSMTXCA, env),
		Envelope: mtxcaDummyEnvelope,
		AppTag:   "appserver",
		DBTag:    "dbserver",
		AuthTag:  "authserver",
		Timeout:  timeout,
	}
}

// ForService returns the built-in probe of service
func ForService(service model.Service, env model.Environment) (Probe, error) {
	switch service {
	case model.ServiceWSFE:
		return WSFEv1(env), nil
	case model.ServiceWSFEX:
		return WSFEXv1(env), nil
	case model.ServiceWSMTXCA:
		return WSMTXCA(env, 0), nil
	default:
		return Probe{}, fmt.Errorf("no health probe for service %q", service)
	}
}
