// Package endpoint maps ARCA services to their homologation and production URLs.
package endpoint

import (
	"fmt"

	"github.com/rezonia/arca-auth/internal/model"
)

type urls struct {
	testing    string
	production string
}

var table = map[model.Service]urls{
	model.ServiceWSAA: {
		testing:    "https://wsaahomo.afip.gov.ar/ws/services/LoginCms",
		production: "https://wsaa.afip.gov.ar/ws/services/LoginCms",
	},
	model.ServiceWSFE: {
		testing:    "https://wswhomo.afip.gov.ar/wsfev1/service.asmx",
		production: "https://servicios1.afip.gov.ar/wsfev1/service.asmx",
	},
	model.ServiceWSFEX: {
		testing:    "https://wswhomo.afip.gov.ar/wsfexv1/service.asmx",
		production: "https://servicios1.afip.gov.ar/wsfexv1/service.asmx",
	},
	model.ServiceWSMTXCA: {
		testing:    "https://fwshomo.afip.gov.ar/wsmtxca/services/MTXCAService",
		production: "https://serviciosjava.afip.gob.ar/wsmtxca/services/MTXCAService",
	},
}

// URL returns the endpoint of service for env
func URL(service model.Service, env model.Environment) (string, error) {
	u, ok := table[service]
	if !ok {
		return "", fmt.Errorf("no endpoint known for service %q", service)
	}
	if env.IsProduction() {
		return u.production, nil
	}
	return u.testing, nil
}

// MustURL is URL for services known to be in the table
func MustURL(service model.Service, env model.Environment) string {
	u, err := URL(service, env)
	if err != nil {
		panic(err)
	}
	return u
}
