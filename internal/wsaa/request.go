// Package wsaa talks to the ARCA ticket-granting service (WSAA) and keeps
// the resulting tickets cached per tenant and service.
package wsaa

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/arca-auth/internal/model"
)

// Ticket request window
const (
	// ClockSkew is subtracted from now so a server clock running slightly
	// behind still accepts the request
	ClockSkew = 5 * time.Minute
	// TicketValidity is the lifetime requested for a ticket
	TicketValidity = 23 * time.Hour
)

// TimeLayout is the offset-aware layout WSAA expects for request timestamps
const TimeLayout = "2006-01-02T15:04:05-07:00"

// TicketRequest is a built loginTicketRequest document
type TicketRequest struct {
	UniqueID       int64
	GenerationTime time.Time
	ExpirationTime time.Time
	Service        model.Service
	XML            string
}

// BuildTicketRequest builds the plaintext loginTicketRequest for service.
// GenerationTime is now minus the clock skew truncated to whole seconds, so
// it can be up to a second earlier than now-5m when now has sub-second
// precision.
func BuildTicketRequest(service model.Service, now time.Time) (*TicketRequest, error) {
	gen := now.UTC().Add(-ClockSkew).Truncate(time.Second)
	exp := gen.Add(TicketValidity)

	doc := etree.NewDocument()
	root := doc.CreateElement("loginTicketRequest")
	root.CreateAttr("version", "1.0")

	header := root.CreateElement("header")
	header.CreateElement("uniqueId").SetText(strconv.FormatInt(gen.Unix(), 10))
	header.CreateElement("generationTime").SetText(gen.Format(TimeLayout))
	header.CreateElement("expirationTime").SetText(exp.Format(TimeLayout))
	root.CreateElement("service").SetText(service.String())

	xml, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ticket request: %w", err)
	}

	return &TicketRequest{
		UniqueID:       gen.Unix(),
		GenerationTime: gen,
		ExpirationTime: exp,
		Service:        service,
		XML:            xml,
	}, nil
}

// WrapSigned embeds the signed CMS text, unmodified, in the loginCms SOAP envelope
func WrapSigned(signed string) string {
	return `<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:wsaa="http://wsaa.view.sua.dvadac.desein.afip.gov">
	<soapenv:Header/>
	<soapenv:Body>
		<wsaa:loginCms>
			<wsaa:in0>` + signed + `</wsaa:in0>
		</wsaa:loginCms>
	</soapenv:Body>
</soapenv:Envelope>`
}
