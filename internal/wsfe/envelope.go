// Package wsfe performs authenticated calls to the electronic invoicing
// service (WSFEv1) using tickets from the WSAA ticket cache.
package wsfe

import (
	"fmt"
	"strings"
)

// DefaultOperation is the WSFEv1 method used when none is configured
const DefaultOperation = "FECAESolicitar"

// Namespace of the WSFEv1 schema
const Namespace = "http://ar.gov.afip.dif.FEV1/"

// AuthBlock renders a ticket as the <ar:Auth> element WSFEv1 expects
func AuthBlock(tenantID int64, token, sign string) string {
	return fmt.Sprintf(`<ar:Auth>
	<ar:Token>%s</ar:Token>
	<ar:Sign>%s</ar:Sign>
	<ar:Cuit>%d</ar:Cuit>
</ar:Auth>`, token, sign, tenantID)
}

// BuildEnvelope wraps the auth block and the operation payload in a SOAP 1.2
// envelope. The payload is inserted as is, after the auth block.
func BuildEnvelope(operation, auth, payload string) string {
	if operation == "" {
		operation = DefaultOperation
	}

	var b strings.Builder
	b.WriteString(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope" xmlns:ar="` + Namespace + `">`)
	b.WriteString("\n<soap:Header/>\n<soap:Body>\n")
	b.WriteString("<ar:" + operation + ">\n")
	b.WriteString(auth)
	b.WriteString("\n")
	b.WriteString(payload)
	b.WriteString("\n</ar:" + operation + ">\n")
	b.WriteString("</soap:Body>\n</soap:Envelope>")
	return b.String()
}
