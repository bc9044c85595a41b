package wsfe

import (
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/xmltag"
)

// ExpirationFallback is added to now when the authorization expiration date
// cannot be parsed
const ExpirationFallback = 10 * 24 * time.Hour

// ExpirationLayout is the compact date format of CAEFchVto
const ExpirationLayout = "20060102"

// Result values
const (
	ResultApproved = "A"
	ResultRejected = "R"
	ResultPartial  = "P"
)

// DuplicateCode is the observation WSFEv1 reports for an already authorized voucher
const DuplicateCode = "10016"

// Placeholders used when an observation lacks one of its fields
const (
	MissingCode    = "observation without Code"
	MissingMessage = "observation without Msg"
)

// ResponseTags names the elements read from a response
type ResponseTags struct {
	Result       string
	AuthCode     string
	Expiration   string
	Observations string
	Observation  string
	Errors       string
	Error        string
	Code         string
	Message      string
}

// DefaultTags are the FECAESolicitar response elements
var DefaultTags = ResponseTags{
	Result:       "Resultado",
	AuthCode:     "CAE",
	Expiration:   "CAEFchVto",
	Observations: "Observaciones",
	Observation:  "Obs",
	Errors:       "Errors",
	Error:        "Err",
	Code:         "Code",
	Message:      "Msg",
}

// ParseResponse interprets a FECAESolicitar response using DefaultTags
func ParseResponse(body string, now time.Time) (*model.DomainResult, error) {
	return DefaultTags.Parse(body, now)
}

// Parse interprets a response body. now is only used for the expiration
// fallback, in which case ExpirationAssumed is set on the result.
func (t ResponseTags) Parse(body string, now time.Time) (*model.DomainResult, error) {
	if isFault(body) {
		return nil, parseFault(body)
	}

	observations := t.observations(body)

	result, ok := xmltag.FindFirst(body, t.Result)
	if !ok {
		return nil, model.NewMalformedResponse(t.Result, nil)
	}

	if strings.TrimSpace(result) == ResultRejected {
		return nil, rejection(observations)
	}

	code, ok := xmltag.FindFirst(body, t.AuthCode)
	if !ok {
		return nil, model.NewMalformedResponse(t.AuthCode, nil)
	}
	rawExp, ok := xmltag.FindFirst(body, t.Expiration)
	if !ok {
		return nil, model.NewMalformedResponse(t.Expiration, nil)
	}

	out := &model.DomainResult{
		AuthorizationCode: strings.TrimSpace(code),
		Observations:      observations,
	}

	exp, err := time.ParseInLocation(ExpirationLayout, strings.TrimSpace(rawExp), model.AuthorityZone)
	if err != nil {
		out.Expiration = now.Add(ExpirationFallback).UTC()
		out.ExpirationAssumed = true
	} else {
		out.Expiration = exp.UTC()
	}

	return out, nil
}

func (t ResponseTags) observations(body string) []model.Observation {
	var out []model.Observation

	collect := func(container, item string) {
		inner, ok := xmltag.FindFirst(body, container)
		if !ok {
			return
		}
		for _, el := range xmltag.FindAll(inner, item) {
			out = append(out, model.Observation{
				Code:    xmltag.FindFirstOr(el, t.Code, MissingCode),
				Message: xmltag.FindFirstOr(el, t.Message, MissingMessage),
			})
		}
	}

	collect(t.Observations, t.Observation)
	collect(t.Errors, t.Error)
	return out
}

func rejection(observations []model.Observation) error {
	for _, obs := range observations {
		if obs.Code == DuplicateCode {
			return model.NewRemoteFault(obs.Code, obs.Message)
		}
	}
	if len(observations) > 0 {
		return model.NewRemoteFault(observations[0].Code, observations[0].Message)
	}
	return model.NewRemoteFault("###", "rejected, reason unknown")
}

func isFault(body string) bool {
	return xmltag.Contains(body, "soap:Fault") ||
		xmltag.Contains(body, "soapenv:Fault") ||
		xmltag.Contains(body, "faultcode")
}

// parseFault reads a SOAP 1.1 fault lexically and falls back to the SOAP 1.2
// Code/Value and Reason/Text elements, whose attributes defeat the extractor.
func parseFault(body string) error {
	code := strings.TrimSpace(xmltag.FindFirstOr(body, "faultcode", ""))
	message := strings.TrimSpace(xmltag.FindFirstOr(body, "faultstring", ""))
	if code != "" || message != "" {
		return model.NewRemoteFault(code, message)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return model.NewRemoteFault("", "")
	}
	if el := doc.FindElement("//Fault/Code/Value"); el != nil {
		code = strings.TrimSpace(el.Text())
	}
	if el := doc.FindElement("//Fault/Reason/Text"); el != nil {
		message = strings.TrimSpace(el.Text())
	}
	return model.NewRemoteFault(code, message)
}
