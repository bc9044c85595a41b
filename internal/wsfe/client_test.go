package wsfe_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rezonia/arca-auth/internal/model"
	"github.com/rezonia/arca-auth/internal/wsaa"
	"github.com/rezonia/arca-auth/internal/wsfe"
)

type countingRequester struct {
	calls atomic.Int32
	exp   time.Time
}

func (r *countingRequester) RequestTicket(_ context.Context, _ model.Service, creds model.CredentialBundle) (*model.AuthTicket, error) {
	r.calls.Add(1)
	return &model.AuthTicket{TenantID: creds.TenantID, Token: "TKN", Sign: "SGN", Expiration: r.exp}, nil
}

var now = time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)

func source(tenantID int64) wsaa.CredentialSource {
	return wsaa.CredentialSourceFunc(func(context.Context) (*model.CredentialBundle, error) {
		return &model.CredentialBundle{TenantID: tenantID}, nil
	})
}

func setup(t *testing.T, handler http.HandlerFunc, opts ...wsfe.ClientOption) (*wsfe.Client, *countingRequester) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClockAt(now)
	req := &countingRequester{exp: now.Add(12 * time.Hour)}
	tickets := wsaa.NewTicketCache(req, wsaa.WithCacheClock(clock))

	base := []wsfe.ClientOption{wsfe.WithEndpoint(srv.URL), wsfe.WithClock(clock)}
	return wsfe.NewClient(model.EnvTesting, tickets, append(base, opts...)...), req
}

const approved = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult><FeCabResp><Resultado>A</Resultado></FeCabResp><FeDetResp><FECAEDetResponse><Resultado>A</Resultado><CAE>75023456789012</CAE><CAEFchVto>%s</CAEFchVto></FECAEDetResponse></FeDetResp></FECAESolicitarResult></FECAESolicitarResponse></soap:Body></soap:Envelope>`

func approvedWith(exp string) string {
	return fmt.Sprintf(approved, exp)
}

func TestClient_CallAuthenticated(t *testing.T) {
	id := model.ServiceIdentity{TenantID: 20123456789, Service: model.ServiceWSFE}

	client, req := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wsfe.ContentType, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<ar:Token>TKN</ar:Token>")
		assert.Contains(t, string(body), "<ar:Cuit>20123456789</ar:Cuit>")
		assert.Contains(t, string(body), "<ar:FeCAEReq/>")
		_, _ = w.Write([]byte(approvedWith("20250115")))
	})

	for i := 0; i < 2; i++ {
		result, err := client.CallAuthenticated(context.Background(), id, "<ar:FeCAEReq/>", source(id.TenantID))
		require.NoError(t, err)
		assert.Equal(t, "75023456789012", result.AuthorizationCode)
		assert.Equal(t, time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC), result.Expiration)
	}

	assert.Equal(t, int32(1), req.calls.Load(), "second call must reuse the cached ticket")
}

func TestClient_PrepareRequest(t *testing.T) {
	var hits atomic.Int32
	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, wsfe.WithOperation("FECompUltimoAutorizado"))

	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}
	prepared, err := client.PrepareRequest(context.Background(), id, "<ar:PtoVta>1</ar:PtoVta>", source(1))
	require.NoError(t, err)

	assert.Equal(t, "FECompUltimoAutorizado", prepared.Operation)
	assert.Equal(t, id, prepared.Identity)
	assert.Contains(t, prepared.Envelope, "<ar:FECompUltimoAutorizado>")
	assert.Contains(t, prepared.Envelope, "<ar:Auth>")
	assert.Equal(t, int32(0), hits.Load(), "prepare must not send")
}

func TestClient_ExpirationFallbackIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(approvedWith("15/01/2025")))
	}, wsfe.WithLogger(zap.New(core)))

	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}
	result, err := client.CallAuthenticated(context.Background(), id, "", source(1))
	require.NoError(t, err)

	assert.True(t, result.ExpirationAssumed)
	assert.Equal(t, now.Add(wsfe.ExpirationFallback), result.Expiration)
	assert.Equal(t, 1, logs.FilterMessageSnippet("expiration").Len())
}

func TestClient_CallAuthenticated_Errors(t *testing.T) {
	id := model.ServiceIdentity{TenantID: 1, Service: model.ServiceWSFE}

	t.Run("rejected", func(t *testing.T) {
		client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<Resultado>R</Resultado><Observaciones><Obs><Code>10016</Code><Msg>duplicate</Msg></Obs></Observaciones>`))
		})

		_, err := client.CallAuthenticated(context.Background(), id, "", source(1))
		var fault *model.RemoteFault
		require.True(t, errors.As(err, &fault))
		assert.Equal(t, "10016", fault.Code)
		assert.Equal(t, "duplicate", fault.Message)
	})

	t.Run("server error without fault", func(t *testing.T) {
		client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		})

		_, err := client.CallAuthenticated(context.Background(), id, "", source(1))
		var transport *model.TransportError
		require.True(t, errors.As(err, &transport), "got %v", err)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, wsfe.WithTimeout(50*time.Millisecond))
		defer close(release)

		_, err := client.CallAuthenticated(context.Background(), id, "", source(1))
		assert.True(t, model.IsRetryable(err), "got %v", err)
	})

	t.Run("no credentials", func(t *testing.T) {
		var hits atomic.Int32
		client, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		})
		empty := wsaa.CredentialSourceFunc(func(context.Context) (*model.CredentialBundle, error) {
			return nil, nil
		})

		_, err := client.CallAuthenticated(context.Background(), id, "", empty)
		assert.True(t, model.IsFatal(err))
		assert.Equal(t, int32(0), hits.Load())
	})
}
