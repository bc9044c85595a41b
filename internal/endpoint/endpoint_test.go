package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/arca-auth/internal/model"
)

func TestURL(t *testing.T) {
	u, err := URL(model.ServiceWSAA, model.EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, "https://wsaa.afip.gov.ar/ws/services/LoginCms", u)

	u, err = URL(model.ServiceWSAA, model.EnvTesting)
	require.NoError(t, err)
	assert.Equal(t, "https://wsaahomo.afip.gov.ar/ws/services/LoginCms", u)

	for _, svc := range []model.Service{model.ServiceWSFE, model.ServiceWSFEX, model.ServiceWSMTXCA} {
		prod, err := URL(svc, model.EnvProduction)
		require.NoError(t, err)
		homo, err := URL(svc, model.EnvTesting)
		require.NoError(t, err)
		assert.NotEqual(t, prod, homo, svc)
	}

	_, err = URL("padron", model.EnvTesting)
	assert.Error(t, err)
	assert.Panics(t, func() { MustURL("padron", model.EnvTesting) })
}
