package circuit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanaplatform/arcana/prover"
	"github.com/arcanaplatform/arcana/store"
	"github.com/arcanaplatform/arcana/store/providers"
	"github.com/arcanaplatform/arcana/toolchain"
	"github.com/arcanaplatform/arcana/tx"
)

func testRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	artifacts, err := store.InitStore(providers.ArtifactProviderFilesystem, t.TempDir())
	require.NoError(t, err)

	tc := &stubToolchain{}
	backend := &stubBackend{}
	manager := InitManager(artifacts, tc, backend, &stubContracts{})
	prv := prover.InitProver(artifacts, tc, backend)
	builder := tx.InitBuilder(map[string]string{"sapphire_testnet": "http://localhost:8545"})

	r := gin.New()
	InstallAPI(r, manager, prv, builder)
	return r
}

func performRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, 200, w.Code)

	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
	assert.Contains(t, response["networks"], "sapphire_testnet")
}

func TestRegisterEndpoint(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "alpha",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 201, w.Code)

	registered := &Circuit{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), registered))
	assert.Equal(t, "alpha", registered.CircuitID)
	assert.Equal(t, CircuitStatusRegistered, registered.Status)
	assert.Equal(t, defaultNetwork, registered.Network)

	w = performRequest(r, http.MethodGet, "/api/v1/circuits/alpha", nil)
	assert.Equal(t, 200, w.Code)

	w = performRequest(r, http.MethodGet, "/api/v1/circuits", nil)
	require.Equal(t, 200, w.Code)
	circuits := []*Circuit{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &circuits))
	assert.Len(t, circuits, 1)
}

func TestRegisterEndpointRejectsInvalidID(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "../escape",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 422, w.Code)

	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "registration_error", response["kind"])
}

func TestCircuitNotFoundMapsTo404(t *testing.T) {
	r := testRouter(t)

	for _, probe := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/circuits/missing"},
		{http.MethodPost, "/api/v1/circuits/missing/compile"},
	} {
		w := performRequest(r, probe.method, probe.path, map[string]interface{}{})
		require.Equal(t, 404, w.Code, probe.path)

		response := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "not_found", response["kind"])
	}
}

func TestCompileEndpoint(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "alpha",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 201, w.Code)

	w = performRequest(r, http.MethodPost, "/api/v1/circuits/alpha/compile", map[string]interface{}{})
	require.Equal(t, 200, w.Code)

	compiled := &Circuit{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), compiled))
	assert.Equal(t, CircuitStatusCompiled, compiled.Status)
}

func TestProveEndpoint(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "alpha",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 201, w.Code)

	w = performRequest(r, http.MethodPost, "/api/v1/circuits/alpha/prove", map[string]interface{}{
		"inputs": map[string]interface{}{"x": 5, "y": 10},
	})
	require.Equal(t, 200, w.Code)

	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Contains(t, response, "proof")
	assert.Equal(t, float64(1), response["proof_count"])
	assert.NotContains(t, response, "transaction")
}

func TestBroadcastEndpointValidatesTransactionType(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "alpha",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 201, w.Code)

	w = performRequest(r, http.MethodPost, "/api/v1/circuits/alpha/broadcast", map[string]interface{}{
		"signed_transaction": "0xdeadbeef",
		"transaction_type":   "transfer",
	})
	assert.Equal(t, 422, w.Code)
}

func TestDeployEndpointRequiresCompilation(t *testing.T) {
	r := testRouter(t)

	w := performRequest(r, http.MethodPost, "/api/v1/circuits", map[string]interface{}{
		"circuit_id": "alpha",
		"nargo_toml": testManifest,
		"main_nr":    testSource,
	})
	require.Equal(t, 201, w.Code)

	w = performRequest(r, http.MethodPost, "/api/v1/circuits/alpha/deploy", map[string]interface{}{
		"user_address": "0x00000000000000000000000000000000000000a1",
	})
	require.Equal(t, 409, w.Code)

	response := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "invariant_violation", response["kind"])
}

func TestErrKindResolution(t *testing.T) {
	assert.Equal(t, "not_found", errKind(&providers.NotFoundError{CircuitID: "x"}))
	assert.Equal(t, "validation_error", errKind(&toolchain.ToolError{Stage: toolchain.StageCheck}))
	assert.Equal(t, "internal_error", errKind(fmt.Errorf("opaque")))

	// the kind surfaces through wrapping
	wrapped := fmt.Errorf("context; %w", &providers.NotFoundError{CircuitID: "x"})
	assert.Equal(t, "not_found", errKind(wrapped))
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, 404, statusForKind("not_found"))
	assert.Equal(t, 409, statusForKind("invariant_violation"))
	assert.Equal(t, 409, statusForKind("compile_in_progress"))
	assert.Equal(t, 422, statusForKind("validation_error"))
	assert.Equal(t, 422, statusForKind("compile_error"))
	assert.Equal(t, 502, statusForKind("chain_error"))
	assert.Equal(t, 500, statusForKind("storage_error"))
	assert.Equal(t, 500, statusForKind("internal_error"))
}
