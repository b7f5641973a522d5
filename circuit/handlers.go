package circuit

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	provide "github.com/provideplatform/provide-go/common"

	"github.com/arcanaplatform/arcana/common"
	"github.com/arcanaplatform/arcana/prover"
	"github.com/arcanaplatform/arcana/tx"
)

const defaultNetwork = "sapphire_testnet"

// transaction types accepted by the broadcast endpoint
const (
	transactionTypeDeployment   = "deployment"
	transactionTypeVerification = "verification"
)

type registerCircuitRequest struct {
	CircuitID   string `json:"circuit_id"`
	NargoToml   string `json:"nargo_toml"`
	MainNr      string `json:"main_nr"`
	Description string `json:"description"`
	Network     string `json:"network"`
}

type deployRequest struct {
	UserAddress string `json:"user_address"`
	Network     string `json:"network"`
}

type proofRequest struct {
	Inputs          map[string]interface{} `json:"inputs"`
	PublicInputs    []*big.Int             `json:"public_inputs"`
	VerifierAddress string                 `json:"verifier_address"`
	UserAddress     string                 `json:"user_address"`
	Network         string                 `json:"network"`
}

type broadcastRequest struct {
	SignedTransaction string `json:"signed_transaction"`
	TransactionType   string `json:"transaction_type"`
	Network           string `json:"network"`
}

// API exposes circuit lifecycle, proof generation and transaction endpoints
type API struct {
	manager *Manager
	prover  *prover.Prover
	builder *tx.Builder
}

// InstallAPI installs the API routes on the given router
func InstallAPI(r *gin.Engine, manager *Manager, prv *prover.Prover, builder *tx.Builder) {
	api := &API{
		manager: manager,
		prover:  prv,
		builder: builder,
	}

	r.GET("/", api.statusHandler)
	r.GET("/api/v1/status", api.statusHandler)
	r.GET("/api/v1/circuits", api.listCircuitsHandler)
	r.POST("/api/v1/circuits", api.registerCircuitHandler)
	r.GET("/api/v1/circuits/:id", api.circuitDetailsHandler)
	r.POST("/api/v1/circuits/:id/compile", api.compileCircuitHandler)
	r.POST("/api/v1/circuits/:id/deploy", api.deployCircuitHandler)
	r.POST("/api/v1/circuits/:id/prove", api.proveCircuitHandler)
	r.POST("/api/v1/circuits/:id/broadcast", api.broadcastHandler)
}

func (api *API) statusHandler(c *gin.Context) {
	circuits, err := api.manager.List()
	if err != nil {
		renderError(c, err)
		return
	}

	var proofs uint64
	var deployed int
	for _, circuit := range circuits {
		proofs += circuit.ProofCount
		if circuit.Status == CircuitStatusDeployed {
			deployed++
		}
	}

	provide.Render(map[string]interface{}{
		"status":            "ok",
		"circuits":          len(circuits),
		"proofs_generated":  proofs,
		"circuits_deployed": deployed,
		"networks":          api.builder.Networks(),
	}, 200, c)
}

func (api *API) listCircuitsHandler(c *gin.Context) {
	circuits, err := api.manager.List()
	if err != nil {
		renderError(c, err)
		return
	}
	provide.Render(circuits, 200, c)
}

func (api *API) circuitDetailsHandler(c *gin.Context) {
	circuit, err := api.manager.Get(c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	provide.Render(circuit, 200, c)
}

func (api *API) registerCircuitHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &registerCircuitRequest{}
	err = json.Unmarshal(buf, params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if params.Network == "" {
		params.Network = defaultNetwork
	}

	circuit, err := api.manager.Register(c.Request.Context(), params.CircuitID, params.NargoToml, params.MainNr, params.Description, params.Network)
	if err != nil {
		renderError(c, err)
		return
	}

	provide.Render(circuit, 201, c)
}

func (api *API) compileCircuitHandler(c *gin.Context) {
	circuit, err := api.manager.CompileAndPublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	provide.Render(circuit, 200, c)
}

func (api *API) deployCircuitHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &deployRequest{}
	err = json.Unmarshal(buf, params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if params.UserAddress == "" {
		provide.RenderError("user_address is required", 422, c)
		return
	}

	circuitID := c.Param("id")
	circuit, err := api.manager.Get(circuitID)
	if err != nil {
		renderError(c, err)
		return
	}

	network := params.Network
	if network == "" {
		network = circuit.Network
	}

	bytecode, err := api.manager.VerifierBytecode(c.Request.Context(), circuitID)
	if err != nil {
		renderError(c, err)
		return
	}

	transaction, err := api.builder.BuildDeployment(c.Request.Context(), network, params.UserAddress, bytecode)
	if err != nil {
		renderError(c, err)
		return
	}

	provide.Render(map[string]interface{}{
		"circuit_id":  circuitID,
		"transaction": transaction,
	}, 200, c)
}

func (api *API) proveCircuitHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &proofRequest{}
	err = json.Unmarshal(buf, params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	circuitID := c.Param("id")
	circuit, err := api.manager.Get(circuitID)
	if err != nil {
		renderError(c, err)
		return
	}

	proof, err := api.prover.Generate(c.Request.Context(), circuitID, params.Inputs)
	if err != nil {
		renderError(c, err)
		return
	}

	circuit, err = api.manager.RecordProof(circuitID)
	if err != nil {
		renderError(c, err)
		return
	}

	response := map[string]interface{}{
		"proof":       proof,
		"proof_size":  len(proof.Raw),
		"proof_count": circuit.ProofCount,
	}

	// a verification transaction is constructed only when a verifier address
	// is known and the caller identified the signing account
	verifierAddress := params.VerifierAddress
	if verifierAddress == "" && circuit.VerifierAddress != nil {
		verifierAddress = *circuit.VerifierAddress
	}

	if verifierAddress != "" && params.UserAddress != "" {
		network := params.Network
		if network == "" {
			network = circuit.Network
		}

		calldata, err := tx.CallData(proof.Raw, params.PublicInputs)
		if err != nil {
			renderError(c, err)
			return
		}

		transaction, err := api.builder.BuildCall(c.Request.Context(), network, params.UserAddress, verifierAddress, calldata)
		if err != nil {
			renderError(c, err)
			return
		}

		response["transaction"] = transaction
	}

	provide.Render(response, 200, c)
}

func (api *API) broadcastHandler(c *gin.Context) {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), 400, c)
		return
	}

	params := &broadcastRequest{}
	err = json.Unmarshal(buf, params)
	if err != nil {
		provide.RenderError(err.Error(), 422, c)
		return
	}

	if params.SignedTransaction == "" {
		provide.RenderError("signed_transaction is required", 422, c)
		return
	}
	if params.TransactionType != transactionTypeDeployment && params.TransactionType != transactionTypeVerification {
		provide.RenderError("transaction_type must be deployment or verification", 422, c)
		return
	}

	circuitID := c.Param("id")
	circuit, err := api.manager.Get(circuitID)
	if err != nil {
		renderError(c, err)
		return
	}

	network := params.Network
	if network == "" {
		network = circuit.Network
	}

	result, err := api.builder.Broadcast(c.Request.Context(), network, params.SignedTransaction)
	if err != nil {
		renderError(c, err)
		return
	}

	if params.TransactionType == transactionTypeDeployment && result.Success && result.ContractAddress != nil {
		circuit, err = api.manager.MarkDeployed(circuitID, *result.ContractAddress)
		if err != nil {
			renderError(c, err)
			return
		}
	}

	provide.Render(map[string]interface{}{
		"result":  result,
		"circuit": circuit,
	}, 200, c)
}

// renderError resolves the machine-readable kind of the given error and maps
// it onto an HTTP status
func renderError(c *gin.Context, err error) {
	kind := errKind(err)
	provide.Render(map[string]interface{}{
		"kind":    kind,
		"message": err.Error(),
	}, statusForKind(kind), c)
}

func errKind(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if kinded, kindedOk := e.(interface{ Kind() string }); kindedOk {
			return kinded.Kind()
		}
	}
	return "internal_error"
}

func statusForKind(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "invariant_violation", "compile_in_progress":
		return http.StatusConflict
	case "validation_error", "compile_error", "execution_error", "registration_error":
		return http.StatusUnprocessableEntity
	case "chain_error":
		return http.StatusBadGateway
	default:
		common.Log.Debugf("mapping error kind %s to internal server error", kind)
		return http.StatusInternalServerError
	}
}
