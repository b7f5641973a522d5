package circuit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/arcanaplatform/arcana/common"
	"github.com/arcanaplatform/arcana/store"
	"github.com/arcanaplatform/arcana/store/providers"
	"github.com/arcanaplatform/arcana/toolchain"
)

// circuit lifecycle statuses
const (
	// CircuitStatusRegistered source accepted and validated
	CircuitStatusRegistered = "registered"

	// CircuitStatusCompiled artifacts and verifier contract published
	CircuitStatusCompiled = "compiled"

	// CircuitStatusDeployed verifier contract deployment recorded
	CircuitStatusDeployed = "deployed"
)

const targetDirname = "target"
const verifierSourceFilename = "verifier.sol"
const verificationKeyDirname = "vk"

var circuitIDRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Circuit is the API representation of a registered circuit
type Circuit struct {
	CircuitID       string    `json:"circuit_id"`
	Description     *string   `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
	LastModified    time.Time `json:"last_modified"`
	Status          string    `json:"status"`
	VerifierAddress *string   `json:"verifier_address"`
	ProofCount      uint64    `json:"proof_count"`
	Network         string    `json:"network"`
}

func circuitFromRecord(record *providers.CircuitRecord) *Circuit {
	return &Circuit{
		CircuitID:       record.CircuitID,
		Description:     record.Metadata.Description,
		CreatedAt:       record.Metadata.CreatedAt,
		LastModified:    record.Metadata.LastModified,
		Status:          record.Metadata.Status,
		VerifierAddress: record.Metadata.VerifierAddress,
		ProofCount:      record.Metadata.ProofCount,
		Network:         record.Metadata.Network,
	}
}

// Manager orchestrates the circuit lifecycle across the artifact store, the
// circuit toolchain, the proof backend and the contract compiler
type Manager struct {
	store     *store.Store
	toolchain toolchain.CircuitToolchain
	backend   toolchain.ProofBackend
	contracts toolchain.ContractCompiler

	compiling sync.Map
}

// InitManager initializes and configures a new circuit lifecycle Manager instance
func InitManager(
	artifacts *store.Store,
	circuitToolchain toolchain.CircuitToolchain,
	backend toolchain.ProofBackend,
	contracts toolchain.ContractCompiler,
) *Manager {
	return &Manager{
		store:     artifacts,
		toolchain: circuitToolchain,
		backend:   backend,
		contracts: contracts,
	}
}

// Register stores the circuit source and manifest, fully replacing any prior
// circuit registered under the same id, then validates the source; a circuit
// that fails validation is torn down and never left behind in the store
func (m *Manager) Register(ctx context.Context, circuitID, manifest, source, description, network string) (*Circuit, error) {
	if !circuitIDRegexp.MatchString(circuitID) {
		return nil, &RegistrationError{CircuitID: circuitID, Detail: "circuit id must match ^[A-Za-z0-9][A-Za-z0-9_-]*$"}
	}
	if source == "" {
		return nil, &RegistrationError{CircuitID: circuitID, Detail: "circuit source is required"}
	}
	if manifest == "" {
		return nil, &RegistrationError{CircuitID: circuitID, Detail: "circuit manifest is required"}
	}

	now := time.Now().UTC()
	record, err := m.store.Put(circuitID, manifest, source, &providers.Metadata{
		Description:  common.StringOrNil(description),
		CreatedAt:    now,
		LastModified: now,
		Status:       CircuitStatusRegistered,
		Network:      network,
	})
	if err != nil {
		return nil, err
	}

	if record.Path != "" {
		if err := m.toolchain.Check(ctx, record.Path); err != nil {
			common.Log.Warningf("failed to validate circuit %s; tearing down registration; %s", circuitID, err.Error())
			if teardownErr := m.store.Delete(circuitID); teardownErr != nil {
				common.Log.Warningf("failed to tear down invalid circuit %s; %s", circuitID, teardownErr.Error())
			}
			return nil, err
		}
	}

	common.Log.Debugf("registered circuit %s on network %s", circuitID, network)
	dispatchNotification(natsCircuitRegisteredSubject, circuitFromRecord(record))
	return circuitFromRecord(record), nil
}

// CompileAndPublish compiles the circuit, derives its verification key,
// generates and compiles the verifier contract, and only then publishes the
// artifacts into the canonical circuit directory; a failure or timeout at any
// stage leaves the canonical directory untouched
func (m *Manager) CompileAndPublish(ctx context.Context, circuitID string) (*Circuit, error) {
	if _, loaded := m.compiling.LoadOrStore(circuitID, true); loaded {
		return nil, &CompileInProgressError{CircuitID: circuitID}
	}
	defer m.compiling.Delete(circuitID)

	record, err := m.store.Get(circuitID)
	if err != nil {
		return nil, err
	}
	if record.Path == "" {
		return nil, &InvariantViolationError{Detail: fmt.Sprintf("circuit %s has no durable artifact directory", circuitID)}
	}

	scratch, err := os.MkdirTemp("", "arcana-compile-")
	if err != nil {
		return nil, &providers.StorageError{Op: "compile staging", Err: err}
	}
	defer os.RemoveAll(scratch)

	if err := common.CopyDir(record.Path, scratch); err != nil {
		return nil, &providers.StorageError{Op: "compile staging", Err: err}
	}

	artifacts, err := m.toolchain.Compile(ctx, scratch)
	if err != nil {
		return nil, err
	}

	keyPath, err := m.backend.WriteVerificationKey(ctx, artifacts.CircuitPath, filepath.Join(scratch, targetDirname, verificationKeyDirname))
	if err != nil {
		return nil, err
	}

	verifierSource, err := m.backend.WriteVerifierSource(ctx, keyPath, filepath.Join(scratch, targetDirname, verifierSourceFilename))
	if err != nil {
		return nil, err
	}

	// the verifier contract must compile before the artifacts are published
	if _, err := m.contracts.Compile(ctx, verifierSource); err != nil {
		return nil, err
	}

	// publish inside the metadata mutator so the canonical directory mutation
	// and the status advance land together under the per-circuit lock; a
	// concurrent re-registration cannot interleave with either
	metadata, err := m.store.UpdateMetadata(circuitID, func(metadata *providers.Metadata) error {
		if !metadata.CreatedAt.Equal(record.Metadata.CreatedAt) {
			return &InvariantViolationError{Detail: fmt.Sprintf("circuit %s was re-registered during compilation", circuitID)}
		}
		if err := m.publishTarget(record.Path, filepath.Join(scratch, targetDirname)); err != nil {
			return err
		}
		if metadata.Status != CircuitStatusDeployed {
			metadata.Status = CircuitStatusCompiled
		}
		metadata.LastModified = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.Log.Debugf("compiled circuit %s", circuitID)
	circuit := circuitFromRecord(&providers.CircuitRecord{CircuitID: circuitID, Path: record.Path, Metadata: *metadata})
	dispatchNotification(natsCircuitCompiledSubject, circuit)
	return circuit, nil
}

// publishTarget replaces the canonical target directory with the staged one;
// the staged copy lands beside the canonical directory first so the final
// rename never crosses a filesystem boundary
func (m *Manager) publishTarget(circuitPath, stagedTarget string) error {
	pending := filepath.Join(circuitPath, targetDirname+".pending")
	if err := os.RemoveAll(pending); err != nil {
		return &providers.StorageError{Op: "publish artifacts", Err: err}
	}

	if err := common.CopyDir(stagedTarget, pending); err != nil {
		os.RemoveAll(pending)
		return &providers.StorageError{Op: "publish artifacts", Err: err}
	}

	canonical := filepath.Join(circuitPath, targetDirname)
	if err := os.RemoveAll(canonical); err != nil {
		os.RemoveAll(pending)
		return &providers.StorageError{Op: "publish artifacts", Err: err}
	}

	if err := os.Rename(pending, canonical); err != nil {
		os.RemoveAll(pending)
		return &providers.StorageError{Op: "publish artifacts", Err: err}
	}

	return nil
}

// VerifierBytecode compiles the published verifier contract source into
// deployable bytecode; the circuit must have been compiled first
func (m *Manager) VerifierBytecode(ctx context.Context, circuitID string) (string, error) {
	record, err := m.store.Get(circuitID)
	if err != nil {
		return "", err
	}
	if record.Metadata.Status == CircuitStatusRegistered || record.Path == "" {
		return "", &InvariantViolationError{Detail: fmt.Sprintf("circuit %s has not been compiled", circuitID)}
	}

	sourcePath := filepath.Join(record.Path, targetDirname, verifierSourceFilename)
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", &InvariantViolationError{Detail: fmt.Sprintf("verifier contract source for circuit %s is missing", circuitID)}
	}

	return m.contracts.Compile(ctx, string(source))
}

// MarkDeployed records the verifier contract address for the circuit; marking
// the same address again is a no-op, while a differing address is a conflict
// and aborts without writing
func (m *Manager) MarkDeployed(circuitID, verifierAddress string) (*Circuit, error) {
	if verifierAddress == "" {
		return nil, &RegistrationError{CircuitID: circuitID, Detail: "verifier address is required"}
	}

	metadata, err := m.store.UpdateMetadata(circuitID, func(metadata *providers.Metadata) error {
		if metadata.VerifierAddress != nil {
			if *metadata.VerifierAddress == verifierAddress {
				return nil
			}
			return &InvariantViolationError{
				Detail: fmt.Sprintf("circuit %s is already deployed at %s", circuitID, *metadata.VerifierAddress),
			}
		}

		metadata.VerifierAddress = common.StringOrNil(verifierAddress)
		metadata.Status = CircuitStatusDeployed
		metadata.LastModified = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	circuit := circuitFromRecord(&providers.CircuitRecord{CircuitID: circuitID, Metadata: *metadata})
	dispatchNotification(natsCircuitDeployedSubject, circuit)
	return circuit, nil
}

// RecordProof increments the circuit proof counter after a successful proof
// generation; concurrent completions never lose increments
func (m *Manager) RecordProof(circuitID string) (*Circuit, error) {
	metadata, err := m.store.UpdateMetadata(circuitID, func(metadata *providers.Metadata) error {
		metadata.ProofCount++
		metadata.LastModified = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	circuit := circuitFromRecord(&providers.CircuitRecord{CircuitID: circuitID, Metadata: *metadata})
	dispatchNotification(natsCircuitProofSubject, circuit)
	return circuit, nil
}

// Get returns the circuit registered under the given id
func (m *Manager) Get(circuitID string) (*Circuit, error) {
	record, err := m.store.Get(circuitID)
	if err != nil {
		return nil, err
	}
	return circuitFromRecord(record), nil
}

// List returns all registered circuits
func (m *Manager) List() ([]*Circuit, error) {
	records, err := m.store.List()
	if err != nil {
		return nil, err
	}

	circuits := make([]*Circuit, 0, len(records))
	for _, record := range records {
		circuits = append(circuits, circuitFromRecord(record))
	}
	return circuits, nil
}
