package circuit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcanaplatform/arcana/store"
	"github.com/arcanaplatform/arcana/store/providers"
	"github.com/arcanaplatform/arcana/toolchain"
)

const testManifest = "[package]\nname = \"noir\"\ntype = \"bin\"\n"
const testSource = "fn main(x: Field, y: pub Field) {\n    assert(x != y);\n}\n"

type stubToolchain struct {
	checkErr   error
	compileErr error

	compileStarted chan struct{}
	compileRelease chan struct{}
}

func (s *stubToolchain) Check(ctx context.Context, workdir string) error {
	return s.checkErr
}

func (s *stubToolchain) Compile(ctx context.Context, workdir string) (*toolchain.CompiledArtifacts, error) {
	if s.compileStarted != nil {
		s.compileStarted <- struct{}{}
		<-s.compileRelease
	}
	if s.compileErr != nil {
		return nil, s.compileErr
	}

	if err := os.MkdirAll(filepath.Join(workdir, "target"), 0o755); err != nil {
		return nil, err
	}
	circuitPath := filepath.Join(workdir, "target", "noir.json")
	if err := os.WriteFile(circuitPath, []byte(`{"abi":{}}`), 0o644); err != nil {
		return nil, err
	}
	return &toolchain.CompiledArtifacts{CircuitPath: circuitPath}, nil
}

func (s *stubToolchain) Execute(ctx context.Context, workdir string) (*toolchain.WitnessArtifact, error) {
	witnessPath := filepath.Join(workdir, "target", "noir.gz")
	if err := os.WriteFile(witnessPath, []byte("witness"), 0o644); err != nil {
		return nil, err
	}
	return &toolchain.WitnessArtifact{Path: witnessPath}, nil
}

type stubBackend struct{}

func (s *stubBackend) WriteVerificationKey(ctx context.Context, circuitPath, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	keyPath := filepath.Join(outputDir, "vk")
	if err := os.WriteFile(keyPath, []byte("vkbytes"), 0o644); err != nil {
		return "", err
	}
	return keyPath, nil
}

func (s *stubBackend) WriteVerifierSource(ctx context.Context, verificationKeyPath, outputPath string) (string, error) {
	source := "contract Verifier {}"
	if err := os.WriteFile(outputPath, []byte(source), 0o644); err != nil {
		return "", err
	}
	return source, nil
}

func (s *stubBackend) Prove(ctx context.Context, circuitPath, witnessPath, outputDir string) ([]byte, error) {
	return []byte("proofbytes"), nil
}

type stubContracts struct {
	err      error
	bytecode string
}

func (s *stubContracts) Compile(ctx context.Context, source string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.bytecode != "" {
		return s.bytecode, nil
	}
	return "6001600101", nil
}

func testManager(t *testing.T) (*Manager, *store.Store, *stubToolchain, *stubContracts) {
	artifacts, err := store.InitStore(providers.ArtifactProviderFilesystem, t.TempDir())
	require.NoError(t, err)

	tc := &stubToolchain{}
	contracts := &stubContracts{}
	return InitManager(artifacts, tc, &stubBackend{}, contracts), artifacts, tc, contracts
}

func TestRegister(t *testing.T) {
	manager, _, _, _ := testManager(t)

	circuit, err := manager.Register(context.Background(), "range_check", testManifest, testSource, "range proof", "sapphire_testnet")
	require.NoError(t, err)
	assert.Equal(t, "range_check", circuit.CircuitID)
	assert.Equal(t, CircuitStatusRegistered, circuit.Status)
	assert.Equal(t, uint64(0), circuit.ProofCount)
	assert.Nil(t, circuit.VerifierAddress)
	assert.Equal(t, "sapphire_testnet", circuit.Network)
}

func TestRegisterRejectsInvalidCircuitID(t *testing.T) {
	manager, _, _, _ := testManager(t)

	for _, id := range []string{"", "-leading", "has space", "has/slash", "../escape"} {
		_, err := manager.Register(context.Background(), id, testManifest, testSource, "", "sapphire_testnet")
		var registration *RegistrationError
		require.True(t, errors.As(err, &registration), "expected registration error for %q", id)
	}
}

func TestRegisterTearsDownInvalidCircuit(t *testing.T) {
	manager, artifacts, tc, _ := testManager(t)
	tc.checkErr = &toolchain.ToolError{Tool: "nargo", Stage: toolchain.StageCheck, Diagnostic: "unknown identifier"}

	_, err := manager.Register(context.Background(), "broken", testManifest, "fn main() { nope }", "", "sapphire_testnet")
	require.Error(t, err)

	var toolErr *toolchain.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "validation_error", toolErr.Kind())

	_, err = artifacts.Get("broken")
	var notFound *providers.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestRegisterReplacesCompiledCircuit(t *testing.T) {
	manager, artifacts, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	_, err = manager.CompileAndPublish(context.Background(), "alpha")
	require.NoError(t, err)

	record, err := artifacts.Get("alpha")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(record.Path, "target", "verifier.sol"))
	require.NoError(t, err)

	circuit, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusRegistered, circuit.Status)

	// stale compiled output must not survive re-registration
	_, err = os.Stat(filepath.Join(record.Path, "target"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompileAndPublish(t *testing.T) {
	manager, artifacts, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	circuit, err := manager.CompileAndPublish(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusCompiled, circuit.Status)

	record, err := artifacts.Get("alpha")
	require.NoError(t, err)
	for _, artifact := range []string{
		filepath.Join("target", "noir.json"),
		filepath.Join("target", "vk", "vk"),
		filepath.Join("target", "verifier.sol"),
	} {
		_, err = os.Stat(filepath.Join(record.Path, artifact))
		assert.NoError(t, err, artifact)
	}
}

func TestCompileFailureLeavesCanonicalDirUntouched(t *testing.T) {
	manager, artifacts, _, contracts := testManager(t)
	contracts.err = &toolchain.ToolError{Tool: "solc", Stage: toolchain.StageContractCompile, Diagnostic: "ParserError"}

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	_, err = manager.CompileAndPublish(context.Background(), "alpha")
	require.Error(t, err)

	record, err := artifacts.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusRegistered, record.Metadata.Status)

	_, err = os.Stat(filepath.Join(record.Path, "target"))
	assert.True(t, os.IsNotExist(err))
}

func TestCompileInProgressGuard(t *testing.T) {
	manager, _, tc, _ := testManager(t)
	tc.compileStarted = make(chan struct{}, 1)
	tc.compileRelease = make(chan struct{})

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := manager.CompileAndPublish(context.Background(), "alpha")
		done <- err
	}()

	<-tc.compileStarted

	_, err = manager.CompileAndPublish(context.Background(), "alpha")
	var inProgress *CompileInProgressError
	require.True(t, errors.As(err, &inProgress))
	assert.Equal(t, "compile_in_progress", inProgress.Kind())

	close(tc.compileRelease)
	require.NoError(t, <-done)

	// the guard clears once the running compilation completes
	tc.compileStarted = nil
	_, err = manager.CompileAndPublish(context.Background(), "alpha")
	require.NoError(t, err)
}

func TestCompileAbortsWhenCircuitReplacedMidCompile(t *testing.T) {
	manager, artifacts, tc, _ := testManager(t)
	tc.compileStarted = make(chan struct{}, 1)
	tc.compileRelease = make(chan struct{})

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := manager.CompileAndPublish(context.Background(), "alpha")
		done <- err
	}()

	<-tc.compileStarted

	// a full replacement lands while the compilation is still staging
	tc.compileStarted = nil
	_, err = manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	close(tc.compileRelease)
	err = <-done
	var violation *InvariantViolationError
	require.True(t, errors.As(err, &violation))

	// the stale compilation must not publish into the fresh registration
	record, err := artifacts.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusRegistered, record.Metadata.Status)
	_, err = os.Stat(filepath.Join(record.Path, "target"))
	assert.True(t, os.IsNotExist(err))
}

func TestMarkDeployed(t *testing.T) {
	manager, _, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	circuit, err := manager.MarkDeployed("alpha", "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusDeployed, circuit.Status)
	require.NotNil(t, circuit.VerifierAddress)

	// marking the same address again is a no-op
	circuit, err = manager.MarkDeployed("alpha", "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusDeployed, circuit.Status)

	// a differing address is a conflict and must not overwrite
	_, err = manager.MarkDeployed("alpha", "0xabc0000000000000000000000000000000000002")
	var conflict *InvariantViolationError
	require.True(t, errors.As(err, &conflict))

	circuit, err = manager.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", *circuit.VerifierAddress)
}

func TestCompilePreservesDeployedStatus(t *testing.T) {
	manager, _, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	_, err = manager.MarkDeployed("alpha", "0xabc0000000000000000000000000000000000001")
	require.NoError(t, err)

	circuit, err := manager.CompileAndPublish(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, CircuitStatusDeployed, circuit.Status)
}

func TestRecordProofConcurrent(t *testing.T) {
	const workers = 16

	manager, _, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.RecordProof("alpha")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	circuit, err := manager.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, uint64(workers), circuit.ProofCount)
}

func TestVerifierBytecodeRequiresCompilation(t *testing.T) {
	manager, _, _, _ := testManager(t)

	_, err := manager.Register(context.Background(), "alpha", testManifest, testSource, "", "sapphire_testnet")
	require.NoError(t, err)

	_, err = manager.VerifierBytecode(context.Background(), "alpha")
	var violation *InvariantViolationError
	require.True(t, errors.As(err, &violation))

	_, err = manager.CompileAndPublish(context.Background(), "alpha")
	require.NoError(t, err)

	bytecode, err := manager.VerifierBytecode(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "6001600101", bytecode)
}

func TestGetNotFound(t *testing.T) {
	manager, _, _, _ := testManager(t)

	_, err := manager.Get("missing")
	var notFound *providers.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestList(t *testing.T) {
	manager, _, _, _ := testManager(t)

	for i := 0; i < 3; i++ {
		_, err := manager.Register(context.Background(), fmt.Sprintf("circuit-%d", i), testManifest, testSource, "", "sapphire_testnet")
		require.NoError(t, err)
	}

	circuits, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, circuits, 3)
}
