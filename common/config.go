package common

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

const defaultCircuitsDir = "circuits"
const defaultListenAddr = ":8080"
const defaultNargoPath = "nargo"
const defaultBarretenbergPath = "bb"
const defaultSolcPath = "solc"
const defaultToolchainTimeout = time.Minute * 5
const defaultRPCTimeout = time.Second * 30
const defaultReceiptTimeout = time.Minute * 2

var (
	// Log is the configured logger
	Log *logger.Logger

	// ListenAddr is the host:port the API binds to
	ListenAddr string

	// CircuitsDir is the root of the canonical per-circuit artifact directories
	CircuitsDir string

	// NargoPath is the path to the noir compiler/checker executable
	NargoPath string

	// BarretenbergPath is the path to the proof backend executable
	BarretenbergPath string

	// SolcPath is the path to the solidity compiler executable
	SolcPath string

	// ToolchainTimeout bounds every child process invocation
	ToolchainTimeout time.Duration

	// RPCTimeout bounds each individual chain RPC call
	RPCTimeout time.Duration

	// ReceiptTimeout bounds the post-broadcast wait for a transaction receipt
	ReceiptTimeout time.Duration

	// NetworkEndpoints maps named networks to their RPC endpoints; resolved once
	// at startup and injected into the transaction builder
	NetworkEndpoints map[string]string

	// ConsumeNATSSubscriptions indicates whether this instance runs NATS consumers
	ConsumeNATSSubscriptions bool

	// DispatchNATSNotifications indicates whether lifecycle events are published
	DispatchNATSNotifications bool
)

func init() {
	godotenv.Load()

	requireLogger()
	requireToolchainConfig()
	requireNetworksConfig()
	requireNATSConfig()

	ListenAddr = os.Getenv("API_LISTEN_ADDR")
	if ListenAddr == "" {
		ListenAddr = defaultListenAddr
	}
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("arcana", lvl, endpoint)
}

func requireToolchainConfig() {
	CircuitsDir = os.Getenv("CIRCUITS_DIR")
	if CircuitsDir == "" {
		CircuitsDir = defaultCircuitsDir
	}

	NargoPath = os.Getenv("NARGO_PATH")
	if NargoPath == "" {
		NargoPath = defaultNargoPath
	}

	BarretenbergPath = os.Getenv("BB_PATH")
	if BarretenbergPath == "" {
		BarretenbergPath = defaultBarretenbergPath
	}

	SolcPath = os.Getenv("SOLC_PATH")
	if SolcPath == "" {
		SolcPath = defaultSolcPath
	}

	ToolchainTimeout = secondsOrDefault("TOOLCHAIN_TIMEOUT_SECONDS", defaultToolchainTimeout)
	RPCTimeout = secondsOrDefault("RPC_TIMEOUT_SECONDS", defaultRPCTimeout)
	ReceiptTimeout = secondsOrDefault("RECEIPT_TIMEOUT_SECONDS", defaultReceiptTimeout)
}

// requireNetworksConfig resolves the named network -> RPC endpoint table;
// NETWORKS_JSON fully replaces the defaults when present
func requireNetworksConfig() {
	NetworkEndpoints = map[string]string{
		"sapphire_mainnet": "https://sapphire.oasis.io",
		"sapphire_testnet": "https://testnet.sapphire.oasis.dev",
		"ethereum_mainnet": "https://mainnet.infura.io/v3/YOUR_PROJECT_ID",
		"ethereum_sepolia": "https://rpc.sepolia.org",
	}

	if networksJSON := os.Getenv("NETWORKS_JSON"); networksJSON != "" {
		endpoints := map[string]string{}
		err := json.Unmarshal([]byte(networksJSON), &endpoints)
		if err != nil {
			Log.Panicf("failed to parse NETWORKS_JSON; %s", err.Error())
		}
		NetworkEndpoints = endpoints
	}

	for network, endpoint := range NetworkEndpoints {
		PanicIfEmpty(endpoint, fmt.Sprintf("failed to configure network %s; RPC endpoint is required", network))
	}
}

func requireNATSConfig() {
	ConsumeNATSSubscriptions = boolEnv("CONSUME_NATS_SUBSCRIPTIONS")
	DispatchNATSNotifications = boolEnv("DISPATCH_NATS_NOTIFICATIONS")
}

func secondsOrDefault(envvar string, fallback time.Duration) time.Duration {
	if val := os.Getenv(envvar); val != "" {
		seconds, err := strconv.Atoi(val)
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		Log.Warningf("failed to parse %s; using default", envvar)
	}
	return fallback
}

func boolEnv(envvar string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(envvar))
	return err == nil && parsed
}
