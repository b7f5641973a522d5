/*
 * Copyright 2023-2025 Arcana Labs, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tx

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/arcanaplatform/arcana/common"
)

const defaultCallGasLimit = uint64(500000)
const defaultDeployGasLimit = uint64(2000000)
const receiptPollInterval = time.Second * 2

// UnsignedTransaction is a fully-populated transaction awaiting an external
// signature; it is never signed or submitted by this service
type UnsignedTransaction struct {
	From     string        `json:"from"`
	To       *string       `json:"to,omitempty"`
	Nonce    uint64        `json:"nonce"`
	Gas      uint64        `json:"gas"`
	GasPrice *hexutil.Big  `json:"gas_price"`
	Value    *hexutil.Big  `json:"value"`
	Data     hexutil.Bytes `json:"data"`
	Network  string        `json:"network"`
}

// BroadcastResult describes the mined outcome of a broadcast transaction
type BroadcastResult struct {
	TransactionHash string  `json:"transaction_hash"`
	Success         bool    `json:"success"`
	GasUsed         uint64  `json:"gas_used"`
	BlockNumber     uint64  `json:"block_number"`
	ContractAddress *string `json:"contract_address,omitempty"`
}

// ChainClient is the subset of the ethclient surface the builder depends on
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
	Close()
}

// Dialer resolves a ChainClient for the given RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

// Builder constructs unsigned verification and deployment transactions and
// broadcasts externally-signed ones against the configured networks
type Builder struct {
	networks       map[string]string
	dial           Dialer
	rpcTimeout     time.Duration
	receiptTimeout time.Duration
}

// InitBuilder initializes and configures a new transaction Builder instance
// against the given named network -> RPC endpoint table
func InitBuilder(networks map[string]string) *Builder {
	return &Builder{
		networks: networks,
		dial: func(ctx context.Context, rpcURL string) (ChainClient, error) {
			return ethclient.DialContext(ctx, rpcURL)
		},
		rpcTimeout:     common.RPCTimeout,
		receiptTimeout: common.ReceiptTimeout,
	}
}

// InitBuilderWithDialer initializes a Builder resolving chain clients through
// the given dialer instead of dialing RPC endpoints directly
func InitBuilderWithDialer(networks map[string]string, dial Dialer) *Builder {
	builder := InitBuilder(networks)
	builder.dial = dial
	return builder
}

// Networks returns the configured network names in sorted order
func (b *Builder) Networks() []string {
	names := make([]string, 0, len(b.networks))
	for name := range b.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallData encodes verifier calldata as the raw proof bytes followed by each
// public input as a 32-byte big-endian word
func CallData(proof []byte, publicInputs []*big.Int) ([]byte, error) {
	data := make([]byte, 0, len(proof)+len(publicInputs)*32)
	data = append(data, proof...)

	for i, input := range publicInputs {
		if input == nil {
			return nil, &EncodingError{Detail: fmt.Sprintf("public input %d is nil", i)}
		}
		if input.Sign() < 0 {
			return nil, &EncodingError{Detail: fmt.Sprintf("public input %d is negative", i)}
		}
		if input.BitLen() > 256 {
			return nil, &EncodingError{Detail: fmt.Sprintf("public input %d exceeds 256 bits", i)}
		}

		var word [32]byte
		input.FillBytes(word[:])
		data = append(data, word[:]...)
	}

	return data, nil
}

// BuildCall constructs an unsigned verification call transaction against the
// deployed verifier contract; a failed gas estimation propagates rather than
// silently keeping the default gas limit
func (b *Builder) BuildCall(ctx context.Context, network, userAddress, verifierAddress string, calldata []byte) (*UnsignedTransaction, error) {
	if !ethcommon.IsHexAddress(userAddress) {
		return nil, &EncodingError{Detail: fmt.Sprintf("invalid user address: %s", userAddress)}
	}
	if !ethcommon.IsHexAddress(verifierAddress) {
		return nil, &EncodingError{Detail: fmt.Sprintf("invalid verifier address: %s", verifierAddress)}
	}

	from := ethcommon.HexToAddress(userAddress)
	to := ethcommon.HexToAddress(verifierAddress)

	return b.build(ctx, network, from, &to, calldata, defaultCallGasLimit)
}

// BuildDeployment constructs an unsigned contract creation transaction
// carrying the compiled verifier bytecode
func (b *Builder) BuildDeployment(ctx context.Context, network, userAddress, bytecode string) (*UnsignedTransaction, error) {
	if !ethcommon.IsHexAddress(userAddress) {
		return nil, &EncodingError{Detail: fmt.Sprintf("invalid user address: %s", userAddress)}
	}

	data, err := hex.DecodeString(strings.TrimPrefix(bytecode, "0x"))
	if err != nil {
		return nil, &EncodingError{Detail: fmt.Sprintf("invalid contract bytecode; %s", err.Error())}
	}

	from := ethcommon.HexToAddress(userAddress)
	return b.build(ctx, network, from, nil, data, defaultDeployGasLimit)
}

func (b *Builder) build(ctx context.Context, network string, from ethcommon.Address, to *ethcommon.Address, data []byte, defaultGasLimit uint64) (*UnsignedTransaction, error) {
	client, err := b.connect(ctx, network)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	callCtx, cancel := context.WithTimeout(ctx, b.rpcTimeout)
	defer cancel()

	nonce, err := client.PendingNonceAt(callCtx, from)
	if err != nil {
		return nil, &ChainError{Network: network, Detail: "failed to resolve account nonce", Retryable: true, err: err}
	}

	gasPrice, err := client.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, &ChainError{Network: network, Detail: "failed to resolve gas price", Retryable: true, err: err}
	}

	// the default gas limit caps the estimation; the estimate always wins and
	// an estimation failure propagates instead of silently keeping the default
	gas, err := client.EstimateGas(callCtx, ethereum.CallMsg{
		From:     from,
		To:       to,
		Gas:      defaultGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return nil, &ChainError{Network: network, Detail: "failed to estimate gas", Retryable: true, err: err}
	}

	transaction := &UnsignedTransaction{
		From:     from.Hex(),
		Nonce:    nonce,
		Gas:      gas,
		GasPrice: (*hexutil.Big)(gasPrice),
		Value:    (*hexutil.Big)(big.NewInt(0)),
		Data:     data,
		Network:  network,
	}
	if to != nil {
		transaction.To = common.StringOrNil(to.Hex())
	}

	return transaction, nil
}

// Broadcast submits an externally-signed transaction and waits for its
// receipt; transient receipt lookup failures are retried until the receipt
// timeout elapses
func (b *Builder) Broadcast(ctx context.Context, network, signedTransaction string) (*BroadcastResult, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(signedTransaction, "0x"))
	if err != nil {
		return nil, &EncodingError{Detail: fmt.Sprintf("invalid signed transaction encoding; %s", err.Error())}
	}

	transaction := new(types.Transaction)
	if err := transaction.UnmarshalBinary(raw); err != nil {
		return nil, &EncodingError{Detail: fmt.Sprintf("failed to decode signed transaction; %s", err.Error())}
	}

	client, err := b.connect(ctx, network)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	sendCtx, cancel := context.WithTimeout(ctx, b.rpcTimeout)
	err = client.SendTransaction(sendCtx, transaction)
	cancel()
	if err != nil {
		return nil, &ChainError{Network: network, Detail: "failed to send signed transaction", Retryable: true, err: err}
	}

	txHash := transaction.Hash()
	common.Log.Debugf("broadcast transaction %s on network %s", txHash.Hex(), network)

	receipt, err := b.awaitReceipt(ctx, network, client, txHash)
	if err != nil {
		return nil, err
	}

	result := &BroadcastResult{
		TransactionHash: txHash.Hex(),
		Success:         receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed:         receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if transaction.To() == nil {
		result.ContractAddress = common.StringOrNil(receipt.ContractAddress.Hex())
	}

	return result, nil
}

func (b *Builder) awaitReceipt(ctx context.Context, network string, client ChainClient, txHash ethcommon.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(b.receiptTimeout)

	for {
		callCtx, cancel := context.WithTimeout(ctx, b.rpcTimeout)
		receipt, err := client.TransactionReceipt(callCtx, txHash)
		cancel()

		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && err != ethereum.NotFound {
			common.Log.Debugf("failed to resolve receipt for transaction %s; %s", txHash.Hex(), err.Error())
		}

		if time.Now().After(deadline) {
			return nil, &ChainError{
				Network:   network,
				Detail:    fmt.Sprintf("timed out awaiting receipt for transaction %s", txHash.Hex()),
				Retryable: true,
			}
		}

		select {
		case <-ctx.Done():
			return nil, &ChainError{Network: network, Detail: "receipt wait canceled", Retryable: true, err: ctx.Err()}
		case <-time.After(receiptPollInterval):
		}
	}
}

func (b *Builder) connect(ctx context.Context, network string) (ChainClient, error) {
	endpoint, endpointOk := b.networks[network]
	if !endpointOk {
		return nil, &ChainError{Network: network, Detail: fmt.Sprintf("unsupported network: %s", network)}
	}

	dialCtx, cancel := context.WithTimeout(ctx, b.rpcTimeout)
	defer cancel()

	client, err := b.dial(dialCtx, endpoint)
	if err != nil {
		return nil, &ChainError{Network: network, Detail: "failed to connect to RPC endpoint", Retryable: true, err: err}
	}

	return client, nil
}
