package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"ticketchain-backend/models"
)

// TicketChain ABI - only the functions and events we use
const ticketChainABI = `[
{"inputs":[{"internalType":"string","name":"_name","type":"string"},{"internalType":"string","name":"_location","type":"string"},{"internalType":"uint256","name":"_eventTime","type":"uint256"}],"name":"registerEvent","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"uint256","name":"_eventId","type":"uint256"},{"internalType":"address","name":"_participant","type":"address"}],"name":"checkIn","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"_user","type":"address"}],"name":"getCreditScore","outputs":[{"internalType":"int256","name":"totalScore","type":"int256"},{"internalType":"uint256","name":"lastUpdated","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"_eventId","type":"uint256"}],"name":"getEvent","outputs":[{"components":[{"internalType":"uint256","name":"id","type":"uint256"},{"internalType":"string","name":"name","type":"string"},{"internalType":"string","name":"location","type":"string"},{"internalType":"uint256","name":"eventTime","type":"uint256"},{"internalType":"address","name":"organizer","type":"address"},{"internalType":"bool","name":"exists","type":"bool"}],"internalType":"struct TicketChain.Event","name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"eventId","type":"uint256"},{"indexed":false,"internalType":"string","name":"name","type":"string"},{"indexed":true,"internalType":"address","name":"organizer","type":"address"}],"name":"EventRegistered","type":"event"}
]`

var ErrReadOnly = errors.New("no signing key configured")

// Backend is what TicketChain needs from a node. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// TicketChain wraps the TicketChain smart contract interactions
type TicketChain struct {
	backend Backend
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract

	auth    *bind.TransactOpts
	closeFn func()

	// sendMu serializes transactions from the single signer so nonces do
	// not collide.
	sendMu sync.Mutex
}

// CreditScore is the score the contract keeps for a wallet
type CreditScore struct {
	Wallet      string    `json:"wallet_address"`
	TotalScore  int64     `json:"total_score"`
	LastUpdated time.Time `json:"last_updated"`
}

// ChainEvent is the contract's view of a registered event
type ChainEvent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	EventTime time.Time `json:"event_time"`
	Organizer string    `json:"organizer"`
	Exists    bool      `json:"exists"`
}

// ChainStatus describes the node the mirror talks to
type ChainStatus struct {
	ChainID         string `json:"chain_id"`
	BlockNumber     uint64 `json:"block_number"`
	ContractAddress string `json:"contract_address"`
	Signer          string `json:"signer,omitempty"`
}

// Dial connects to rpcURL and binds the contract at address.
func Dial(ctx context.Context, rpcURL, address, privateKeyHex string) (*TicketChain, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	tc, err := New(ctx, client, address, privateKeyHex)
	if err != nil {
		client.Close()
		return nil, err
	}
	tc.closeFn = client.Close
	return tc, nil
}

// Close releases the node connection opened by Dial.
func (tc *TicketChain) Close() {
	if tc.closeFn != nil {
		tc.closeFn()
	}
}

// CanSign reports whether a signing key is configured.
func (tc *TicketChain) CanSign() bool {
	return tc.auth != nil
}

// New binds the contract at address on backend. With an empty key the
// contract is read-only and writes return ErrReadOnly.
func New(ctx context.Context, backend Backend, address, privateKeyHex string) (*TicketChain, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	parsedABI, err := abi.JSON(strings.NewReader(ticketChainABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse TicketChain ABI: %w", err)
	}

	addr := common.HexToAddress(address)
	tc := &TicketChain{
		backend: backend,
		address: addr,
		abi:     parsedABI,
		bound:   bind.NewBoundContract(addr, parsedABI, backend, backend, backend),
	}

	if privateKeyHex == "" {
		return tc, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if tc.auth, err = newTransactor(key, chainID); err != nil {
		return nil, err
	}
	return tc, nil
}

func newTransactor(key *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// transact sends method and waits for it to be mined successfully.
func (tc *TicketChain) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	if tc.auth == nil {
		return nil, ErrReadOnly
	}
	tc.sendMu.Lock()
	opts := *tc.auth
	opts.Context = ctx
	tx, err := tc.bound.Transact(&opts, method, args...)
	tc.sendMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, tc.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s reverted in tx %s", method, receipt.TxHash.Hex())
	}
	return receipt, nil
}

// RecordEventRegistration calls registerEvent and returns the id emitted in
// the EventRegistered log.
func (tc *TicketChain) RecordEventRegistration(ctx context.Context, name, location string, at time.Time) (*models.ChainReceipt, error) {
	receipt, err := tc.transact(ctx, "registerEvent", name, location, big.NewInt(at.Unix()))
	if err != nil {
		return nil, err
	}
	eventID, err := tc.parseEventRegistered(receipt.Logs)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", receipt.TxHash.Hex(), err)
	}
	return &models.ChainReceipt{
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
		EventID:         &eventID,
	}, nil
}

// RecordCheckIn calls checkIn for the participant's wallet.
func (tc *TicketChain) RecordCheckIn(ctx context.Context, chainEventID int64, wallet string) (*models.ChainReceipt, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}
	receipt, err := tc.transact(ctx, "checkIn", big.NewInt(chainEventID), common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	return &models.ChainReceipt{
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     receipt.BlockNumber.Uint64(),
	}, nil
}

type eventRegisteredLog struct {
	EventId   *big.Int
	Name      string
	Organizer common.Address
}

func (tc *TicketChain) parseEventRegistered(logs []*types.Log) (int64, error) {
	sig := tc.abi.Events["EventRegistered"].ID
	for _, l := range logs {
		if l == nil || l.Address != tc.address || len(l.Topics) == 0 || l.Topics[0] != sig {
			continue
		}
		var ev eventRegisteredLog
		if err := tc.bound.UnpackLog(&ev, "EventRegistered", *l); err != nil {
			return 0, fmt.Errorf("failed to unpack EventRegistered: %w", err)
		}
		if !ev.EventId.IsInt64() {
			return 0, fmt.Errorf("event id %s overflows int64", ev.EventId)
		}
		return ev.EventId.Int64(), nil
	}
	return 0, errors.New("EventRegistered event not found in transaction logs")
}

// call packs a view call, runs it against the latest block and unpacks the
// outputs.
func (tc *TicketChain) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := tc.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data: %w", err)
	}
	result, err := tc.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &tc.address,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	out, err := tc.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	return out, nil
}

// GetCreditScore reads the score the contract holds for wallet.
func (tc *TicketChain) GetCreditScore(ctx context.Context, wallet string) (*CreditScore, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}
	out, err := tc.call(ctx, "getCreditScore", common.HexToAddress(wallet))
	if err != nil {
		return nil, err
	}
	total := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	updated := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	return &CreditScore{
		Wallet:      wallet,
		TotalScore:  total.Int64(),
		LastUpdated: time.Unix(updated.Int64(), 0).UTC(),
	}, nil
}

type eventTuple struct {
	Id        *big.Int
	Name      string
	Location  string
	EventTime *big.Int
	Organizer common.Address
	Exists    bool
}

// GetEvent reads a registered event by its contract id.
func (tc *TicketChain) GetEvent(ctx context.Context, chainEventID int64) (*ChainEvent, error) {
	out, err := tc.call(ctx, "getEvent", big.NewInt(chainEventID))
	if err != nil {
		return nil, err
	}
	ev := *abi.ConvertType(out[0], new(eventTuple)).(*eventTuple)
	return &ChainEvent{
		ID:        ev.Id.Int64(),
		Name:      ev.Name,
		Location:  ev.Location,
		EventTime: time.Unix(ev.EventTime.Int64(), 0).UTC(),
		Organizer: ev.Organizer.Hex(),
		Exists:    ev.Exists,
	}, nil
}

// Status reports the connected chain and the latest block.
func (tc *TicketChain) Status(ctx context.Context) (*ChainStatus, error) {
	chainID, err := tc.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	head, err := tc.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	st := &ChainStatus{
		ChainID:         chainID.String(),
		BlockNumber:     head.Number.Uint64(),
		ContractAddress: tc.address.Hex(),
	}
	if tc.auth != nil {
		st.Signer = tc.auth.From.Hex()
	}
	return st, nil
}
