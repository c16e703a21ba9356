package invoice

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Init payloads travel as ABI-encoded tuples so external callers can build
// them without sharing Go types. The field order is part of the template
// contract and must not change.

var (
	abiAddress = mustABIType("address")
	abiUint8   = mustABIType("uint8")
	abiUint256 = mustABIType("uint256")
	abiBytes32 = mustABIType("bytes32")
	abiBool    = mustABIType("bool")

	baseInitArgs = abi.Arguments{
		{Name: "client", Type: abiAddress},
		{Name: "resolverType", Type: abiUint8},
		{Name: "resolver", Type: abiAddress},
		{Name: "token", Type: abiAddress},
		{Name: "terminationTime", Type: abiUint256},
		{Name: "detailsHash", Type: abiBytes32},
		{Name: "wrappedNativeToken", Type: abiAddress},
		{Name: "requireVerification", Type: abiBool},
		{Name: "factory", Type: abiAddress},
	}

	splitInitArgs = append(append(abi.Arguments{}, baseInitArgs...), abi.Arguments{
		{Name: "clientReceiver", Type: abiAddress},
		{Name: "providerReceiver", Type: abiAddress},
		{Name: "dao", Type: abiAddress},
		{Name: "daoFee", Type: abiUint256},
	}...)

	updatableInitArgs = append(append(abi.Arguments{}, baseInitArgs...), abi.Arguments{
		{Name: "providerReceiver", Type: abiAddress},
	}...)
)

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// BaseInit carries the decoded init tuple shared by every template family.
type BaseInit struct {
	Client              [20]byte
	ResolverType        ResolverType
	Resolver            [20]byte
	Token               [20]byte
	TerminationTime     int64
	DetailsHash         [32]byte
	WrappedNative       [20]byte
	RequireVerification bool
	Factory             [20]byte
}

// SplitInit extends the base tuple with receivers and the DAO fee split.
type SplitInit struct {
	BaseInit
	ClientReceiver   [20]byte
	ProviderReceiver [20]byte
	DAO              [20]byte
	DAOFee           uint32
}

// UpdatableInit extends the base tuple with a provider payout receiver.
type UpdatableInit struct {
	BaseInit
	ProviderReceiver [20]byte
}

// EncodeBaseInit packs the base init tuple.
func EncodeBaseInit(p BaseInit) ([]byte, error) {
	return baseInitArgs.Pack(
		common.Address(p.Client),
		uint8(p.ResolverType),
		common.Address(p.Resolver),
		common.Address(p.Token),
		big.NewInt(p.TerminationTime),
		p.DetailsHash,
		common.Address(p.WrappedNative),
		p.RequireVerification,
		common.Address(p.Factory),
	)
}

// EncodeSplitInit packs the split-escrow init tuple.
func EncodeSplitInit(p SplitInit) ([]byte, error) {
	return splitInitArgs.Pack(
		common.Address(p.Client),
		uint8(p.ResolverType),
		common.Address(p.Resolver),
		common.Address(p.Token),
		big.NewInt(p.TerminationTime),
		p.DetailsHash,
		common.Address(p.WrappedNative),
		p.RequireVerification,
		common.Address(p.Factory),
		common.Address(p.ClientReceiver),
		common.Address(p.ProviderReceiver),
		common.Address(p.DAO),
		new(big.Int).SetUint64(uint64(p.DAOFee)),
	)
}

// EncodeUpdatableInit packs the updatable-escrow init tuple.
func EncodeUpdatableInit(p UpdatableInit) ([]byte, error) {
	return updatableInitArgs.Pack(
		common.Address(p.Client),
		uint8(p.ResolverType),
		common.Address(p.Resolver),
		common.Address(p.Token),
		big.NewInt(p.TerminationTime),
		p.DetailsHash,
		common.Address(p.WrappedNative),
		p.RequireVerification,
		common.Address(p.Factory),
		common.Address(p.ProviderReceiver),
	)
}

func decodeBaseValues(values []interface{}) (BaseInit, error) {
	var out BaseInit
	if len(values) < len(baseInitArgs) {
		return out, fmt.Errorf("invoice: init tuple too short: %d values", len(values))
	}
	client, ok := values[0].(common.Address)
	if !ok {
		return out, fmt.Errorf("invoice: init client field malformed")
	}
	resolverType, ok := values[1].(uint8)
	if !ok {
		return out, fmt.Errorf("invoice: init resolverType field malformed")
	}
	resolver, ok := values[2].(common.Address)
	if !ok {
		return out, fmt.Errorf("invoice: init resolver field malformed")
	}
	token, ok := values[3].(common.Address)
	if !ok {
		return out, fmt.Errorf("invoice: init token field malformed")
	}
	termination, ok := values[4].(*big.Int)
	if !ok || !termination.IsInt64() {
		return out, fmt.Errorf("invoice: init terminationTime field malformed")
	}
	details, ok := values[5].([32]byte)
	if !ok {
		return out, fmt.Errorf("invoice: init detailsHash field malformed")
	}
	wrapped, ok := values[6].(common.Address)
	if !ok {
		return out, fmt.Errorf("invoice: init wrappedNativeToken field malformed")
	}
	requireVerification, ok := values[7].(bool)
	if !ok {
		return out, fmt.Errorf("invoice: init requireVerification field malformed")
	}
	factory, ok := values[8].(common.Address)
	if !ok {
		return out, fmt.Errorf("invoice: init factory field malformed")
	}
	out = BaseInit{
		Client:              client,
		ResolverType:        ResolverType(resolverType),
		Resolver:            resolver,
		Token:               token,
		TerminationTime:     termination.Int64(),
		DetailsHash:         details,
		WrappedNative:       wrapped,
		RequireVerification: requireVerification,
		Factory:             factory,
	}
	return out, nil
}

// DecodeBaseInit unpacks a base-escrow init payload.
func DecodeBaseInit(data []byte) (BaseInit, error) {
	values, err := baseInitArgs.Unpack(data)
	if err != nil {
		return BaseInit{}, fmt.Errorf("invoice: decode init: %w", err)
	}
	return decodeBaseValues(values)
}

// DecodeSplitInit unpacks a split-escrow init payload.
func DecodeSplitInit(data []byte) (SplitInit, error) {
	values, err := splitInitArgs.Unpack(data)
	if err != nil {
		return SplitInit{}, fmt.Errorf("invoice: decode split init: %w", err)
	}
	base, err := decodeBaseValues(values)
	if err != nil {
		return SplitInit{}, err
	}
	clientReceiver, ok := values[9].(common.Address)
	if !ok {
		return SplitInit{}, fmt.Errorf("invoice: init clientReceiver field malformed")
	}
	providerReceiver, ok := values[10].(common.Address)
	if !ok {
		return SplitInit{}, fmt.Errorf("invoice: init providerReceiver field malformed")
	}
	dao, ok := values[11].(common.Address)
	if !ok {
		return SplitInit{}, fmt.Errorf("invoice: init dao field malformed")
	}
	daoFee, ok := values[12].(*big.Int)
	if !ok || !daoFee.IsUint64() || daoFee.Uint64() > 10_000 {
		return SplitInit{}, fmt.Errorf("invoice: init daoFee field malformed")
	}
	return SplitInit{
		BaseInit:         base,
		ClientReceiver:   clientReceiver,
		ProviderReceiver: providerReceiver,
		DAO:              dao,
		DAOFee:           uint32(daoFee.Uint64()),
	}, nil
}

// DecodeUpdatableInit unpacks an updatable-escrow init payload.
func DecodeUpdatableInit(data []byte) (UpdatableInit, error) {
	values, err := updatableInitArgs.Unpack(data)
	if err != nil {
		return UpdatableInit{}, fmt.Errorf("invoice: decode updatable init: %w", err)
	}
	base, err := decodeBaseValues(values)
	if err != nil {
		return UpdatableInit{}, err
	}
	providerReceiver, ok := values[9].(common.Address)
	if !ok {
		return UpdatableInit{}, fmt.Errorf("invoice: init providerReceiver field malformed")
	}
	return UpdatableInit{BaseInit: base, ProviderReceiver: providerReceiver}, nil
}
