package common

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58/base58"

	dcommon "github.com/rexbrahh/ix-decoder/decoder/common"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// TxMeta carries the per-transaction context stamped onto every event
// decoded from it.
type TxMeta struct {
	Slot      uint64
	Signature string
	TxIndex   uint64
	Failed    bool
	CuUsed    uint64
	// AccountKeys holds static keys followed by loaded writable and loaded
	// readonly addresses, which is the order compiled indices refer to.
	AccountKeys []solana.PublicKey
}

// ConvertTxMeta extracts TxMeta from a Yellowstone transaction update.
// Returns nil when the transaction, message or metadata is missing.
func ConvertTxMeta(tx *pb.SubscribeUpdateTransaction) (*TxMeta, error) {
	if tx == nil {
		return nil, nil
	}
	info := tx.GetTransaction()
	if info == nil {
		return nil, nil
	}
	meta := info.GetMeta()
	message := info.GetTransaction().GetMessage()
	if meta == nil || message == nil {
		return nil, nil
	}

	keys, err := AccountKeysFromBytes(message.GetAccountKeys(), meta.GetLoadedWritableAddresses(), meta.GetLoadedReadonlyAddresses())
	if err != nil {
		return nil, err
	}

	signature := info.GetSignature()
	if len(signature) == 0 {
		if sigs := info.GetTransaction().GetSignatures(); len(sigs) > 0 {
			signature = sigs[0]
		}
	}

	return &TxMeta{
		Slot:        tx.GetSlot(),
		Signature:   base58.Encode(signature),
		TxIndex:     info.GetIndex(),
		Failed:      meta.GetErr() != nil,
		CuUsed:      meta.GetComputeUnitsConsumed(),
		AccountKeys: keys,
	}, nil
}

// AccountKeysFromBytes concatenates raw 32-byte key lists in order.
func AccountKeysFromBytes(lists ...[][]byte) ([]solana.PublicKey, error) {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	keys := make([]solana.PublicKey, 0, total)
	for _, l := range lists {
		for _, raw := range l {
			if len(raw) != solana.PublicKeyLength {
				return nil, fmt.Errorf("%w: account key %d has length %d", dcommon.ErrMalformedInput, len(keys), len(raw))
			}
			keys = append(keys, solana.PublicKeyFromBytes(raw))
		}
	}
	return keys, nil
}
