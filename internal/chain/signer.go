package chain

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ECDSASigner is the concrete TxSigner: an in-process private key signing
// London-format (post-EIP-1559) transactions. K_dst itself — where the
// key material comes from (file, Vault, HSM) — is out of scope (§1);
// this only wraps whatever *ecdsa.PrivateKey the caller already loaded.
type ECDSASigner struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

func NewECDSASigner(key *ecdsa.PrivateKey, chainID *big.Int) *ECDSASigner {
	return &ECDSASigner{key: key, chainID: chainID}
}

func (s *ECDSASigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *ECDSASigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signer := types.NewLondonSigner(s.chainID)
	return types.SignTx(tx, signer, s.key)
}
