// Package security provides entry authentication and signed attestations for yield curves
package security

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

// ErrInvalidSignature is returned when a signature is malformed or signed by the wrong key
var ErrInvalidSignature = errors.New("invalid signature")

// EntryHash returns the keccak256 digest of an entry's canonical encoding.
// Every field is length-prefixed so distinct entries never share an encoding.
func EntryHash(e model.Entry) common.Hash {
	value := ""
	if !e.Value.IsNil() {
		value = e.Value.String()
	}

	var buf []byte
	for _, field := range []string{e.Key, value, e.Publisher, e.Source} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
		buf = append(buf, field...)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.Timestamp))

	return crypto.Keccak256Hash(buf)
}

// SignEntry signs the entry digest with the publisher key, returning a 65-byte [R || S || V] signature
func SignEntry(key *ecdsa.PrivateKey, e model.Entry) ([]byte, error) {
	hash := EntryHash(e)
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign entry: %w", err)
	}
	return sig, nil
}

// RecoverEntrySigner returns the address that produced the signature over the entry
func RecoverEntrySigner(e model.Entry, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	hash := EntryHash(e)
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyEntry checks that the entry was signed by the given address
func VerifyEntry(e model.Entry, sig []byte, signer common.Address) error {
	recovered, err := RecoverEntrySigner(e, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return fmt.Errorf("%w: signed by %s, expected %s", ErrInvalidSignature, recovered.Hex(), signer.Hex())
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed hex signature
func DecodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return sig, nil
}

// Attestation is a payload signed by the service operator key so on-chain consumers can verify it
type Attestation struct {
	Payload   json.RawMessage `json:"payload"`
	Keccak256 string          `json:"keccak256"`
	Signature string          `json:"signature"`
	Signer    string          `json:"signer"`
	Timestamp int64           `json:"timestamp"`
}

// Attestor signs response payloads with the Ethereum signature scheme
type Attestor struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewAttestor creates an attestor from a hex private key. An empty key generates an ephemeral one.
func NewAttestor(hexKey string) (*Attestor, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No attestation key configured, using an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse attestation key: %w", err)
		}
	}

	a := &Attestor{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
	logrus.Infof("Attestor initialized with signer %s", a.address.Hex())
	return a, nil
}

// Address returns the signer address
func (a *Attestor) Address() common.Address {
	return a.address
}

// Attest marshals the payload and signs its keccak256 digest
func (a *Attestor) Attest(payload interface{}) (Attestation, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Attestation{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	hash := crypto.Keccak256Hash(payloadBytes)
	sig, err := crypto.Sign(hash.Bytes(), a.privateKey)
	if err != nil {
		return Attestation{}, fmt.Errorf("failed to sign with Ethereum scheme: %w", err)
	}

	return Attestation{
		Payload:   payloadBytes,
		Keccak256: hash.Hex(),
		Signature: hexutil.Encode(sig),
		Signer:    a.address.Hex(),
		Timestamp: time.Now().Unix(),
	}, nil
}

// VerifyAttestation checks the digest and signature of an attestation
func VerifyAttestation(att Attestation) error {
	hash := crypto.Keccak256Hash(att.Payload)
	if hash.Hex() != att.Keccak256 {
		return fmt.Errorf("keccak256 hash mismatch")
	}

	sig, err := DecodeSignature(att.Signature)
	if err != nil {
		return err
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(att.Signer) {
		return fmt.Errorf("%w: signer mismatch", ErrInvalidSignature)
	}
	return nil
}
