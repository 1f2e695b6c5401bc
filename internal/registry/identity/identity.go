// Package identity derives the content hash that names a certificate.
//
// The five credential fields are ABI-encoded as the tuple
// (string firstName, string lastName, string organizationName,
// uint256 issueDate, uint256 expirationDate) and hashed with Keccak-256.
// Strings are length-prefixed in the encoding, so field boundaries can never
// be shifted to produce a collision ("Jo"+"hnDoe" vs "John"+"Doe").
// Any verifier that encodes the same tuple the same way recomputes the same
// identity.
package identity

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "certregistry/pkg/domain-errors"
)

// Size is the byte length of an identity.
const Size = 32

// Identity is the Keccak-256 digest of a certificate's encoded fields.
type Identity [Size]byte

// Zero is the unset identity.
var Zero Identity

// Fields are the hash inputs. Timestamps are whole seconds since the Unix epoch.
type Fields struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
	IssueDate        int64  `json:"issue_date"`
	ExpirationDate   int64  `json:"expiration_date"`
}

var tupleArgs = mustArguments("string", "string", "string", "uint256", "uint256")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, name := range types {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("identity: abi type %q: %v", name, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// Encode returns the canonical byte encoding of f. The 64-bit timestamps are
// widened as unsigned words, so a negative value encodes its two's-complement
// bit pattern rather than failing.
func Encode(f Fields) []byte {
	packed, err := tupleArgs.Pack(
		f.FirstName,
		f.LastName,
		f.OrganizationName,
		new(big.Int).SetUint64(uint64(f.IssueDate)),
		new(big.Int).SetUint64(uint64(f.ExpirationDate)),
	)
	if err != nil {
		// Pack only fails on type mismatches, which the fixed argument list rules out.
		panic(fmt.Sprintf("identity: pack fields: %v", err))
	}
	return packed
}

// Derive computes the identity of f. It is pure and total.
func Derive(f Fields) Identity {
	return Identity(crypto.Keccak256Hash(Encode(f)))
}

// IsZero reports whether id is unset.
func (id Identity) IsZero() bool {
	return id == Zero
}

// String renders id as 0x-prefixed lowercase hex.
func (id Identity) String() string {
	return hexutil.Encode(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse reads a 64-digit hex identity, with or without the 0x prefix.
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return Zero, dErrors.Wrap(err, dErrors.CodeInvalidInput, "identity must be hex encoded")
	}
	if len(raw) != Size {
		return Zero, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("identity must be %d bytes", Size))
	}
	var id Identity
	copy(id[:], raw)
	return id, nil
}
