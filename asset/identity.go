package asset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/gep/canonical"
	"xdao.co/gep/cidutil"
)

// Body returns the canonical bytes an asset's identity is computed over:
// every field except asset_id.
func Body(a Asset) ([]byte, error) {
	m := a.Fields()
	delete(m, FieldID)
	return canonical.Marshal(m)
}

// ComputeID returns the asset_id of a. Any asset_id already on a is ignored.
func ComputeID(a Asset) (string, error) {
	body, err := Body(a)
	if err != nil {
		return "", err
	}
	return idOf(body), nil
}

// ComputeIDMap is ComputeID for an asset held as a generic map, such as one
// received from the exchange. m is not modified.
//
// Decode such maps with json.Decoder.UseNumber: a float64 cannot tell 1
// from 1.0, and the two canonicalize differently.
func ComputeIDMap(m map[string]any) (string, error) {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		if k != FieldID {
			cp[k] = v
		}
	}
	body, err := canonical.Marshal(cp)
	if err != nil {
		return "", err
	}
	return idOf(body), nil
}

func idOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether a carries the identity of its own content.
func Verify(a Asset) error {
	if err := CheckID(a.ID); err != nil {
		return err
	}
	want, err := ComputeID(a)
	if err != nil {
		return err
	}
	if want != a.ID {
		return ErrIdentityMismatch
	}
	return nil
}

// CheckID validates the asset_id encoding: 64 lowercase hex characters.
func CheckID(id string) error {
	if len(id) != sha256.Size*2 {
		return ErrMalformedIdentity
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return ErrMalformedIdentity
	}
	return nil
}

// CID returns the CIDv1 (raw + sha2-256) addressing the body of the asset
// with the given asset_id.
func CID(id string) (cid.Cid, error) {
	if err := CheckID(id); err != nil {
		return cid.Undef, err
	}
	return cidutil.FromSHA256Hex(id)
}

// IDFromCID is the inverse of CID.
func IDFromCID(c cid.Cid) (string, error) {
	return cidutil.SHA256Hex(c)
}

// ParseBody decodes a stored body back into an asset and stamps it.
func ParseBody(body []byte) (Asset, error) {
	var a Asset
	if err := json.Unmarshal(body, &a); err != nil {
		return Asset{}, err
	}
	id, err := ComputeID(a)
	if err != nil {
		return Asset{}, err
	}
	if id != idOf(body) {
		return Asset{}, fmt.Errorf("%w: body is not canonical", ErrIdentityMismatch)
	}
	a.ID = id
	return a, nil
}

func decodeObject(b []byte) (map[string]any, error) {
	v, err := decodeAny(b)
	if err != nil || v == nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return m, nil
}

// decodeAny keeps numbers as json.Number so integers and floats re-encode
// exactly as received.
func decodeAny(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
