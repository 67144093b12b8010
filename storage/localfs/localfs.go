package localfs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/gep/cidutil"
	"xdao.co/gep/storage"
)

// Store keeps asset bodies as files under root:
//
//	<root>/<asset_id[:2]>/<asset_id>.json
//
// Files are written once with O_EXCL and never rewritten, so a node's
// archive can be inspected (or compared with another node's) by asset_id.
type Store struct {
	root string
}

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(body []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(body)
	if err != nil {
		return cid.Undef, err
	}
	path, err := s.pathFor(id)
	if err != nil {
		return cid.Undef, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := s.Get(id)
			if rerr != nil || string(existing) != string(body) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(id cid.Cid) bool {
	path, err := s.pathFor(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) pathFor(id cid.Cid) (string, error) {
	if !id.Defined() {
		return "", storage.ErrInvalidCID
	}
	digest, err := cidutil.SHA256Hex(id)
	if err != nil {
		return "", storage.ErrInvalidCID
	}
	return filepath.Join(s.root, digest[:2], digest+".json"), nil
}
