package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/gep/asset"
)

// BundleVersion is the current bundle index schema version.
const BundleVersion = 1

const (
	bundleAssetDir = "assets/"
	bundleIndex    = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

type bundleIndexJSON struct {
	Version int                `json:"version"`
	Assets  []bundleIndexEntry `json:"assets"`
}

type bundleIndexEntry struct {
	AssetID string     `json:"asset_id"`
	Type    asset.Type `json:"asset_type"`
	Size    int        `json:"size"`
}

// Export writes a deterministic TAR bundle of the given archived assets:
// one assets/<asset_id>.json entry per asset followed by index.json.
// With no ids, every asset listed by IDs is exported.
func (a *Archive) Export(w io.Writer, ids ...string) error {
	if len(ids) == 0 {
		ids = a.IDs()
	}
	uniq := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	tw := tar.NewWriter(w)
	idx := bundleIndexJSON{Version: BundleVersion, Assets: make([]bundleIndexEntry, 0, len(sorted))}
	for _, id := range sorted {
		as, err := a.Get(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		body, err := asset.Body(as)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeEntry(tw, bundleAssetDir+id+".json", body); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Assets = append(idx.Assets, bundleIndexEntry{AssetID: id, Type: as.Type, Size: len(body)})
	}

	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeEntry(tw, bundleIndex, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

// Import reads a bundle produced by Export and records every asset in it.
// Each entry's body must hash to the asset_id in its file name. Unknown
// entries are an error. It returns the imported asset_ids in bundle order.
func (a *Archive) Import(r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []string

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("archive: invalid bundle entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			return imported, fmt.Errorf("archive: unexpected bundle entry type %v (%s)", h.Typeflag, name)
		}
		if name == bundleIndex {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		if !strings.HasPrefix(name, bundleAssetDir) || !strings.HasSuffix(name, ".json") {
			return imported, fmt.Errorf("archive: unknown bundle entry: %s", name)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, bundleAssetDir), ".json")
		if err := asset.CheckID(id); err != nil {
			return imported, fmt.Errorf("archive: bundle entry %s: %w", name, err)
		}
		if _, dup := seen[id]; dup {
			return imported, fmt.Errorf("archive: duplicate bundle entry: %s", id)
		}
		seen[id] = struct{}{}

		body, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		as, err := asset.ParseBody(body)
		if err != nil {
			return imported, fmt.Errorf("archive: bundle entry %s: %w", name, err)
		}
		if as.ID != id {
			return imported, fmt.Errorf("archive: bundle entry %s: %w", name, asset.ErrIdentityMismatch)
		}
		if err := a.Record(as); err != nil {
			return imported, err
		}
		imported = append(imported, id)
	}
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
