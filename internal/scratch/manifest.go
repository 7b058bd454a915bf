package scratch

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ManifestEntryName is the archive entry holding the raw manifest bytes.
const ManifestEntryName = "project.json"

// Manifest is a validated project.json. Raw is kept verbatim for the archive.
type Manifest struct {
	Raw     []byte
	targets []target
}

type target struct {
	costumes []AssetKey
	sounds   []AssetKey
}

type manifestDoc struct {
	Targets *[]json.RawMessage `json:"targets"`
}

type targetDoc struct {
	Costumes *[]assetDoc `json:"costumes"`
	Sounds   *[]assetDoc `json:"sounds"`
}

// assetDoc covers both manifest variants: a combined md5ext field, or an
// assetId/dataFormat pair.
type assetDoc struct {
	MD5Ext     string `json:"md5ext"`
	AssetID    string `json:"assetId"`
	DataFormat string `json:"dataFormat"`
}

// ParseManifest validates raw and extracts every asset key. Syntactically
// invalid JSON is a KindManifestFetch error; valid JSON without the expected
// targets/costumes/sounds shape is KindMalformedManifest.
func ParseManifest(raw []byte) (Manifest, error) {
	if !json.Valid(raw) {
		return Manifest{}, NewError(KindManifestFetch, "", errors.New("manifest is not valid JSON"))
	}
	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Manifest{}, NewError(KindMalformedManifest, "", fmt.Errorf("decode manifest: %w", err))
	}
	if doc.Targets == nil {
		return Manifest{}, NewError(KindMalformedManifest, "", errors.New("manifest has no targets array"))
	}

	targets := make([]target, 0, len(*doc.Targets))
	for i, rawTarget := range *doc.Targets {
		t, err := parseTarget(i, rawTarget)
		if err != nil {
			return Manifest{}, err
		}
		targets = append(targets, t)
	}
	return Manifest{Raw: raw, targets: targets}, nil
}

func parseTarget(index int, raw json.RawMessage) (target, error) {
	var doc targetDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return target{}, NewError(KindMalformedManifest, "", fmt.Errorf("decode target %d: %w", index, err))
	}
	costumes, err := assetKeys(index, "costumes", doc.Costumes)
	if err != nil {
		return target{}, err
	}
	sounds, err := assetKeys(index, "sounds", doc.Sounds)
	if err != nil {
		return target{}, err
	}
	return target{costumes: costumes, sounds: sounds}, nil
}

func assetKeys(index int, list string, docs *[]assetDoc) ([]AssetKey, error) {
	if docs == nil {
		return nil, NewError(KindMalformedManifest, "", fmt.Errorf("target %d has no %s array", index, list))
	}
	keys := make([]AssetKey, 0, len(*docs))
	for j, doc := range *docs {
		key, err := doc.key()
		if err != nil {
			return nil, NewError(KindMalformedManifest, "", fmt.Errorf("target %d %s[%d]: %w", index, list, j, err))
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (a assetDoc) key() (AssetKey, error) {
	var key string
	switch {
	case a.MD5Ext != "":
		key = a.MD5Ext
	case a.AssetID != "" && a.DataFormat != "":
		key = a.AssetID + "." + a.DataFormat
	default:
		return "", errors.New("neither md5ext nor assetId/dataFormat present")
	}
	// Keys become URL path segments and archive entry names.
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid asset key %q", key)
	}
	return AssetKey(key), nil
}

// TargetCount reports how many targets (stage plus sprites) the manifest has.
func (m Manifest) TargetCount() int {
	return len(m.targets)
}

// AssetKeys yields every distinct asset key, costumes before sounds, in
// manifest order. A key reused across targets is yielded once.
func (m Manifest) AssetKeys() iter.Seq[AssetKey] {
	return func(yield func(AssetKey) bool) {
		seen := make(map[AssetKey]struct{})
		for _, t := range m.targets {
			for _, list := range [][]AssetKey{t.costumes, t.sounds} {
				for _, key := range list {
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					if !yield(key) {
						return
					}
				}
			}
		}
	}
}

// AssetCount returns the number of distinct asset keys.
func (m Manifest) AssetCount() int {
	n := 0
	for range m.AssetKeys() {
		n++
	}
	return n
}
