package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/index"
	"github.com/danh12004/KLTN/pkg/rag"
)

// Persister saves and restores built stores. Load reports a missing cache
// with store.cache.not_found and an unusable one with
// store.cache.invalid_format.
type Persister interface {
	Load(ctx context.Context, store string) (*index.Flat, []rag.Document, error)
	Save(ctx context.Context, store string, idx *index.Flat, docs []rag.Document) error
}

// FilePersister keeps each store as three files in Dir:
// index_<store>.bin holds the vectors, documents_<store>.json the documents
// and manifest_<store>.json the checksums tying the two together.
type FilePersister struct {
	Dir string
}

// NewFilePersister creates a persister rooted at dir.
func NewFilePersister(dir string) *FilePersister {
	return &FilePersister{Dir: dir}
}

func (p *FilePersister) indexPath(store string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("index_%s.bin", store))
}

func (p *FilePersister) documentsPath(store string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("documents_%s.json", store))
}

func (p *FilePersister) manifestPath(store string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("manifest_%s.json", store))
}

// manifest records what one Save wrote.
type manifest struct {
	Rows      int    `json:"rows"`
	Index     string `json:"index_sha256"`
	Documents string `json:"documents_sha256"`
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load reads the files of a store. The index or documents file missing
// counts as no cache; files that do not match the manifest are invalid.
func (p *FilePersister) Load(ctx context.Context, store string) (*index.Flat, []rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := ValidateName(store); err != nil {
		return nil, nil, err
	}

	idxData, err := readCacheFile(store, p.indexPath(store))
	if err != nil {
		return nil, nil, err
	}
	docData, err := readCacheFile(store, p.documentsPath(store))
	if err != nil {
		return nil, nil, err
	}
	if err := p.verify(store, idxData, docData); err != nil {
		return nil, nil, err
	}

	idx, err := index.Decode(idxData)
	if err != nil {
		return nil, nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "decode index",
			ragerr.FieldStore(store), ragerr.FieldPath(p.indexPath(store)))
	}

	var docs []rag.Document
	if err := json.Unmarshal(docData, &docs); err != nil {
		return nil, nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "decode documents",
			ragerr.FieldStore(store), ragerr.FieldPath(p.documentsPath(store)))
	}

	if idx.Count() != len(docs) {
		return nil, nil, ragerr.New(ragerr.CodeStoreCacheInvalid, "cached index and documents disagree",
			ragerr.FieldStore(store), ragerr.Field("rows", idx.Count()), ragerr.Field("documents", len(docs)))
	}
	return idx, docs, nil
}

// Save writes the files, creating Dir if needed. Each file is written to a
// temporary name and renamed into place.
func (p *FilePersister) Save(ctx context.Context, store string, idx *index.Flat, docs []rag.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(store); err != nil {
		return err
	}
	if idx.Count() != len(docs) {
		return ragerr.New(ragerr.CodeStoreCacheWriteFailure, "index rows and documents disagree",
			ragerr.FieldStore(store), ragerr.Field("rows", idx.Count()), ragerr.Field("documents", len(docs)))
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "create cache directory", ragerr.FieldPath(p.Dir))
	}

	idxData, err := idx.MarshalBinary()
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "encode index", ragerr.FieldStore(store))
	}
	docData, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "encode documents", ragerr.FieldStore(store))
	}

	manData, err := json.MarshalIndent(manifest{
		Rows:      len(docs),
		Index:     checksum(idxData),
		Documents: checksum(docData),
	}, "", "  ")
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "encode manifest", ragerr.FieldStore(store))
	}

	// manifest last: until it is renamed the old one no longer matches the
	// files already replaced, so Load rejects a half-written cache
	if err := writeAtomic(p.documentsPath(store), docData); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "write documents", ragerr.FieldStore(store))
	}
	if err := writeAtomic(p.indexPath(store), idxData); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "write index", ragerr.FieldStore(store))
	}
	if err := writeAtomic(p.manifestPath(store), manData); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "write manifest", ragerr.FieldStore(store))
	}
	return nil
}

func (p *FilePersister) verify(store string, idxData, docData []byte) error {
	path := p.manifestPath(store)
	data, err := os.ReadFile(path)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "read manifest",
			ragerr.FieldStore(store), ragerr.FieldPath(path))
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "decode manifest",
			ragerr.FieldStore(store), ragerr.FieldPath(path))
	}
	if man.Index != checksum(idxData) || man.Documents != checksum(docData) {
		return ragerr.New(ragerr.CodeStoreCacheInvalid, "cache files do not match manifest",
			ragerr.FieldStore(store), ragerr.FieldPath(path))
	}
	return nil
}

func readCacheFile(store, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ragerr.New(ragerr.CodeStoreCacheNotFound, "no cached store",
			ragerr.FieldStore(store), ragerr.FieldPath(path))
	}
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "read cache file",
			ragerr.FieldStore(store), ragerr.FieldPath(path))
	}
	return data, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
