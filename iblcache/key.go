package iblcache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Key names a cache entry. Source identifies the content the entry was
// baked from, entries of the same name from different sources do not
// collide.
type Key struct {
	Name   string
	Source string
}

// stem returns the file name prefix of the entry of the given kind.
func (k Key) stem(kind string) string {
	if k.Source == "" {
		return k.Name
	}
	sum := md5.Sum([]byte(kind + "|" + k.Source))
	return k.Name + "-" + hex.EncodeToString(sum[:])[:8]
}

// SourceOf hashes the content read from r into a Key.Source.
func SourceOf(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileKey returns a key for an entry baked from the file at path.
func FileKey(name, path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, err
	}
	defer f.Close()
	source, err := SourceOf(f)
	if err != nil {
		return Key{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return Key{Name: name, Source: source}, nil
}
