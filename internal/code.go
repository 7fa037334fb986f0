package internal

import (
	"errors"

	"github.com/google/orderedcode"
)

// orderedcode terminates every string with 0x00 0x01.
const stringTerminatorLen = 2

var ErrEmptyKey = errors.New("key has no fields")

// CollectionPrefix returns the prefix shared by every key of the named collection.
func CollectionPrefix(collection string) []byte {
	buf, _ := orderedcode.Append(nil, "c", collection)
	return buf
}

// EncodeKey appends the order-preserving encoding of each key part to prefix.
// Keys of equal prefix compare as the tuple of their parts.
func EncodeKey(prefix []byte, parts ...[]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrEmptyKey
	}

	buf := append(make([]byte, 0, len(prefix)+16), prefix...)
	for _, part := range parts {
		var err error
		buf, err = orderedcode.Append(buf, string(part))
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// EncodePartialString returns the encoding of s without its terminator, so that
// it is a byte prefix of the encoding of every string starting with s.
func EncodePartialString(prefix []byte, s []byte) []byte {
	buf, _ := orderedcode.Append(append([]byte(nil), prefix...), string(s))
	return buf[:len(buf)-stringTerminatorLen]
}

// UpperBound returns the smallest key greater than every key starting with prefix,
// or nil if there is none.
func UpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

// CatalogPrefix is shared by the keys describing each collection.
func CatalogPrefix() []byte {
	buf, _ := orderedcode.Append(nil, "m")
	return buf
}

// CatalogKey returns the key of the catalog entry of the named collection.
func CatalogKey(collection string) []byte {
	buf, _ := orderedcode.Append(CatalogPrefix(), collection)
	return buf
}
