package document

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Document represents a document as a map of named raw byte fields.
type Document struct {
	fields map[string][]byte
}

// NewDocument creates a new empty document.
func NewDocument() *Document {
	return &Document{
		fields: make(map[string][]byte),
	}
}

// NewDocumentOf creates a new document holding a copy of the supplied fields.
func NewDocumentOf(fields map[string][]byte) *Document {
	doc := NewDocument()
	for name, value := range fields {
		doc.Set(name, value)
	}
	return doc
}

// Copy returns a deep copy of the underlying document.
func (doc *Document) Copy() *Document {
	return NewDocumentOf(doc.fields)
}

// Get retrieves the value of a field. The returned slice aliases the document.
func (doc *Document) Get(name string) ([]byte, bool) {
	v, ok := doc.fields[name]
	return v, ok
}

// Set maps a field to a copy of value, replacing any previous value.
func (doc *Document) Set(name string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	doc.fields[name] = v
}

// Project returns a new document holding only the named fields. It fails if one is missing.
func (doc *Document) Project(names []string) (*Document, error) {
	p := NewDocument()
	for _, name := range names {
		v, ok := doc.fields[name]
		if !ok {
			return nil, fmt.Errorf("missing field %q", name)
		}
		p.Set(name, v)
	}
	return p, nil
}

func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if err := msgpack.Unmarshal(data, &doc.fields); err != nil {
		return nil, err
	}
	if doc.fields == nil {
		doc.fields = make(map[string][]byte)
	}
	return doc, nil
}

func Encode(doc *Document) ([]byte, error) {
	return msgpack.Marshal(doc.fields)
}
