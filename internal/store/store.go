// Package store is the document persistence layer: named collections of
// JSON documents with single-field filters and all-or-nothing transactions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Errors returned by every Store implementation.
var (
	ErrNotFound  = errors.New("document not found")
	ErrConflict  = errors.New("document already exists")
	ErrBadFilter = errors.New("unsupported filter")
)

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "=="
	OpGte Op = ">="
	OpLte Op = "<="
)

// Filter compares one top-level document field against a value.
// time.Time values compare as instants, numeric values (ints, floats,
// decimal.Decimal) numerically, strings textually, bools by equality.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for building a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Document is a stored record in its raw form.
type Document struct {
	ID      string
	Data    json.RawMessage
	Version int64
}

// Collections is the set of document operations. Both a Store and the
// handle passed to a Transact callback satisfy it.
type Collections interface {
	Create(ctx context.Context, collection string, doc any) (string, error)
	Get(ctx context.Context, collection, id string, dst any) error
	Lock(ctx context.Context, collection, id string, dst any) error
	GetAll(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, collection string, f Filter) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Store is a Collections that can also run work atomically.
// Every call made through the Collections handed to fn commits together when
// fn returns nil and is discarded when fn returns an error.
type Store interface {
	Collections
	Transact(ctx context.Context, fn func(c Collections) error) error
}

// Decode unmarshals a single document into a T.
func Decode[T any](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return v, nil
}

// DecodeAll unmarshals every document, preserving order.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeInto(doc Document, dst any) error {
	if err := json.Unmarshal(doc.Data, dst); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// encodeDocument flattens doc into a JSON object and makes sure it carries
// an "id". It returns the id and the encoded body.
func encodeDocument(doc any) (string, []byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
		fields["id"] = id
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", nil, fmt.Errorf("encode document: %w", err)
	}
	return id, body, nil
}

// encodePatch marshals a patch; the id field cannot be patched.
func encodePatch(patch map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		if k == "id" {
			continue
		}
		clean[k] = v
	}
	body, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	return body, nil
}

func validOp(op Op) bool {
	switch op {
	case OpEq, OpGte, OpLte:
		return true
	}
	return false
}
