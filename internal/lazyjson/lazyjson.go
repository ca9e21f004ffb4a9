// Package lazyjson reads session documents without decoding the parts a
// caller never asks for, and writes them back deterministically.
//
// Reads go through gjson paths such as "cmds.#" or "cmds.3.inp", so listing
// a directory of sessions touches only the header fields of each file.
// Writes marshal maps with sorted keys and replace the target atomically.
package lazyjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrInvalid is returned by Open when the file is not a valid JSON document.
var ErrInvalid = errors.New("invalid JSON document")

// File is an opened, not yet decoded, JSON document.
type File struct {
	path string
	data []byte
}

// Open reads path and validates it without decoding any values.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse wraps data as a File. path is used only in error messages.
func Parse(path string, data []byte) (*File, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalid)
	}
	return &File{path: path, data: data}, nil
}

// Path returns the file the document was read from.
func (f *File) Path() string { return f.path }

// Size returns the encoded size of the document in bytes.
func (f *File) Size() int64 { return int64(len(f.data)) }

// Get returns the node at a gjson path.
func (f *File) Get(path string) Node {
	return Node{r: gjson.GetBytes(f.data, path)}
}

// Len returns the number of elements of the array at key, or 0 when key is
// absent or not an array.
func (f *File) Len(key string) int {
	return f.Get(key).Len()
}

// Index returns element i of the array at key.
func (f *File) Index(key string, i int) Node {
	return f.Get(key + "." + strconv.Itoa(i))
}

// Load decodes the whole document. Numbers are kept as json.Number so a
// load/dump cycle does not reformat them.
func (f *File) Load() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(f.data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: %w", f.path, ErrInvalid)
	}
	return doc, nil
}

// Node is a value inside a File. The zero Node does not exist.
type Node struct {
	r gjson.Result
}

// Exists reports whether the path resolved to a value (including null).
func (n Node) Exists() bool { return n.r.Exists() }

// IsNull reports whether the node is absent or an explicit null.
func (n Node) IsNull() bool { return n.r.Type == gjson.Null }

// IsArray reports whether the node is a JSON array.
func (n Node) IsArray() bool { return n.r.IsArray() }

// Len returns the element count of an array node and 0 otherwise.
func (n Node) Len() int {
	if !n.r.IsArray() {
		return 0
	}
	return int(n.r.Get("#").Int())
}

// Get resolves a gjson path relative to the node.
func (n Node) Get(path string) Node { return Node{r: n.r.Get(path)} }

// Raw returns the encoded JSON of the node.
func (n Node) Raw() string { return n.r.Raw }

// String returns the node as a string.
func (n Node) String() string { return n.r.String() }

// Int returns the node as an integer.
func (n Node) Int() int64 { return n.r.Int() }

// Float returns the node as a float.
func (n Node) Float() float64 { return n.r.Float() }

// Bool returns the node as a bool.
func (n Node) Bool() bool { return n.r.Bool() }

// Decode materializes the node into v.
func (n Node) Decode(v any) error {
	if !n.r.Exists() {
		return errors.New("lazyjson: decode of missing node")
	}
	return json.Unmarshal([]byte(n.r.Raw), v)
}

// Dump writes doc as indented JSON. Map keys are emitted in sorted order,
// so equal documents always encode to identical bytes.
func Dump(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	return enc.Encode(doc)
}

// WriteFile dumps doc to path atomically via a temp file + os.Rename, so a
// concurrent reader sees either the old or the new document.
func WriteFile(path string, doc any) (err error) {
	var buf bytes.Buffer
	if err := Dump(&buf, doc); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
