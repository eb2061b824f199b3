// Package capture records the raw byte stream of a radio link to a CBOR file
// and plays it back, so decoder behaviour can be reproduced off the bench.
package capture

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured chunk.
type Direction uint8

const (
	RX Direction = iota // module to host
	TX                  // host to module
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}

// Record is one chunk as it was read from or written to the port.
type Record struct {
	TSms int64     `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor decoder mode: %v", err))
	}
}

// Writer appends records to a stream. It is safe for concurrent use, so the
// RX reader and the TX path can share one file.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	enc *cbor.Encoder
}

// NewWriter writes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: encMode.NewEncoder(w)}
}

// Create truncates or creates path and writes records to it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := NewWriter(f)
	w.c = f
	return w, nil
}

// Write appends one record. Data is copied by the encoder before returning.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(r)
}

// Close closes the underlying file, if Create opened one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return nil
	}
	err := w.c.Close()
	w.c = nil
	return err
}

// Reader iterates over a capture stream.
type Reader struct {
	dec *cbor.Decoder
	c   io.Closer
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: decMode.NewDecoder(r)}
}

// Open reads records from path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f)
	r.c = f
	return r, nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: decode record: %w", err)
	}
	return rec, nil
}

// Close closes the file opened by Open.
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
