package binary

import "bytes"

// Writer accumulates binary encodings.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.buf.Len() }

// Byte writes a single byte.
func (w *Writer) Byte(b ...byte) { w.buf.Write(b) }

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) { w.buf.Write(data) }

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *Writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteS64 writes a signed LEB128 encoded int64.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

// WriteS32 writes a signed LEB128 encoded int32.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteName writes a length-prefixed string.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Section writes a section with its id and size prefix.
func (w *Writer) Section(id byte, body []byte) {
	w.buf.WriteByte(id)
	w.WriteU32(uint32(len(body)))
	w.buf.Write(body)
}
