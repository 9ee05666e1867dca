package packet

import "strconv"

// Writer builds an outbound KV message. Entries are serialized in the order
// they were written, starting with the `type` discriminator.
type Writer struct {
	pairs []Pair
}

func NewWriter() *Writer {
	return &Writer{pairs: make([]Pair, 0, 4)}
}

// NewWriterWithType starts a message with `type@=<msgType>/`.
func NewWriterWithType(msgType string) *Writer {
	w := NewWriter()
	w.WriteS("type", msgType)
	return w
}

// WriteS writes a string field.
func (w *Writer) WriteS(key, value string) *Writer {
	w.pairs = append(w.pairs, Pair{Key: key, Value: value})
	return w
}

// WriteD writes an integer field in decimal.
func (w *Writer) WriteD(key string, value int) *Writer {
	return w.WriteS(key, strconv.Itoa(value))
}

// Pairs returns the written entries.
func (w *Writer) Pairs() []Pair {
	return w.pairs
}

// String returns the serialized KV text (without the frame terminator).
func (w *Writer) String() string {
	return Serialize(w.pairs)
}

// Len returns the number of written entries.
func (w *Writer) Len() int {
	return len(w.pairs)
}
