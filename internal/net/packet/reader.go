package packet

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldError reports a field whose value does not have the expected form.
type FieldError struct {
	Key   string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q=%q: %v", e.Key, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Reader gives typed access to the fields of a parsed message. Absent keys
// are never errors; callers decide the default.
type Reader struct {
	msg *Message
}

func NewReader(msg *Message) *Reader {
	return &Reader{msg: msg}
}

// NewReaderFromText parses text and wraps the result.
func NewReaderFromText(text string) *Reader {
	return &Reader{msg: Deserialize(text)}
}

// Message returns the underlying message.
func (r *Reader) Message() *Message {
	return r.msg
}

// Type returns the message discriminator.
func (r *Reader) Type() string {
	return r.msg.Type()
}

// Has reports whether key is present.
func (r *Reader) Has(key string) bool {
	_, ok := r.msg.Get(key)
	return ok
}

// Str returns the string value of key, or "" and false when absent.
func (r *Reader) Str(key string) (string, bool) {
	return r.msg.Get(key)
}

// Int parses key as a decimal integer. ok is false when the key is absent;
// a present but non-numeric value is a *FieldError.
func (r *Reader) Int(key string) (v int, ok bool, err error) {
	s, ok := r.msg.Get(key)
	if !ok {
		return 0, false, nil
	}
	v, err = strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, true, &FieldError{Key: key, Value: s, Err: err}
	}
	return v, true, nil
}

// Flag reports whether the integer value of key equals 1.
func (r *Reader) Flag(key string) (v bool, ok bool, err error) {
	n, ok, err := r.Int(key)
	return n == 1, ok, err
}

// NonZero reports whether the integer value of key is not 0.
func (r *Reader) NonZero(key string) (v bool, ok bool, err error) {
	n, ok, err := r.Int(key)
	return ok && n != 0, ok, err
}

// Raw returns the text the message was parsed from.
func (r *Reader) Raw() string {
	return r.msg.Raw()
}
