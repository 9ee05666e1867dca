package packet

import (
	"regexp"
	"strings"
)

// The KV text format is `key@=value/` repeated, with '@' and '/' escaped as
// "@A" and "@S". Escape order matters: '@' first so the '@' introduced for
// '/' is not escaped again; Unescape runs the inverse in reverse order.
var (
	escaper   = strings.NewReplacer("@", "@A", "/", "@S")
	kvPattern = regexp.MustCompile(`(?s)(.+?)@=(.*?)/`)
)

// Pair is one key/value entry.
type Pair struct {
	Key   string
	Value string
}

// Escape applies the KV escaping rule to s.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "@S", "/")
	return strings.ReplaceAll(s, "@A", "@")
}

// Serialize encodes pairs in order. Each entry ends with '/', which is also
// the separator.
func Serialize(pairs []Pair) string {
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(Escape(p.Key))
		sb.WriteString("@=")
		sb.WriteString(Escape(p.Value))
		sb.WriteByte('/')
	}
	return sb.String()
}

// Message is a parsed KV payload. Pairs keep wire order; a repeated key
// overwrites the value in the slot of its first occurrence.
type Message struct {
	raw   string
	pairs []Pair
	index map[string]int
}

// Deserialize scans text for `key@=value/` entries. Text that matches no
// entry yields an empty message, never an error.
func Deserialize(text string) *Message {
	matches := kvPattern.FindAllStringSubmatch(text, -1)
	m := &Message{
		raw:   text,
		pairs: make([]Pair, 0, len(matches)),
		index: make(map[string]int, len(matches)),
	}
	for _, sub := range matches {
		m.set(Unescape(sub[1]), Unescape(sub[2]))
	}
	return m
}

func (m *Message) set(key, value string) {
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = value
		return
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
}

// Get returns the value for key.
func (m *Message) Get(key string) (string, bool) {
	i, ok := m.index[key]
	if !ok {
		return "", false
	}
	return m.pairs[i].Value, true
}

// Type returns the `type` discriminator, or "" if absent.
func (m *Message) Type() string {
	v, _ := m.Get("type")
	return v
}

// Pairs returns the entries in wire order. The slice must not be modified.
func (m *Message) Pairs() []Pair {
	return m.pairs
}

// Len returns the number of distinct keys.
func (m *Message) Len() int {
	return len(m.pairs)
}

// Raw returns the text the message was parsed from.
func (m *Message) Raw() string {
	return m.raw
}
