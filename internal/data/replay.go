package data

import (
	"fmt"
	"os"
	"time"

	"github.com/douyudm/dmclient/internal/net/packet"
	"gopkg.in/yaml.v3"
)

// ReplayStep is one scripted server message. Payload is sent verbatim as a
// text frame. Fields, when set, are serialized into the KV text format
// instead, keeping their order.
type ReplayStep struct {
	Payload string        `yaml:"payload"`
	Fields  yaml.Node     `yaml:"fields"`
	Delay   time.Duration `yaml:"delay"` // overrides the script interval
	Repeat  int           `yaml:"repeat"`
}

// ReplayScript is a sequence of messages played to every client that joins.
type ReplayScript struct {
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
	Steps    []ReplayStep  `yaml:"steps"`
}

// LoadReplayScript loads a replay yaml file.
func LoadReplayScript(path string) (*ReplayScript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	return ParseReplayScript(raw)
}

func ParseReplayScript(raw []byte) (*ReplayScript, error) {
	s := &ReplayScript{}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parse replay script: %w", err)
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.Payload == "" && st.Fields.Kind == 0 {
			return nil, fmt.Errorf("replay step %d: payload or fields required", i)
		}
		if st.Fields.Kind != 0 && st.Fields.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("replay step %d: fields must be a mapping", i)
		}
		if st.Repeat <= 0 {
			st.Repeat = 1
		}
	}
	return s, nil
}

// Text returns the message text sent for st.
func (st *ReplayStep) Text() string {
	if st.Payload != "" {
		return st.Payload
	}
	n := &st.Fields
	pairs := make([]packet.Pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, packet.Pair{Key: n.Content[i].Value, Value: n.Content[i+1].Value})
	}
	return packet.Serialize(pairs)
}

// DelayAfter returns how long to wait after sending st.
func (s *ReplayScript) DelayAfter(st *ReplayStep) time.Duration {
	if st.Delay > 0 {
		return st.Delay
	}
	return s.Interval
}
