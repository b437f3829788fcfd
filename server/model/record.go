package model

import (
	"encoding/json"
	"time"
)

// Record is one mirrored document. Payload holds the upstream JSON as fetched,
// with the natural key fields added where the upstream document lacks them.
type Record struct {
	Key      Key             `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	SyncedAt time.Time       `json:"syncedAt"`
}

func (r Record) Kind() Kind {
	return r.Key.Kind
}

// NewRecord marshals v as the payload of a record with the given key.
func NewRecord(key Key, v any, at time.Time) (Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Record{}, err
	}
	payload, err = withKeyFields(payload, key)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Payload: payload, SyncedAt: at}, nil
}

func withKeyFields(payload []byte, key Key) ([]byte, error) {
	if len(payload) == 0 || payload[0] != '{' {
		return payload, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	added := false
	for name, value := range key.Fields() {
		if _, ok := doc[name]; ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		doc[name] = raw
		added = true
	}
	if !added {
		return payload, nil
	}
	return json.Marshal(doc)
}
