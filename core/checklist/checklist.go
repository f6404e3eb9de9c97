// Package checklist implements the manager's persisted system-state
// mapping: an in-memory map mutated under the manager's own single
// goroutine, rewritten to disk after every update.
package checklist

import (
	"fmt"
	"os"

	"github.com/fathomrun/nowcast/core/message"
	"gopkg.in/yaml.v2"
)

// Checklist is a mapping from arbitrary string keys to arbitrary
// values. It is not safe for concurrent use; callers rely on the
// manager's single-threaded message loop for sequential consistency.
type Checklist struct {
	path string
	data map[string]interface{}
}

// New returns an empty Checklist backed by path.
func New(path string) *Checklist {
	return &Checklist{path: path, data: map[string]interface{}{}}
}

// Load restores a Checklist from path. A missing file is not an
// error: it yields an empty checklist, matching the reference's
// FileNotFoundError-is-a-warning behaviour.
func Load(path string) (*Checklist, error) {
	c := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read checklist file %s: %w", path, err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse checklist file %s: %w", path, err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	c.data = asStringMap(message.StringMapPayload(raw))
	return c, nil
}

func asStringMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// Get returns the value stored at key, if any.
func (c *Checklist) Get(key string) (interface{}, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Snapshot returns a shallow copy of the checklist, suitable for
// passing to a dispatch hook that must not mutate manager state
// directly.
func (c *Checklist) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Update applies the checklist update rule: if checklist[key] exists
// and both it and payload are mappings, merge payload into
// checklist[key] (last-writer-wins per inner key); otherwise assign
// checklist[key] = payload outright. The result is written to disk
// write-then-rename before Update returns, so the on-disk file is
// always a valid serialization of the in-memory checklist once Update
// returns nil.
func (c *Checklist) Update(key string, payload interface{}) error {
	payload = message.StringMapPayload(payload)

	existing, ok := c.data[key]
	if ok {
		existingMap, existOk := existing.(map[string]interface{})
		payloadMap, payloadOk := payload.(map[string]interface{})
		if existOk && payloadOk {
			merged := make(map[string]interface{}, len(existingMap)+len(payloadMap))
			for k, v := range existingMap {
				merged[k] = v
			}
			for k, v := range payloadMap {
				merged[k] = v
			}
			c.data[key] = merged
		} else {
			c.data[key] = payload
		}
	} else {
		c.data[key] = payload
	}

	return c.save()
}

// Clear empties the checklist and persists the empty state.
func (c *Checklist) Clear() error {
	c.data = map[string]interface{}{}
	return c.save()
}

func (c *Checklist) save() error {
	data, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checklist tmp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename checklist tmp file into place: %w", err)
	}
	return nil
}
