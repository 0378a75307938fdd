package vector

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotVersion = 1

func init() {
	// Metadata decoded from JSON carries these container types.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

type snapshot struct {
	Version    int
	Dimensions int
	Entries    []snapshotEntry
}

type snapshotEntry struct {
	DocumentID string
	ChunkIndex int
	Vector     []float32
	Text       string
	Metadata   map[string]interface{}
}

func (e snapshotEntry) entry() Entry {
	return Entry{
		Key:      Key{DocumentID: e.DocumentID, ChunkIndex: e.ChunkIndex},
		Vector:   e.Vector,
		Text:     e.Text,
		Metadata: e.Metadata,
	}
}

// writeSnapshot stores live records in insertion order. The file is written to a temporary
// name and renamed so a crash never leaves a truncated snapshot.
func writeSnapshot(path string, dims int, records []*record) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	snap := snapshot{Version: snapshotVersion, Dimensions: dims, Entries: make([]snapshotEntry, len(records))}
	for i, r := range records {
		snap.Entries[i] = snapshotEntry{
			DocumentID: r.key.DocumentID,
			ChunkIndex: r.key.ChunkIndex,
			Vector:     r.vector,
			Text:       r.text,
			Metadata:   gobMetadata(r.metadata),
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// gobMetadata keeps scalar values as they are and passes anything else through JSON, so that
// time.Time, structs and typed slices end up as strings, maps and []interface{}.
func gobMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = gobValue(v)
	}
	return out
}

func gobValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, string, bool, float32, float64,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case map[string]interface{}:
		return gobMetadata(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = gobValue(e)
		}
		return out
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

// readSnapshot returns nil, nil when path does not exist.
func readSnapshot(path string) (*snapshot, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported index snapshot version %d", snap.Version)
	}
	dims, err := checkBatch(snap.Dimensions, entriesOf(snap.Entries))
	if err != nil {
		return nil, fmt.Errorf("invalid index snapshot: %w", err)
	}
	snap.Dimensions = dims
	return &snap, nil
}

func entriesOf(in []snapshotEntry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = e.entry()
	}
	return out
}
