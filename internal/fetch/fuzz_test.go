package fetch

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzDecodeSnapshot ensures DecodeSnapshot never panics and that every
// successfully decoded toggle is keyed by its own key.
func FuzzDecodeSnapshot(f *testing.F) {
	f.Add([]byte(`{"version":1,"toggles":{"a":{"variations":[true],"default_serve":0}}}`))
	f.Add([]byte(`{"version":2,"toggles":{}}`))
	f.Add([]byte(`{"toggles":{"a":{"key":"b"}}}`))
	f.Add([]byte(`{"version":-1}`))
	f.Add([]byte(`null`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, data []byte) {
		snapshot, err := DecodeSnapshot(bytes.NewReader(data))
		if err != nil {
			if !errors.Is(err, ErrParse) {
				t.Fatalf("DecodeSnapshot() error = %v, want ErrParse", err)
			}
			return
		}
		for key, toggle := range snapshot.Toggles {
			if toggle.Key != key {
				t.Fatalf("toggle %q stored under %q", toggle.Key, key)
			}
			if toggle.Static {
				t.Fatalf("toggle %q decoded as static", key)
			}
		}
	})
}
