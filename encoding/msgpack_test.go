package encoding

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

type storedRecord struct {
	Value     []byte
	ExpiresAt int64
}

func TestRoundTrip_Record(t *testing.T) {
	original := storedRecord{
		Value:     []byte(`{"id":"btn-1","name":"Button"}`),
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}

	data, err := Marshal(&original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded storedRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !bytes.Equal(decoded.Value, original.Value) {
		t.Errorf("Value mismatch: got %q, want %q", decoded.Value, original.Value)
	}
	if decoded.ExpiresAt != original.ExpiresAt {
		t.Errorf("ExpiresAt mismatch: got %d, want %d", decoded.ExpiresAt, original.ExpiresAt)
	}
}

func TestUnmarshal_StringNotBytes(t *testing.T) {
	original := "component:btn-1:props"
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var result interface{}
	if err := Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	str, ok := result.(string)
	if !ok {
		t.Fatalf("Expected string type, got %T", result)
	}
	if str != original {
		t.Errorf("String mismatch: got %q, want %q", str, original)
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	numGoroutines := 50
	iterations := 200

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				record := storedRecord{
					Value:     []byte("payload"),
					ExpiresAt: int64(id*iterations + j),
				}
				result, err := Marshal(&record)
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				if len(result) == 0 {
					t.Error("Expected non-empty result")
					return
				}
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkMarshal(b *testing.B) {
	record := storedRecord{
		Value:     bytes.Repeat([]byte("x"), 512),
		ExpiresAt: 1234567890,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Marshal(&record)
	}
}
