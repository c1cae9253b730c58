package session

import (
	"testing"
	"time"
)

func FuzzDecodeRecord(f *testing.F) {
	valid, err := Encode(&Record{
		ID:        "2a1d4c4e-0000-4000-8000-000000000001",
		UserID:    "u1",
		Sessions:  map[string]string{"127.0.0.1": "tok-a", "10.0.0.2": "tok-b"},
		CreatedAt: time.Unix(1700000000, 0),
		UpdatedAt: time.Unix(1700000100, 0),
	})
	if err != nil {
		f.Fatalf("encode seed: %v", err)
	}
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{recordFormatVersion})
	f.Add([]byte{9, 0, 0})
	f.Add(append(append([]byte(nil), valid...), 0))

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, err := Decode(data)
		if err != nil {
			return
		}
		if len(rec.Sessions) > 255 {
			t.Fatalf("decoded %d sessions", len(rec.Sessions))
		}
		again, err := Encode(rec)
		if err != nil {
			t.Fatalf("re-encode decoded record: %v", err)
		}
		back, err := Decode(again)
		if err != nil {
			t.Fatalf("decode re-encoded record: %v", err)
		}
		if back.UserID != rec.UserID || len(back.Sessions) != len(rec.Sessions) {
			t.Fatalf("unstable round trip: %+v vs %+v", back, rec)
		}
	})
}
