package snowflake

import (
	"testing"
	"time"
)

func TestNextIDMonotonic(t *testing.T) {
	if err := Init(1, 1); err != nil {
		t.Fatalf("Init: %v", err)
	}

	prev, err := NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	for i := 0; i < 1000; i++ {
		id, err := NextID()
		if err != nil {
			t.Fatalf("NextID: %v", err)
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestNodeID(t *testing.T) {
	tests := []struct {
		machine, dc int64
		want        int64
		wantErr     bool
	}{
		{machine: 0, dc: 0, want: 0},
		{machine: 3, dc: 1, want: 35},
		{machine: 31, dc: 31, want: 1023},
		{machine: 32, dc: 0, wantErr: true},
		{machine: 0, dc: -1, wantErr: true},
	}
	for _, tt := range tests {
		got, err := nodeID(tt.machine, tt.dc)
		if (err != nil) != tt.wantErr {
			t.Fatalf("nodeID(%d, %d) error = %v, wantErr %v", tt.machine, tt.dc, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("nodeID(%d, %d) = %d, want %d", tt.machine, tt.dc, got, tt.want)
		}
	}
}

func TestTimeRoundTrip(t *testing.T) {
	if err := Init(1, 1); err != nil {
		t.Fatalf("Init: %v", err)
	}
	before := time.Now().Add(-time.Second)
	id, err := NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	got := Time(id)
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Fatalf("Time(%d) = %v, not near now", id, got)
	}
}
