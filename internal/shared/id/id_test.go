package id

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	sid := NewSessionID()

	assert.True(t, strings.HasPrefix(sid.String(), "sess_"))
	parsed, err := ParseSessionID(sid.String())
	require.NoError(t, err)
	assert.Equal(t, sid, parsed)
}

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: "sess_01ARZ3NDEKTSV4RRFFQ69G5FAV"},
		{name: "wrong prefix", raw: "app_01ARZ3NDEKTSV4RRFFQ69G5FAV", wantErr: true},
		{name: "no prefix", raw: "01ARZ3NDEKTSV4RRFFQ69G5FAV", wantErr: true},
		{name: "bad ulid", raw: "sess_not-a-ulid", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionID(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreated(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(bytes.NewReader(bytes.Repeat([]byte{7}, 64)), func() time.Time { return at })

	sid := SessionID(g.WithPrefix(SessionPrefix))
	created, err := sid.Created()
	require.NoError(t, err)
	assert.True(t, created.Equal(at))
}

func TestGeneratorSortsWithinMillisecond(t *testing.T) {
	at := time.Now()
	g := NewGenerator(bytes.NewReader(bytes.Repeat([]byte{1, 2, 3, 4}, 256)), func() time.Time { return at })

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = g.Generate().String()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestConcurrentGeneration(t *testing.T) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[SessionID]bool)
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sid := NewSessionID()
				mu.Lock()
				seen[sid] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 400)
}
