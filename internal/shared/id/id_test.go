package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	assert.NotEqual(t, gen.Generate(), gen.Generate())
}

func TestGenerateSorted(t *testing.T) {
	gen := NewGenerator()
	prev := gen.Generate().String()
	for i := 0; i < 100; i++ {
		next := gen.Generate().String()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
	}{
		{NewMessageID().String(), "msg_"},
		{NewAuditID().String(), "audit_"},
		{NewRequestID().String(), "req_"},
		{NewConnID().String(), "conn_"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix))
			assert.Len(t, strings.TrimPrefix(tt.id, tt.prefix), 26)
		})
	}
}

func TestSessionID(t *testing.T) {
	s := NewSessionID()
	assert.True(t, IsSessionID(s))
	assert.NotEqual(t, s, NewSessionID())

	for _, bad := range []string{"", "../etc", "not-a-uuid", strings.ToUpper(s), "{" + s + "}"} {
		assert.False(t, IsSessionID(bad), bad)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewMessageID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("msg_bogus")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	const n = 1000
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewAuditID().String()
			mu.Lock()
			seen[s] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
