package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamkey-relay/work/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "bearer-tokens.json"))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Init())
	return s
}

func sampleRecords() []Credential {
	records := Defaults()
	records[0].Token = "tok-main"
	records[2].Enabled = false
	records[4].Description = ""
	return records
}

func TestInitWritesDefaults(t *testing.T) {
	s := newTestStore(t)

	f, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), f.Tokens)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", f.LastUpdated)

	// A second Init must not clobber saved data.
	_, err = s.WriteAll(sampleRecords())
	require.NoError(t, err)
	require.NoError(t, s.Init())
	f, err = s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "tok-main", f.Tokens[0].Token)
}

func TestWriteAllRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 8, 30, 15, 250e6, time.UTC) }

	records := sampleRecords()
	stamp, err := s.WriteAll(records)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T08:30:15.250Z", stamp)

	f, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, records, f.Tokens)
	assert.Equal(t, stamp, f.LastUpdated)
}

func TestWriteAllRejectsInvalidAndLeavesStoreUnchanged(t *testing.T) {
	tooFew := Defaults()[:4]

	missingID := Defaults()
	missingID[1].ID = ""

	missingName := Defaults()
	missingName[3].Name = ""

	tooMany := append(Defaults(), Credential{ID: "token6", Name: "six", Enabled: true})

	tests := []struct {
		name    string
		records []Credential
		msg     string
	}{
		{name: "four records", records: tooFew, msg: "Invalid tokens configuration - must have exactly 5 tokens"},
		{name: "six records", records: tooMany, msg: "Invalid tokens configuration - must have exactly 5 tokens"},
		{name: "nil", records: nil, msg: "Invalid tokens configuration - must have exactly 5 tokens"},
		{name: "empty id", records: missingID, msg: "Invalid token structure"},
		{name: "empty name", records: missingName, msg: "Invalid token structure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			before, err := os.ReadFile(s.Path())
			require.NoError(t, err)

			_, err = s.WriteAll(tt.records)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
			assert.Equal(t, tt.msg, errs.Msg(err))

			after, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestDecodeRequiresBooleanEnabled(t *testing.T) {
	var c Credential
	err := json.Unmarshal([]byte(`{"id":"token1","name":"A"}`), &c)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	err = json.Unmarshal([]byte(`{"id":"token1","name":"A","enabled":"yes"}`), &c)
	require.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"token1","name":"A","enabled":false}`), &c))
	assert.Equal(t, Credential{ID: "token1", Name: "A"}, c)
}

func TestReadAllCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{broken"), 0644))

	_, err := s.ReadAll()
	require.Error(t, err)
	assert.Equal(t, int32(errs.CodeStoreUnavailable), errs.Code(err))
	assert.Equal(t, "Failed to read bearer tokens configuration", errs.Msg(err))
}

func TestFindAndUsable(t *testing.T) {
	f := &File{Tokens: sampleRecords()}

	c, ok := f.Find("token1")
	require.True(t, ok)
	assert.True(t, c.Usable())

	c, ok = f.Find("token3")
	require.True(t, ok)
	assert.False(t, c.Usable(), "disabled")

	c, ok = f.Find("token2")
	require.True(t, ok)
	assert.False(t, c.Usable(), "no token")

	_, ok = f.Find("custom")
	assert.False(t, ok)
}

func TestConcurrentWriteAllLeavesOneCompleteSet(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records := Defaults()
			for j := range records {
				records[j].Token = fmt.Sprintf("tok-%d", i)
			}
			_, err := s.WriteAll(records)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	f, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, f.Tokens, SlotCount)
	for _, c := range f.Tokens {
		assert.Equal(t, f.Tokens[0].Token, c.Token)
	}

	leftovers, err := filepath.Glob(s.Path() + ".*.tmp")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
