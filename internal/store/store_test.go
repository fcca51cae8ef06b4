package store

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/discovery"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleHost(addr, hostname string, controlPort uint16) discovery.Host {
	return discovery.Host{
		Addr:        netip.MustParseAddrPort(addr),
		Interfaces:  []int{2, 3},
		Hostname:    hostname,
		ControlPort: controlPort,
	}
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, "192.168.1.10:10010", KeyOf(sampleHost("192.168.1.10:40000", "host1", 10010)))
	assert.Equal(t, "192.168.1.10:40000", KeyOf(sampleHost("192.168.1.10:40000", "host1", 0)))
}

func TestStore_UpsertAndGetAll(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Upsert(sampleHost("192.168.1.10:40000", "host1", 10010)))

	records, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "192.168.1.10:10010", r.Key)
	assert.Equal(t, "host1", r.Hostname)
	assert.Equal(t, []int{2, 3}, r.Interfaces)
	assert.Equal(t, uint64(1), r.Observations)
	assert.True(t, r.Active)
	assert.False(t, r.FirstSeen.IsZero())
}

func TestStore_UpsertIncrementsObservations(t *testing.T) {
	s := testStore(t)
	host := sampleHost("192.168.1.10:40000", "host1", 10010)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(host), "upsert %d", i)
	}

	records, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(5), records[0].Observations)
}

func TestStore_MultipleHosts(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Upsert(
		sampleHost("192.168.1.1:40000", "host1", 10010),
		sampleHost("192.168.1.2:40000", "host2", 10010),
		sampleHost("192.168.1.3:40000", "host3", 10010),
	))

	records, err := s.GetAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestStore_GetActive(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Upsert(sampleHost("192.168.1.1:40000", "host1", 10010)))
	require.NoError(t, s.Upsert(sampleHost("192.168.1.2:40000", "host2", 10010)))

	active, err := s.GetActive()
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestStore_MarkBound(t *testing.T) {
	s := testStore(t)
	host := sampleHost("192.168.1.10:40000", "host1", 10010)
	require.NoError(t, s.Upsert(host))

	require.NoError(t, s.MarkBound(KeyOf(host)))

	records, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotNil(t, records[0].BoundAt)
}

func TestStore_MarkBound_NotFound(t *testing.T) {
	s := testStore(t)
	assert.Error(t, s.MarkBound("nonexistent"))
}

func TestStore_Expiry(t *testing.T) {
	s := testStore(t)
	host := sampleHost("192.168.1.10:40000", "host1", 10010)
	require.NoError(t, s.Upsert(host))

	// Threshold 0 expires everything
	s.expireStaleHosts(0)

	records, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Active)

	// Seen again
	require.NoError(t, s.Upsert(host))
	active, err := s.GetActive()
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
