package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/storage"
	"github.com/mailvault/client-go/storage/memory"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"words", "Hello World", []string{"hello", "world"}},
		{"address", "Alice.Smith@example.com", []string{"alice", "smith", "example", "com"}},
		{"dedup", "go go GO", []string{"go"}},
		{"digits", "room 404", []string{"room", "404"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestAttributeText(t *testing.T) {
	instance := mailvault.Instance{
		"subject": "hello",
		"sender":  mailvault.Instance{"address": "a@b.c"},
		"toRecipients": []any{
			mailvault.Instance{"address": "x@y.z"},
			mailvault.Instance{"address": "q@r.s"},
		},
	}
	assert.Equal(t, "hello", attributeText(instance, "subject"))
	assert.Equal(t, "a@b.c", attributeText(instance, "sender.address"))
	assert.Equal(t, "x@y.z q@r.s", attributeText(instance, "toRecipients.address"))
	assert.Equal(t, "", attributeText(instance, "missing"))
	assert.Equal(t, "", attributeText(instance, "subject.nested"))
}

func newTestCore(t *testing.T) (*IndexerCore, storage.Store) {
	t.Helper()
	store := memory.New(ObjectStores...)
	return NewIndexerCore(store, crypto.Random128Key()), store
}

func TestCoreIndexAndLookup(t *testing.T) {
	core, store := newTestCore(t)

	tx, err := store.OpenTransaction(true)
	require.NoError(t, err)
	instance := mailvault.Instance{
		"firstName": "Alice",
		"lastName":  "Smith",
	}
	tokens, err := core.IndexInstance(tx, instance, "c1", "contacts", "g1", []string{"firstName", "lastName"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "smith"}, tokens)
	require.NoError(t, tx.Wait())

	tx, err = store.OpenTransaction(false)
	require.NoError(t, err)
	defer tx.Abort()
	entries, err := core.Lookup(tx, "Alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].ID)
	assert.Equal(t, "firstName", entries[0].Attribute)

	missing, err := core.Lookup(tx, "bob")
	require.NoError(t, err)
	assert.Empty(t, missing)

	data, _, err := core.GetElementData(tx, "c1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "contacts", data.ListID)
	assert.Equal(t, "g1", data.OwnerGroup)
}

func TestCoreDeleteElement(t *testing.T) {
	core, store := newTestCore(t)

	tx, err := store.OpenTransaction(true)
	require.NoError(t, err)
	_, err = core.IndexInstance(tx, mailvault.Instance{"firstName": "Alice"}, "c1", "contacts", "g1", []string{"firstName"})
	require.NoError(t, err)
	_, err = core.IndexInstance(tx, mailvault.Instance{"firstName": "Alice"}, "c2", "contacts", "g1", []string{"firstName"})
	require.NoError(t, err)
	require.NoError(t, core.DeleteElement(tx, "c1"))
	require.NoError(t, tx.Wait())

	tx, err = store.OpenTransaction(false)
	require.NoError(t, err)
	defer tx.Abort()
	entries, err := core.Lookup(tx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c2", entries[0].ID)

	data, _, err := core.GetElementData(tx, "c1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCoreRowKeysAreDeterministicPerKey(t *testing.T) {
	key := crypto.Random128Key()
	core1 := NewIndexerCore(memory.New(ObjectStores...), key)
	core2 := NewIndexerCore(memory.New(ObjectStores...), crypto.Random128Key())

	k1a, err := core1.rowKey("alice")
	require.NoError(t, err)
	k1b, err := core1.rowKey("alice")
	require.NoError(t, err)
	k2, err := core2.rowKey("alice")
	require.NoError(t, err)

	assert.Equal(t, k1a, k1b)
	assert.NotEqual(t, k1a, k2)
}
