package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/storage"
)

// IndexEntry is one occurrence of a token in an attribute of an entity.
type IndexEntry struct {
	ID        string `json:"id"`
	Attribute string `json:"attribute"`
}

// ElementData locates an indexed element for result resolution and deletion.
type ElementData struct {
	ListID     string `json:"listId"`
	OwnerGroup string `json:"ownerGroup"`
}

// IndexerCore owns the index key and performs the encrypted reads and writes
// of index rows. Row keys are deterministic encryptions of the token, so a
// lookup never decrypts the whole store; row payloads are authenticated.
type IndexerCore struct {
	store    storage.Store
	indexKey []byte
}

// NewIndexerCore creates a core over store using indexKey.
func NewIndexerCore(store storage.Store, indexKey []byte) *IndexerCore {
	return &IndexerCore{store: store, indexKey: indexKey}
}

// Store exposes the underlying storage for transaction scoping by the
// indexer.
func (c *IndexerCore) Store() storage.Store { return c.store }

func (c *IndexerCore) rowKey(token string) (string, error) {
	enc, err := crypto.EncryptSearchIndexKey(c.indexKey, []byte(token))
	if err != nil {
		return "", fmt.Errorf("deriving row key for token: %w", err)
	}
	return crypto.ToBase64(enc), nil
}

// WriteEntries appends entries to the index rows of their tokens within tx.
func (c *IndexerCore) WriteEntries(tx storage.Transaction, entries map[string][]IndexEntry) error {
	for token, newEntries := range entries {
		key, err := c.rowKey(token)
		if err != nil {
			return err
		}
		existing, err := c.readRow(tx, key)
		if err != nil {
			return err
		}
		merged := append(existing, newEntries...)
		if err := c.writeRow(tx, key, merged); err != nil {
			return err
		}
	}
	return nil
}

// RemoveEntries removes every entry of elementID from the rows of the given
// tokens.
func (c *IndexerCore) RemoveEntries(tx storage.Transaction, tokens []string, elementID string) error {
	for _, token := range tokens {
		key, err := c.rowKey(token)
		if err != nil {
			return err
		}
		existing, err := c.readRow(tx, key)
		if err != nil {
			return err
		}
		kept := existing[:0]
		for _, e := range existing {
			if e.ID != elementID {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			if err := tx.Delete(SearchIndexOS, key); err != nil {
				return err
			}
			continue
		}
		if err := c.writeRow(tx, key, kept); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the entries indexed under token.
func (c *IndexerCore) Lookup(tx storage.Transaction, token string) ([]IndexEntry, error) {
	key, err := c.rowKey(normalizeToken(token))
	if err != nil {
		return nil, err
	}
	return c.readRow(tx, key)
}

func (c *IndexerCore) readRow(tx storage.Transaction, key string) ([]IndexEntry, error) {
	raw, err := tx.Get(SearchIndexOS, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Decrypt(c.indexKey, raw, true)
	if err != nil {
		return nil, fmt.Errorf("decrypting index row: %w", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("decoding index row: %w", err)
	}
	return entries, nil
}

func (c *IndexerCore) writeRow(tx storage.Transaction, key string, entries []IndexEntry) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	enc, err := crypto.Encrypt(c.indexKey, plain, crypto.RandomIV(), true, true)
	if err != nil {
		return fmt.Errorf("encrypting index row: %w", err)
	}
	return tx.Put(SearchIndexOS, key, enc)
}

// PutElementData records the location of an indexed element together with
// the tokens it was indexed under, enabling later removal.
func (c *IndexerCore) PutElementData(tx storage.Transaction, elementID string, data *ElementData, tokens []string) error {
	payload, err := json.Marshal(struct {
		ElementData
		Tokens []string `json:"tokens"`
	}{ElementData: *data, Tokens: tokens})
	if err != nil {
		return err
	}
	enc, err := crypto.Encrypt(c.indexKey, payload, crypto.RandomIV(), true, true)
	if err != nil {
		return err
	}
	return tx.Put(ElementDataOS, elementID, enc)
}

// GetElementData returns the stored location and tokens of an element, or
// (nil, nil, nil) when the element is not indexed.
func (c *IndexerCore) GetElementData(tx storage.Transaction, elementID string) (*ElementData, []string, error) {
	raw, err := tx.Get(ElementDataOS, elementID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	plain, err := crypto.Decrypt(c.indexKey, raw, true)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypting element data: %w", err)
	}
	var payload struct {
		ElementData
		Tokens []string `json:"tokens"`
	}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, nil, fmt.Errorf("decoding element data: %w", err)
	}
	return &payload.ElementData, payload.Tokens, nil
}

// DeleteElement removes an element from the index: its index entries and its
// element data record.
func (c *IndexerCore) DeleteElement(tx storage.Transaction, elementID string) error {
	_, tokens, err := c.GetElementData(tx, elementID)
	if err != nil {
		return err
	}
	if tokens == nil {
		return nil
	}
	if err := c.RemoveEntries(tx, tokens, elementID); err != nil {
		return err
	}
	return tx.Delete(ElementDataOS, elementID)
}

// IndexInstance tokenizes the given attributes of a decrypted instance and
// writes the resulting entries and element data in tx. Returns the tokens
// written.
func (c *IndexerCore) IndexInstance(tx storage.Transaction, instance mailvault.Instance, elementID, listID, ownerGroup string, attributes []string) ([]string, error) {
	entries := map[string][]IndexEntry{}
	var tokens []string
	for _, attr := range attributes {
		for _, token := range Tokenize(attributeText(instance, attr)) {
			if _, dup := entries[token]; !dup {
				tokens = append(tokens, token)
			}
			entries[token] = append(entries[token], IndexEntry{ID: elementID, Attribute: attr})
		}
	}
	if err := c.WriteEntries(tx, entries); err != nil {
		return nil, err
	}
	err := c.PutElementData(tx, elementID, &ElementData{ListID: listID, OwnerGroup: ownerGroup}, tokens)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// attributeText flattens an instance attribute to searchable text. Nested
// aggregates contribute their string values; a path of the form "a.b" reads
// field b of aggregate a, across all elements for repeated aggregates.
func attributeText(instance mailvault.Instance, attr string) string {
	name, rest, nested := strings.Cut(attr, ".")
	value, ok := instance[name]
	if !ok || value == nil {
		return ""
	}
	if !nested {
		s, _ := value.(string)
		return s
	}
	switch v := value.(type) {
	case mailvault.Instance:
		return attributeText(v, rest)
	case []any:
		var parts []string
		for _, item := range v {
			if inst, ok := item.(mailvault.Instance); ok {
				if text := attributeText(inst, rest); text != "" {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// Tokenize splits text into normalized search tokens: lower-cased runs of
// letters and digits, including address-local parts split on punctuation.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]struct{}{}
	tokens := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
