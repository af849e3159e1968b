package search

import (
	"context"
	"fmt"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
	"github.com/mailvault/client-go/storage"
)

// ContactAttributes are the contact fields contributing search tokens.
var ContactAttributes = []string{
	"firstName", "lastName", "nickname", "company", "comment",
	"mailAddresses.address",
}

// ContactIndexer indexes contacts. Unlike mail, a contact group's full
// history is indexed synchronously at initialization.
type ContactIndexer struct {
	attributeIndexer
}

// NewContactIndexer creates a contact indexer over model, which must
// describe the Contact type.
func NewContactIndexer(core *IndexerCore, entities mailvault.EntityClient, facade *mailvault.CryptoFacade, mapper *mailvault.InstanceMapper, model *mailvault.TypeModel, log logging.Logger) *ContactIndexer {
	return &ContactIndexer{attributeIndexer{
		core:       core,
		entities:   entities,
		facade:     facade,
		mapper:     mapper,
		model:      model,
		attributes: ContactAttributes,
		log:        log,
	}}
}

// NeedsFullBuild reports whether the group's contact history has not been
// indexed yet.
func (c *ContactIndexer) NeedsFullBuild(tx storage.Transaction, groupID string) (bool, error) {
	data, err := getGroupData(tx, groupID)
	if err != nil {
		return false, err
	}
	return data.IndexTimestamp == NothingIndexedTimestamp, nil
}

// contactsListID resolves the group's contact list through its list root.
func (c *ContactIndexer) contactsListID(ctx context.Context, groupID string) (string, error) {
	root, err := c.entities.LoadRoot(ctx, mailvault.ContactListTypeRef, groupID)
	if err != nil {
		return "", fmt.Errorf("loading contact list root for group %s: %w", groupID, err)
	}
	listID, _ := root["contacts"].(string)
	if listID == "" {
		return "", fmt.Errorf("contact list root of group %s names no contacts list", groupID)
	}
	return listID, nil
}

// IndexFullContactList indexes every contact of the group's contact list in
// one transaction and marks the group fully indexed.
func (c *ContactIndexer) IndexFullContactList(ctx context.Context, groupID string) error {
	contactsListID, err := c.contactsListID(ctx, groupID)
	if err != nil {
		return err
	}
	contacts, err := c.entities.LoadAll(ctx, c.model.Ref, contactsListID, mailvault.GeneratedMinID)
	if err != nil {
		return err
	}

	tx, err := c.core.Store().OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	for _, lit := range contacts {
		elementID := literalElementID(lit)
		if err := c.indexLiteral(ctx, tx, lit, contactsListID, elementID); err != nil {
			return err
		}
	}
	data, err := getGroupData(tx, groupID)
	if err != nil {
		return err
	}
	data.IndexTimestamp = FullIndexedTimestamp
	if err := putGroupData(tx, groupID, data); err != nil {
		return err
	}
	return tx.Wait()
}

// MarkFullyIndexed records that the group's contacts are covered without
// indexing, used when a freshly provisioned cache already holds the
// plaintext. The contact list is still bulk-downloaded once so the cache is
// fully populated; the literals themselves are not needed here.
func (c *ContactIndexer) MarkFullyIndexed(ctx context.Context, groupID string) error {
	contactsListID, err := c.contactsListID(ctx, groupID)
	if err != nil {
		return err
	}
	if _, err := c.entities.LoadAll(ctx, c.model.Ref, contactsListID, mailvault.GeneratedMinID); err != nil {
		return err
	}
	tx, err := c.core.Store().OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	data, err := getGroupData(tx, groupID)
	if err != nil {
		return err
	}
	data.IndexTimestamp = FullIndexedTimestamp
	if err := putGroupData(tx, groupID, data); err != nil {
		return err
	}
	return tx.Wait()
}

func literalElementID(lit mailvault.Literal) string {
	switch v := lit[mailvault.IDAttr].(type) {
	case string:
		return v
	case mailvault.IDTuple:
		return v.ElementID
	case []string:
		if len(v) == 2 {
			return v[1]
		}
	}
	return ""
}
