package search

import (
	"context"
	"sync"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
	"github.com/mailvault/client-go/storage"
)

// MailAttributes are the mail fields contributing search tokens.
var MailAttributes = []string{
	"subject",
	"sender.name", "sender.address",
	"toRecipients.name", "toRecipients.address",
	"ccRecipients.address",
}

// MailIndexer indexes mail. It starts disabled: fresh initialization defers
// bulk mail indexing, and a removed mail group membership disables it for
// the session. List ids on the exclusion list are never indexed.
type MailIndexer struct {
	attributeIndexer

	mu       sync.Mutex
	enabled  bool
	excluded map[string]struct{}
}

// NewMailIndexer creates a mail indexer over model, which must describe the
// Mail type.
func NewMailIndexer(core *IndexerCore, entities mailvault.EntityClient, facade *mailvault.CryptoFacade, mapper *mailvault.InstanceMapper, model *mailvault.TypeModel, log logging.Logger) *MailIndexer {
	return &MailIndexer{
		attributeIndexer: attributeIndexer{
			core:       core,
			entities:   entities,
			facade:     facade,
			mapper:     mapper,
			model:      model,
			attributes: MailAttributes,
			log:        log,
		},
		excluded: map[string]struct{}{},
	}
}

// SetEnabled toggles mail event indexing.
func (m *MailIndexer) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}

// Enabled reports whether mail events are being indexed.
func (m *MailIndexer) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetExcludedListIDs replaces the set of mail list ids excluded from
// indexing, typically spam and trash.
func (m *MailIndexer) SetExcludedListIDs(listIDs []string) {
	m.mu.Lock()
	m.excluded = make(map[string]struct{}, len(listIDs))
	for _, id := range listIDs {
		m.excluded[id] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *MailIndexer) isExcluded(listID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.excluded[listID]
	return ok
}

func (m *MailIndexer) ProcessEntityEvents(ctx context.Context, tx storage.Transaction, groupID string, events []mailvault.EntityUpdate) error {
	if !m.Enabled() {
		return nil
	}
	kept := make([]mailvault.EntityUpdate, 0, len(events))
	for _, ev := range events {
		if ev.Operation != mailvault.OperationDelete && m.isExcluded(ev.InstanceListID) {
			continue
		}
		kept = append(kept, ev)
	}
	return m.attributeIndexer.ProcessEntityEvents(ctx, tx, groupID, kept)
}
