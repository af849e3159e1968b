package search

import (
	"context"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
)

// WhitelabelChildAttributes are the whitelabel child fields contributing
// search tokens.
var WhitelabelChildAttributes = []string{"mailAddress", "comment"}

// WhitelabelChildIndexer indexes the whitelabel children administered by the
// user's customer. Only wired when the user is administrating.
type WhitelabelChildIndexer struct {
	attributeIndexer
}

// NewWhitelabelChildIndexer creates a whitelabel child indexer over model,
// which must describe the WhitelabelChild type.
func NewWhitelabelChildIndexer(core *IndexerCore, entities mailvault.EntityClient, facade *mailvault.CryptoFacade, mapper *mailvault.InstanceMapper, model *mailvault.TypeModel, log logging.Logger) *WhitelabelChildIndexer {
	return &WhitelabelChildIndexer{attributeIndexer{
		core:       core,
		entities:   entities,
		facade:     facade,
		mapper:     mapper,
		model:      model,
		attributes: WhitelabelChildAttributes,
		log:        log,
	}}
}

// IndexAll indexes every whitelabel child in listID in one transaction.
func (w *WhitelabelChildIndexer) IndexAll(ctx context.Context, listID string) error {
	children, err := w.entities.LoadAll(ctx, w.model.Ref, listID, mailvault.GeneratedMinID)
	if err != nil {
		return err
	}
	tx, err := w.core.Store().OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	for _, lit := range children {
		if err := w.indexLiteral(ctx, tx, lit, listID, literalElementID(lit)); err != nil {
			return err
		}
	}
	return tx.Wait()
}
