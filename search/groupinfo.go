package search

import (
	"context"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
)

// GroupInfoAttributes are the group info fields contributing search tokens.
var GroupInfoAttributes = []string{"name", "mailAddress"}

// GroupInfoIndexer indexes the group infos of the user's customer, used for
// admin-side member search.
type GroupInfoIndexer struct {
	attributeIndexer
}

// NewGroupInfoIndexer creates a group info indexer over model, which must
// describe the GroupInfo type.
func NewGroupInfoIndexer(core *IndexerCore, entities mailvault.EntityClient, facade *mailvault.CryptoFacade, mapper *mailvault.InstanceMapper, model *mailvault.TypeModel, log logging.Logger) *GroupInfoIndexer {
	return &GroupInfoIndexer{attributeIndexer{
		core:       core,
		entities:   entities,
		facade:     facade,
		mapper:     mapper,
		model:      model,
		attributes: GroupInfoAttributes,
		log:        log,
	}}
}

// IndexAll indexes every group info in listID in one transaction.
func (g *GroupInfoIndexer) IndexAll(ctx context.Context, listID string) error {
	infos, err := g.entities.LoadAll(ctx, g.model.Ref, listID, mailvault.GeneratedMinID)
	if err != nil {
		return err
	}
	tx, err := g.core.Store().OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	for _, lit := range infos {
		if err := g.indexLiteral(ctx, tx, lit, listID, literalElementID(lit)); err != nil {
			return err
		}
	}
	return tx.Wait()
}
