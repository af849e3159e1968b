package search

import (
	"context"
	"errors"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/logging"
	"github.com/mailvault/client-go/storage"
)

// EntityIndexer processes the events of one entity type inside the
// per-batch transaction opened by the Indexer.
type EntityIndexer interface {
	TypeRef() mailvault.TypeRef
	ProcessEntityEvents(ctx context.Context, tx storage.Transaction, groupID string, events []mailvault.EntityUpdate) error
}

// attributeIndexer loads, decrypts, and tokenizes entities of one type. The
// concrete indexers wrap it with their own enablement and bulk-build rules.
type attributeIndexer struct {
	core       *IndexerCore
	entities   mailvault.EntityClient
	facade     *mailvault.CryptoFacade
	mapper     *mailvault.InstanceMapper
	model      *mailvault.TypeModel
	attributes []string
	log        logging.Logger
}

func (a *attributeIndexer) TypeRef() mailvault.TypeRef { return a.model.Ref }

func (a *attributeIndexer) ProcessEntityEvents(ctx context.Context, tx storage.Transaction, groupID string, events []mailvault.EntityUpdate) error {
	for _, ev := range events {
		switch ev.Operation {
		case mailvault.OperationDelete:
			if err := a.core.DeleteElement(tx, ev.InstanceID); err != nil {
				return err
			}
		default:
			if err := a.indexElement(ctx, tx, ev.InstanceListID, ev.InstanceID); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexElement loads and indexes one element, replacing any previous index
// state for it. Elements deleted or unreadable by the time we load them are
// skipped: the event log outruns entity lifetime.
func (a *attributeIndexer) indexElement(ctx context.Context, tx storage.Transaction, listID, elementID string) error {
	var id any = elementID
	if listID != "" {
		id = mailvault.IDTuple{ListID: listID, ElementID: elementID}
	}
	literal, err := a.entities.Load(ctx, a.model.Ref, id)
	if mailvault.IsNotFound(err) || mailvault.IsNotAuthorized(err) {
		a.log.Debug("skipping unloadable element", "type", a.model.Name, "element", elementID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	return a.indexLiteral(ctx, tx, literal, listID, elementID)
}

func (a *attributeIndexer) indexLiteral(ctx context.Context, tx storage.Transaction, literal mailvault.Literal, listID, elementID string) error {
	sk, err := a.facade.ResolveSessionKey(ctx, a.model, literal)
	if err != nil {
		var skErr *mailvault.SessionKeyNotFoundError
		if errors.As(err, &skErr) {
			a.log.Warn("element has no resolvable session key, not indexing", "type", a.model.Name, "element", elementID)
			return nil
		}
		return err
	}
	instance, err := a.mapper.DecryptAndMapToInstance(a.model, literal, sk)
	if err != nil {
		return err
	}
	ownerGroup, _ := instance[mailvault.OwnerGroupAttr].(string)

	if err := a.core.DeleteElement(tx, elementID); err != nil {
		return err
	}
	_, err = a.core.IndexInstance(tx, instance, elementID, listID, ownerGroup, a.attributes)
	return err
}
