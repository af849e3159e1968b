package mailvault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/internal/logging"
)

// Collaborators are the application-owned services a Client depends on:
// entity transport, the public key registry, and the two key write-back
// services. All of them must be set.
type Collaborators struct {
	Entities       EntityClient
	PublicKeys     PublicKeyService
	PermissionKeys PermissionKeyService
	SessionKeys    SessionKeyService
	UserFacade     UserFacade
}

// Client bundles the entity cryptography layer: one crypto facade, one
// instance mapper, and one session key write-back queue, shared by every
// load and store going through it. A Client is safe for concurrent use.
type Client struct {
	id         string
	entities   EntityClient
	userFacade UserFacade
	mapper     *InstanceMapper
	facade     *CryptoFacade
	updates    *SessionKeyUpdateQueue
	log        logging.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Client over the given collaborators.
func New(collab Collaborators, opts ...Option) (*Client, error) {
	if collab.Entities == nil || collab.PublicKeys == nil || collab.PermissionKeys == nil ||
		collab.SessionKeys == nil || collab.UserFacade == nil {
		return nil, fmt.Errorf("mailvault: incomplete collaborators")
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	log := cfg.logger.With("client", cfg.id)

	updates := NewSessionKeyUpdateQueue(collab.SessionKeys, log)
	c := &Client{
		id:         cfg.id,
		entities:   collab.Entities,
		userFacade: collab.UserFacade,
		mapper:     NewInstanceMapper(),
		facade:     NewCryptoFacade(collab.Entities, collab.PublicKeys, collab.PermissionKeys, collab.UserFacade, updates, log),
		updates:    updates,
		log:        log,
	}
	return c, nil
}

// ID returns the client's instance id, present on every log line it emits.
func (c *Client) ID() string { return c.id }

// Facade exposes the crypto facade for callers that need raw session key
// resolution, e.g. the search indexer.
func (c *Client) Facade() *CryptoFacade { return c.facade }

// Mapper exposes the instance mapper.
func (c *Client) Mapper() *InstanceMapper { return c.mapper }

// LoadDecrypted loads one entity and returns its decrypted instance. id is a
// string for element types or an IDTuple for list element types. Individual
// field decryption failures are recorded in the instance's ErrorsKey sidecar
// rather than failing the load.
func (c *Client) LoadDecrypted(ctx context.Context, model *TypeModel, id any) (Instance, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	literal, err := c.entities.Load(ctx, model.Ref, id)
	if err != nil {
		return nil, err
	}
	return c.decryptLiteral(ctx, model, literal)
}

// LoadAllDecrypted loads and decrypts all elements of a list after startID.
// Elements whose session key cannot be resolved are skipped: one broken
// entity must not make the whole list unreadable.
func (c *Client) LoadAllDecrypted(ctx context.Context, model *TypeModel, listID, startID string) ([]Instance, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	literals, err := c.entities.LoadAll(ctx, model.Ref, listID, startID)
	if err != nil {
		return nil, err
	}
	instances := make([]Instance, 0, len(literals))
	for _, lit := range literals {
		instance, err := c.decryptLiteral(ctx, model, lit)
		if err != nil {
			var skErr *SessionKeyNotFoundError
			if errors.As(err, &skErr) {
				c.log.Warn("skipping element without resolvable session key", "type", model.Name, "id", litID(lit))
				continue
			}
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

func (c *Client) decryptLiteral(ctx context.Context, model *TypeModel, literal Literal) (Instance, error) {
	sk, err := c.facade.ResolveSessionKey(ctx, model, literal)
	if err != nil {
		return nil, err
	}
	return c.mapper.DecryptAndMapToInstance(model, literal, sk)
}

// EncryptInstance converts an instance to its wire literal under a fresh
// session key wrapped for ownerGroup, returning the literal and the session
// key for further wrapping (e.g. attaching files to the same bucket).
func (c *Client) EncryptInstance(ctx context.Context, model *TypeModel, instance Instance, ownerGroup string) (Literal, []byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, nil, err
	}
	groupKey, ok := c.userFacade.GetGroupKey(ownerGroup)
	if !ok {
		return nil, nil, NewSessionKeyNotFoundError("group key for %s not held", ownerGroup)
	}
	sk := crypto.Random256Key()
	literal, err := c.mapper.EncryptAndMapToLiteral(model, instance, sk)
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := crypto.EncryptKey(groupKey, sk)
	if err != nil {
		return nil, nil, err
	}
	literal[OwnerGroupAttr] = ownerGroup
	literal[OwnerEncSessionKeyAttr] = crypto.ToBase64(wrapped)
	return literal, sk, nil
}

// WrapBucketKeyForRecipients wraps an outbound bucket key for each internal
// recipient address, generating and publishing the sender group's PQ
// identity on first use. One unknown recipient fails the whole call: partial
// key distribution would leave an unreadable mail.
func (c *Client) WrapBucketKeyForRecipients(ctx context.Context, senderGroup string, bucketKey []byte, addresses []string) ([]InternalRecipientKeyData, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]InternalRecipientKeyData, 0, len(addresses))
	for _, addr := range addresses {
		data, err := c.facade.EncryptBucketKeyForInternalRecipient(ctx, senderGroup, bucketKey, addr)
		if err != nil {
			return nil, fmt.Errorf("wrapping bucket key for %s: %w", addr, err)
		}
		out = append(out, *data)
	}
	return out, nil
}

// FlushKeyUpdates blocks until every queued session key write-back has been
// posted or dropped.
func (c *Client) FlushKeyUpdates() {
	c.updates.Flush()
}

// Close shuts the write-back queue down after draining it. Further calls on
// the client return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.updates.Close()
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}
