package mailvault

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/internal/logging"
)

// SystemMailAddress is the registry address server-originated system mail
// authenticates against. System mail carries no real sender, so its PQ
// envelopes are signed with the platform identity key published under this
// address.
const SystemMailAddress = "system@mailvault.net"

const maxAdminChainDepth = 8

// CryptoFacade resolves entity session keys across the three protection
// schemes (direct group wrap, symmetric bucket key, asymmetric bucket key)
// and produces outbound bucket-key wraps for internal recipients.
//
// Resolution has observable side effects: asymmetric bucket wraps are
// converted into stable group wraps and posted back through the update
// queue, and PQ envelopes are sender-authenticated against the public key
// registry.
type CryptoFacade struct {
	entities       EntityClient
	publicKeys     PublicKeyService
	permissionKeys PermissionKeyService
	userFacade     UserFacade
	updateQueue    *SessionKeyUpdateQueue
	log            logging.Logger

	// pqIdentityCache makes on-demand identity generation idempotent per
	// sender group: a retried send reuses the pair generated and published
	// by the first attempt instead of publishing a colliding second one.
	mu              sync.Mutex
	pqIdentityCache map[string]crypto.PQKeyPairs
}

// NewCryptoFacade wires the facade to its collaborators.
func NewCryptoFacade(entities EntityClient, publicKeys PublicKeyService, permissionKeys PermissionKeyService, userFacade UserFacade, updateQueue *SessionKeyUpdateQueue, log logging.Logger) *CryptoFacade {
	return &CryptoFacade{
		entities:        entities,
		publicKeys:      publicKeys,
		permissionKeys:  permissionKeys,
		userFacade:      userFacade,
		updateQueue:     updateQueue,
		log:             log,
		pqIdentityCache: map[string]crypto.PQKeyPairs{},
	}
}

// ResolveSessionKey returns the session key protecting literal, or (nil, nil)
// for unencrypted types. The resolution order is: bucket key aggregate,
// direct owner wrap, legacy permission list. If no path yields a key the
// call fails with SessionKeyNotFoundError.
func (f *CryptoFacade) ResolveSessionKey(ctx context.Context, model *TypeModel, literal Literal) ([]byte, error) {
	if !model.Encrypted {
		return nil, nil
	}

	if bkLit, ok := literal["bucketKey"].(Literal); ok {
		return f.resolveWithBucketKey(ctx, model, literal, BucketKeyFromLiteral(bkLit))
	}

	if wrapped := litBytes(literal, OwnerEncSessionKeyAttr); wrapped != nil {
		ownerGroup := litString(literal, OwnerGroupAttr)
		groupKey, err := f.resolveGroupKey(ctx, ownerGroup, 0)
		if err != nil {
			return nil, err
		}
		return crypto.DecryptKey(groupKey, wrapped)
	}

	if permList := litString(literal, PermissionsAttr); permList != "" {
		return f.resolveWithPermissions(ctx, literal, permList)
	}

	return nil, NewSessionKeyNotFoundError("no key path for %s instance %v", model.Name, litID(literal))
}

// resolveWithBucketKey unwraps the bucket key, extracts the target's session
// key, and queues every instance in the bucket for write-back under the
// owner group key.
func (f *CryptoFacade) resolveWithBucketKey(ctx context.Context, model *TypeModel, literal Literal, bk *BucketKey) ([]byte, error) {
	ownerGroup := litString(literal, OwnerGroupAttr)
	keyGroup := bk.KeyGroup
	if keyGroup == "" {
		keyGroup = ownerGroup
	}

	var bucketKey []byte
	var authStatus EncryptionAuthStatus
	switch {
	case bk.GroupEncBucketKey != nil:
		groupKey, err := f.resolveGroupKey(ctx, keyGroup, 0)
		if err != nil {
			return nil, err
		}
		bucketKey, err = crypto.DecryptKey(groupKey, bk.GroupEncBucketKey)
		if err != nil {
			return nil, fmt.Errorf("unwrapping bucket key with group %s: %w", keyGroup, err)
		}
		authStatus = EncryptionAuthAESNoAuthentication

	case crypto.IsPQMessage(bk.PubEncBucketKey):
		msg, err := crypto.DecodePQMessage(bk.PubEncBucketKey)
		if err != nil {
			return nil, err
		}
		pairs, err := f.loadPQKeyPairs(ctx, keyGroup)
		if err != nil {
			return nil, err
		}
		bucketKey, err = crypto.PQDecapsulate(msg, pairs)
		if err != nil {
			return nil, fmt.Errorf("decapsulating bucket key for group %s: %w", keyGroup, err)
		}
		authStatus = f.authenticateSender(ctx, literal, msg.SenderIdentityPubKey)

	case bk.PubEncBucketKey != nil:
		privKey, err := f.loadRSAPrivateKey(ctx, keyGroup)
		if err != nil {
			return nil, err
		}
		bucketKey, err = crypto.DecryptRSA(privKey, bk.PubEncBucketKey)
		if err != nil {
			return nil, fmt.Errorf("rsa-unwrapping bucket key for group %s: %w", keyGroup, err)
		}
		authStatus = EncryptionAuthRSANoAuthentication

	default:
		return nil, NewSessionKeyNotFoundError("bucket key of %s instance %v carries no wrap", model.Name, litID(literal))
	}

	return f.extractSessionKeys(ctx, model, literal, ownerGroup, bucketKey, authStatus, bk.BucketEncSessionKeys)
}

// extractSessionKeys unwraps every per-instance session key in the bucket,
// enqueues the whole set for write-back, and returns the target's key.
func (f *CryptoFacade) extractSessionKeys(ctx context.Context, model *TypeModel, literal Literal, ownerGroup string, bucketKey []byte, authStatus EncryptionAuthStatus, records []InstanceSessionKey) ([]byte, error) {
	groupKey, err := f.resolveGroupKey(ctx, ownerGroup, 0)
	if err != nil {
		return nil, err
	}

	instanceID := elementID(litID(literal))
	var target []byte
	updates := make([]InstanceSessionKeyUpdate, 0, len(records))
	for _, rec := range records {
		sk, err := crypto.DecryptKey(bucketKey, rec.SymEncSessionKey)
		if err != nil {
			return nil, fmt.Errorf("unwrapping session key of %s/%s: %w", rec.InstanceList, rec.InstanceID, err)
		}
		if rec.InstanceID == instanceID && matchesType(rec.TypeInfo, model.Ref) {
			target = sk
		}

		ownerEnc, err := crypto.EncryptKey(groupKey, sk)
		if err != nil {
			return nil, err
		}
		encStatus, err := crypto.Encrypt(sk, []byte(authStatus), crypto.RandomIV(), true, true)
		if err != nil {
			return nil, err
		}
		updates = append(updates, InstanceSessionKeyUpdate{
			InstanceList:         rec.InstanceList,
			InstanceID:           rec.InstanceID,
			TypeInfo:             rec.TypeInfo,
			OwnerEncSessionKey:   ownerEnc,
			EncryptionAuthStatus: encStatus,
		})
	}

	if target == nil {
		return nil, NewSessionKeyNotFoundError("bucket of %s instance %v has no session key for it", model.Name, litID(literal))
	}
	if err := f.updateQueue.Enqueue(updates); err != nil {
		f.log.Warn("session key write-back skipped", "updates", len(updates), "error", err)
	}
	return target, nil
}

// authenticateSender checks the envelope's embedded identity key against the
// registry entry of the purported sender. A lookup failure or mismatch flags
// the record; the session key stays usable either way.
func (f *CryptoFacade) authenticateSender(ctx context.Context, literal Literal, identityPubKey []byte) EncryptionAuthStatus {
	address := senderAddress(literal)
	published, err := f.publicKeys.GetPublicKeys(ctx, address)
	if err != nil {
		f.log.Warn("sender key lookup failed", "address", address, "error", err)
		return EncryptionAuthPQFailed
	}
	if !bytes.Equal(published.PubEccKey, identityPubKey) {
		f.log.Warn("sender identity key mismatch", "address", address)
		return EncryptionAuthPQFailed
	}
	return EncryptionAuthPQSucceeded
}

// senderAddress extracts the sender mail address from a mail literal.
// Server-originated system mail has no sender and authenticates against the
// system address instead.
func senderAddress(literal Literal) string {
	if sender, ok := literal["sender"].(Literal); ok {
		if addr := litString(sender, "address"); addr != "" {
			return addr
		}
	}
	return SystemMailAddress
}

// resolveWithPermissions is the legacy path for entities predating the
// bucketKey aggregate: scan the permission list for a symmetric wrap, else
// unwrap a public bucket permission and convert it to a symmetric one.
func (f *CryptoFacade) resolveWithPermissions(ctx context.Context, literal Literal, permListID string) ([]byte, error) {
	permLits, err := f.entities.LoadAll(ctx, PermissionTypeRef, permListID, GeneratedMinID)
	if err != nil {
		return nil, err
	}
	perms := make([]*Permission, 0, len(permLits))
	for _, pl := range permLits {
		perms = append(perms, PermissionFromLiteral(pl))
	}

	for _, p := range perms {
		if p.OwnerEncSessionKey == nil {
			continue
		}
		groupKey, err := f.resolveGroupKey(ctx, p.OwnerGroup, 0)
		if err != nil {
			continue
		}
		return crypto.DecryptKey(groupKey, p.OwnerEncSessionKey)
	}

	for _, p := range perms {
		if p.Type != PermissionTypePublic || p.BucketPermissionsList == "" {
			continue
		}
		sk, err := f.resolvePublicPermission(ctx, p)
		if err == nil {
			return sk, nil
		}
		f.log.Debug("public permission not resolvable", "permission", p.ID.ElementID, "error", err)
	}

	return nil, NewSessionKeyNotFoundError("no usable permission in list %s", permListID)
}

func (f *CryptoFacade) resolvePublicPermission(ctx context.Context, perm *Permission) ([]byte, error) {
	bpLits, err := f.entities.LoadAll(ctx, BucketPermissionTypeRef, perm.BucketPermissionsList, GeneratedMinID)
	if err != nil {
		return nil, err
	}
	for _, bpl := range bpLits {
		bp := BucketPermissionFromLiteral(bpl)
		bucketKey, err := f.unwrapBucketPermission(ctx, bp)
		if err != nil {
			f.log.Debug("bucket permission not resolvable", "bucketPermission", bp.ID.ElementID, "error", err)
			continue
		}
		sk, err := crypto.DecryptKey(bucketKey, perm.BucketEncSessionKey)
		if err != nil {
			return nil, err
		}
		f.writeBackPermissionKey(ctx, perm, bp, sk)
		return sk, nil
	}
	return nil, NewSessionKeyNotFoundError("no usable bucket permission for permission %s", perm.ID.ElementID)
}

func (f *CryptoFacade) unwrapBucketPermission(ctx context.Context, bp *BucketPermission) ([]byte, error) {
	switch {
	case bp.OwnerEncBucketKey != nil:
		groupKey, err := f.resolveGroupKey(ctx, bp.OwnerGroup, 0)
		if err != nil {
			return nil, err
		}
		return crypto.DecryptKey(groupKey, bp.OwnerEncBucketKey)
	case bp.SymEncBucketKey != nil:
		groupKey, err := f.resolveGroupKey(ctx, bp.Group, 0)
		if err != nil {
			return nil, err
		}
		return crypto.DecryptKey(groupKey, bp.SymEncBucketKey)
	case crypto.IsPQMessage(bp.PubEncBucketKey):
		msg, err := crypto.DecodePQMessage(bp.PubEncBucketKey)
		if err != nil {
			return nil, err
		}
		pairs, err := f.loadPQKeyPairs(ctx, bp.Group)
		if err != nil {
			return nil, err
		}
		return crypto.PQDecapsulate(msg, pairs)
	case bp.PubEncBucketKey != nil:
		privKey, err := f.loadRSAPrivateKey(ctx, bp.Group)
		if err != nil {
			return nil, err
		}
		return crypto.DecryptRSA(privKey, bp.PubEncBucketKey)
	}
	return nil, NewSessionKeyNotFoundError("bucket permission %s carries no wrap", bp.ID.ElementID)
}

// writeBackPermissionKey converts a resolved public permission into a stable
// symmetric one. Best effort: the session key is already in hand.
func (f *CryptoFacade) writeBackPermissionKey(ctx context.Context, perm *Permission, bp *BucketPermission, sessionKey []byte) {
	groupKey, err := f.resolveGroupKey(ctx, bp.Group, 0)
	if err != nil {
		f.log.Warn("permission key write-back skipped", "permission", perm.ID.ElementID, "error", err)
		return
	}
	ownerEnc, err := crypto.EncryptKey(groupKey, sessionKey)
	if err != nil {
		f.log.Warn("permission key write-back skipped", "permission", perm.ID.ElementID, "error", err)
		return
	}
	err = f.permissionKeys.UpdatePermissionKey(ctx, UpdatePermissionKeyData{
		Permission:         perm.ID,
		BucketPermission:   bp.ID,
		OwnerEncSessionKey: ownerEnc,
	})
	if err != nil {
		f.log.Warn("permission key write-back failed", "permission", perm.ID.ElementID, "error", err)
	}
}

// resolveGroupKey returns a group's symmetric key either from the user's
// membership ring or by walking the adminGroupEncGKey chain, which covers
// external user groups administered by a group the user is a member of.
func (f *CryptoFacade) resolveGroupKey(ctx context.Context, groupID string, depth int) ([]byte, error) {
	if groupID == "" {
		return nil, NewSessionKeyNotFoundError("empty group id")
	}
	if key, ok := f.userFacade.GetGroupKey(groupID); ok {
		return key, nil
	}
	if depth >= maxAdminChainDepth {
		return nil, NewSessionKeyNotFoundError("admin chain for group %s exceeds depth %d", groupID, maxAdminChainDepth)
	}

	group, err := f.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.AdminGroup == "" || group.AdminGroupEncGKey == nil {
		return nil, NewSessionKeyNotFoundError("group key for %s not held and no admin chain", groupID)
	}
	adminKey, err := f.resolveGroupKey(ctx, group.AdminGroup, depth+1)
	if err != nil {
		return nil, err
	}
	return crypto.DecryptKey(adminKey, group.AdminGroupEncGKey)
}

func (f *CryptoFacade) loadGroup(ctx context.Context, groupID string) (*Group, error) {
	lit, err := f.entities.Load(ctx, GroupTypeRef, groupID)
	if err != nil {
		return nil, err
	}
	return GroupFromLiteral(lit), nil
}

// loadPQKeyPairs loads a group's key pair and unwraps the PQ private halves
// with the group key. The X25519 half is key-wrapped; the larger ML-KEM half
// uses padded encryption.
func (f *CryptoFacade) loadPQKeyPairs(ctx context.Context, groupID string) (crypto.PQKeyPairs, error) {
	group, err := f.loadGroup(ctx, groupID)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	keys := group.CurrentKeys()
	if !keys.HasPQKeys() {
		return crypto.PQKeyPairs{}, NewSessionKeyNotFoundError("group %s has no pq key pair", groupID)
	}
	groupKey, err := f.resolveGroupKey(ctx, groupID, 0)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	privEcc, err := crypto.DecryptKey(groupKey, keys.SymEncPrivEccKey)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	privKyber, err := crypto.Decrypt(groupKey, keys.SymEncPrivKyberKey, true)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	return crypto.PQKeyPairs{
		EccKeyPair:   crypto.EccKeyPair{PublicKey: keys.PubEccKey, PrivateKey: privEcc},
		KyberKeyPair: crypto.KyberKeyPair{PublicKey: keys.PubKyberKey, PrivateKey: privKyber},
	}, nil
}

func (f *CryptoFacade) loadRSAPrivateKey(ctx context.Context, groupID string) (*rsa.PrivateKey, error) {
	group, err := f.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	keys := group.CurrentKeys()
	if !keys.HasRSAKeys() {
		return nil, NewSessionKeyNotFoundError("group %s has no rsa key pair", groupID)
	}
	groupKey, err := f.resolveGroupKey(ctx, groupID, 0)
	if err != nil {
		return nil, err
	}
	return crypto.DecryptRSAKey(groupKey, keys.SymEncPrivRSAKey)
}

// EncryptBucketKeyForInternalRecipient wraps bucketKey for one internal
// recipient: PQ encapsulation when the recipient has a hybrid key bundle,
// RSA-OAEP for legacy recipients. When the sender group lacks a PQ identity
// it is generated, published, and cached so a retry reuses the same pair.
func (f *CryptoFacade) EncryptBucketKeyForInternalRecipient(ctx context.Context, senderGroupID string, bucketKey []byte, recipientAddress string) (*InternalRecipientKeyData, error) {
	recipient, err := f.publicKeys.GetPublicKeys(ctx, recipientAddress)
	if err != nil {
		return nil, err
	}

	var pubEnc []byte
	switch {
	case recipient.HasPQKeys():
		identity, err := f.ensurePQIdentity(ctx, senderGroupID)
		if err != nil {
			return nil, err
		}
		ephemeral, err := crypto.GenerateEccKeyPair()
		if err != nil {
			return nil, err
		}
		msg, err := crypto.PQEncapsulate(identity.EccKeyPair, ephemeral, crypto.PQPublicKeys{
			EccPublicKey:   recipient.PubEccKey,
			KyberPublicKey: recipient.PubKyberKey,
		}, bucketKey)
		if err != nil {
			return nil, err
		}
		pubEnc = crypto.EncodePQMessage(msg)

	case recipient.PubRSAKey != nil:
		rsaPub, err := crypto.RSAPublicKeyFromBytes(recipient.PubRSAKey)
		if err != nil {
			return nil, err
		}
		pubEnc, err = crypto.EncryptRSA(rsaPub, bucketKey)
		if err != nil {
			return nil, err
		}

	default:
		return nil, ErrNoPublicKeys
	}

	return &InternalRecipientKeyData{
		MailAddress:     recipientAddress,
		PubEncBucketKey: pubEnc,
		PubKeyVersion:   recipient.PubKeyVersion,
	}, nil
}

// ensurePQIdentity returns the sender group's PQ identity key pair,
// generating and publishing one when missing. Generation is cached per
// group for the lifetime of the facade.
func (f *CryptoFacade) ensurePQIdentity(ctx context.Context, groupID string) (crypto.PQKeyPairs, error) {
	f.mu.Lock()
	if pairs, ok := f.pqIdentityCache[groupID]; ok {
		f.mu.Unlock()
		return pairs, nil
	}
	f.mu.Unlock()

	pairs, err := f.loadPQKeyPairs(ctx, groupID)
	if err == nil {
		f.mu.Lock()
		f.pqIdentityCache[groupID] = pairs
		f.mu.Unlock()
		return pairs, nil
	}
	var skErr *SessionKeyNotFoundError
	if !errors.As(err, &skErr) {
		return crypto.PQKeyPairs{}, err
	}

	groupKey, err := f.resolveGroupKey(ctx, groupID, 0)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	pairs, err = crypto.GeneratePQKeyPairs()
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	symEncPrivEcc, err := crypto.EncryptKey(groupKey, pairs.EccKeyPair.PrivateKey)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	symEncPrivKyber, err := crypto.Encrypt(groupKey, pairs.KyberKeyPair.PrivateKey, crypto.RandomIV(), true, true)
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}
	err = f.publicKeys.PutPublicKeys(ctx, &PublicKeyPutData{
		KeyGroup:           groupID,
		PubEccKey:          pairs.EccKeyPair.PublicKey,
		SymEncPrivEccKey:   symEncPrivEcc,
		PubKyberKey:        pairs.KyberKeyPair.PublicKey,
		SymEncPrivKyberKey: symEncPrivKyber,
	})
	if err != nil {
		return crypto.PQKeyPairs{}, err
	}

	f.mu.Lock()
	f.pqIdentityCache[groupID] = pairs
	f.mu.Unlock()
	f.log.Info("generated pq identity key pair", "group", groupID)
	return pairs, nil
}

func elementID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case IDTuple:
		return v.ElementID
	}
	return ""
}

func matchesType(ti TypeInfo, ref TypeRef) bool {
	if ti.Application == "" && ti.TypeID == "" {
		return true
	}
	return ti.Application == ref.App && ti.TypeID == ref.Type
}
