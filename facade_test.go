package mailvault

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/internal/logging"
)

// --- fakes ---

type fakeEntityClient struct {
	entities map[string]Literal
	lists    map[string][]Literal
}

func newFakeEntityClient() *fakeEntityClient {
	return &fakeEntityClient{entities: map[string]Literal{}, lists: map[string][]Literal{}}
}

func entityKey(ref TypeRef, id any) string {
	return fmt.Sprintf("%s/%s/%v", ref.App, ref.Type, id)
}

func (c *fakeEntityClient) putEntity(ref TypeRef, id any, lit Literal) {
	c.entities[entityKey(ref, id)] = lit
}

func (c *fakeEntityClient) putList(ref TypeRef, listID string, lits ...Literal) {
	c.lists[entityKey(ref, listID)] = lits
}

func (c *fakeEntityClient) Load(_ context.Context, ref TypeRef, id any) (Literal, error) {
	lit, ok := c.entities[entityKey(ref, id)]
	if !ok {
		return nil, &NotFoundError{Message: entityKey(ref, id)}
	}
	return lit, nil
}

func (c *fakeEntityClient) LoadAll(_ context.Context, ref TypeRef, listID, _ string) ([]Literal, error) {
	return c.lists[entityKey(ref, listID)], nil
}

func (c *fakeEntityClient) LoadRange(_ context.Context, ref TypeRef, listID, _ string, _ int, _ bool) ([]Literal, error) {
	return c.lists[entityKey(ref, listID)], nil
}

func (c *fakeEntityClient) LoadRoot(_ context.Context, ref TypeRef, groupID string) (Literal, error) {
	return c.Load(context.Background(), ref, groupID)
}

type fakePublicKeyService struct {
	mu      sync.Mutex
	bundles map[string]*PublicKeys
	puts    []*PublicKeyPutData
}

func newFakePublicKeyService() *fakePublicKeyService {
	return &fakePublicKeyService{bundles: map[string]*PublicKeys{}}
}

func (s *fakePublicKeyService) GetPublicKeys(_ context.Context, addr string) (*PublicKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[addr]
	if !ok {
		return nil, &NotFoundError{}
	}
	return b, nil
}

func (s *fakePublicKeyService) PutPublicKeys(_ context.Context, data *PublicKeyPutData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, data)
	return nil
}

type fakePermissionKeyService struct {
	mu      sync.Mutex
	updates []UpdatePermissionKeyData
}

func (s *fakePermissionKeyService) UpdatePermissionKey(_ context.Context, data UpdatePermissionKeyData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, data)
	return nil
}

type fakeUserFacade struct {
	user      *User
	groupKeys map[string][]byte
}

func newFakeUserFacade() *fakeUserFacade {
	return &fakeUserFacade{
		user:      &User{ID: "user1", UserGroup: GroupMembership{Group: "userGroup", GroupType: GroupTypeUser}},
		groupKeys: map[string][]byte{},
	}
}

func (u *fakeUserFacade) User() *User { return u.user }

func (u *fakeUserFacade) GetGroupKey(groupID string) ([]byte, bool) {
	k, ok := u.groupKeys[groupID]
	return k, ok
}

func (u *fakeUserFacade) GetUserGroupKey() []byte { return u.groupKeys["userGroup"] }

func (u *fakeUserFacade) GetUserGroupID() string { return "userGroup" }

// --- fixture ---

type facadeFixture struct {
	entities   *fakeEntityClient
	publicKeys *fakePublicKeyService
	permKeys   *fakePermissionKeyService
	userFacade *fakeUserFacade
	sessionSvc *recordingSessionKeyService
	queue      *SessionKeyUpdateQueue
	facade     *CryptoFacade
}

func newFacadeFixture(t *testing.T) *facadeFixture {
	t.Helper()
	fx := &facadeFixture{
		entities:   newFakeEntityClient(),
		publicKeys: newFakePublicKeyService(),
		permKeys:   &fakePermissionKeyService{},
		userFacade: newFakeUserFacade(),
		sessionSvc: &recordingSessionKeyService{},
	}
	fx.queue = NewSessionKeyUpdateQueue(fx.sessionSvc, logging.Discard())
	t.Cleanup(fx.queue.Close)
	fx.facade = NewCryptoFacade(fx.entities, fx.publicKeys, fx.permKeys, fx.userFacade, fx.queue, logging.Discard())
	return fx
}

func b64(b []byte) string { return crypto.ToBase64(b) }

func mustEncryptKey(t *testing.T, encKey, key []byte) []byte {
	t.Helper()
	wrapped, err := crypto.EncryptKey(encKey, key)
	require.NoError(t, err)
	return wrapped
}

// putPQGroup stores a Group entity holding a PQ key pair wrapped under
// groupKey and returns the pair.
func putPQGroup(t *testing.T, fx *facadeFixture, groupID string, groupKey []byte) crypto.PQKeyPairs {
	t.Helper()
	pairs, err := crypto.GeneratePQKeyPairs()
	require.NoError(t, err)
	encKyber, err := crypto.Encrypt(groupKey, pairs.KyberKeyPair.PrivateKey, crypto.RandomIV(), true, true)
	require.NoError(t, err)
	fx.entities.putEntity(GroupTypeRef, groupID, Literal{
		IDAttr: groupID,
		"type": string(GroupTypeUser),
		"keys": []any{Literal{
			"pubEccKey":          b64(pairs.EccKeyPair.PublicKey),
			"symEncPrivEccKey":   b64(mustEncryptKey(t, groupKey, pairs.EccKeyPair.PrivateKey)),
			"pubKyberKey":        b64(pairs.KyberKeyPair.PublicKey),
			"symEncPrivKyberKey": b64(encKyber),
			"version":            "0",
		}},
	})
	return pairs
}

func simpleMailModel() *TypeModel {
	return &TypeModel{Ref: MailTypeRef, Name: "Mail", Encrypted: true}
}

// --- tests ---

func TestResolveSessionKeyUnencryptedType(t *testing.T) {
	fx := newFacadeFixture(t)
	model := &TypeModel{Ref: MailTypeRef, Name: "MailboxGroupRoot", Encrypted: false}

	sk, err := fx.facade.ResolveSessionKey(context.Background(), model, Literal{IDAttr: "x"})
	require.NoError(t, err)
	assert.Nil(t, sk)
}

func TestResolveSessionKeyDirectOwnerWrap(t *testing.T) {
	fx := newFacadeFixture(t)
	groupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["mailGroup"] = groupKey
	sessionKey := crypto.Random128Key()

	literal := Literal{
		IDAttr:                 IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr:         "mailGroup",
		OwnerEncSessionKeyAttr: b64(mustEncryptKey(t, groupKey, sessionKey)),
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)
}

func TestResolveSessionKeyNoPath(t *testing.T) {
	fx := newFacadeFixture(t)
	literal := Literal{
		IDAttr:         IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr: "mailGroup",
	}
	_, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	var skErr *SessionKeyNotFoundError
	require.ErrorAs(t, err, &skErr)
}

func TestResolveSessionKeyAdminChain(t *testing.T) {
	fx := newFacadeFixture(t)
	adminKey := crypto.Random128Key()
	fx.userFacade.groupKeys["localAdmin"] = adminKey
	externalKey := crypto.Random128Key()
	fx.entities.putEntity(GroupTypeRef, "extGroup", Literal{
		IDAttr:              "extGroup",
		"type":              string(GroupTypeExternal),
		"admin":             "localAdmin",
		"adminGroupEncGKey": b64(mustEncryptKey(t, adminKey, externalKey)),
		"external":          "1",
	})
	sessionKey := crypto.Random128Key()
	literal := Literal{
		IDAttr:                 IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr:         "extGroup",
		OwnerEncSessionKeyAttr: b64(mustEncryptKey(t, externalKey, sessionKey)),
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)
}

func TestResolveSessionKeySymmetricBucketKey(t *testing.T) {
	fx := newFacadeFixture(t)
	groupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["mailGroup"] = groupKey
	bucketKey := crypto.Random128Key()
	sessionKey := crypto.Random128Key()

	literal := Literal{
		IDAttr:         IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr: "mailGroup",
		"bucketKey": Literal{
			"groupEncBucketKey": b64(mustEncryptKey(t, groupKey, bucketKey)),
			"keyGroup":          "mailGroup",
			"bucketEncSessionKeys": []any{Literal{
				"instanceList":     "l1",
				"instanceId":       "m1",
				"symEncSessionKey": b64(mustEncryptKey(t, bucketKey, sessionKey)),
			}},
		},
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)

	fx.queue.Flush()
	batches := fx.sessionSvc.recorded()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	update := batches[0][0]

	rewrapped, err := crypto.DecryptKey(groupKey, update.OwnerEncSessionKey)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, rewrapped)

	status, err := crypto.Decrypt(sessionKey, update.EncryptionAuthStatus, true)
	require.NoError(t, err)
	assert.Equal(t, string(EncryptionAuthAESNoAuthentication), string(status))
}

func pqMailFixture(t *testing.T, fx *facadeFixture, registryKey []byte) (literal Literal, sessionKeys [][]byte) {
	t.Helper()
	userGroupKey := crypto.Random256Key()
	mailGroupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["userGroup"] = userGroupKey
	fx.userFacade.groupKeys["mailGroup"] = mailGroupKey

	recipientPairs := putPQGroup(t, fx, "userGroup", userGroupKey)

	senderIdentity, err := crypto.GenerateEccKeyPair()
	require.NoError(t, err)
	ephemeral, err := crypto.GenerateEccKeyPair()
	require.NoError(t, err)
	bucketKey := crypto.Random256Key()
	msg, err := crypto.PQEncapsulate(senderIdentity, ephemeral, recipientPairs.ToPublicKeys(), bucketKey)
	require.NoError(t, err)

	if registryKey == nil {
		registryKey = senderIdentity.PublicKey
	}
	fx.publicKeys.bundles["alice@example.com"] = &PublicKeys{
		PubKeyVersion: "0",
		PubEccKey:     registryKey,
	}

	// one mail plus two attachments share the bucket
	records := []any{}
	for i, id := range []string{"m1", "f1", "f2"} {
		sk := crypto.Random128Key()
		sessionKeys = append(sessionKeys, sk)
		list := "mails"
		if i > 0 {
			list = "files"
		}
		records = append(records, Literal{
			"instanceList":     list,
			"instanceId":       id,
			"symEncSessionKey": b64(mustEncryptKey(t, bucketKey, sk)),
		})
	}

	literal = Literal{
		IDAttr:         IDTuple{ListID: "mails", ElementID: "m1"},
		OwnerGroupAttr: "mailGroup",
		"sender":       Literal{"address": "alice@example.com"},
		"bucketKey": Literal{
			"pubEncBucketKey":      b64(crypto.EncodePQMessage(msg)),
			"keyGroup":             "userGroup",
			"bucketEncSessionKeys": records,
		},
	}
	return literal, sessionKeys
}

func TestResolveSessionKeyPQEnvelope(t *testing.T) {
	fx := newFacadeFixture(t)
	literal, sessionKeys := pqMailFixture(t, fx, nil)

	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKeys[0], sk)

	// one write-back covering the mail and both attachments
	fx.queue.Flush()
	batches := fx.sessionSvc.recorded()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)

	mailGroupKey := fx.userFacade.groupKeys["mailGroup"]
	for i, update := range batches[0] {
		rewrapped, err := crypto.DecryptKey(mailGroupKey, update.OwnerEncSessionKey)
		require.NoError(t, err)
		assert.Equal(t, sessionKeys[i], rewrapped)

		status, err := crypto.Decrypt(sessionKeys[i], update.EncryptionAuthStatus, true)
		require.NoError(t, err)
		assert.Equal(t, string(EncryptionAuthPQSucceeded), string(status))
	}
}

func TestResolveSessionKeyPQAuthMismatch(t *testing.T) {
	fx := newFacadeFixture(t)
	other, err := crypto.GenerateEccKeyPair()
	require.NoError(t, err)
	literal, sessionKeys := pqMailFixture(t, fx, other.PublicKey)

	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKeys[0], sk)

	fx.queue.Flush()
	batches := fx.sessionSvc.recorded()
	require.Len(t, batches, 1)
	status, err := crypto.Decrypt(sessionKeys[0], batches[0][0].EncryptionAuthStatus, true)
	require.NoError(t, err)
	assert.Equal(t, string(EncryptionAuthPQFailed), string(status))
}

func putRSAGroup(t *testing.T, fx *facadeFixture, groupID string, groupKey []byte) *PublicKeys {
	t.Helper()
	priv, err := crypto.GenerateRSAKeyPair()
	require.NoError(t, err)
	encPriv, err := crypto.EncryptRSAKey(groupKey, priv, crypto.RandomIV())
	require.NoError(t, err)
	pubBytes := crypto.RSAPublicKeyToBytes(&priv.PublicKey)
	fx.entities.putEntity(GroupTypeRef, groupID, Literal{
		IDAttr: groupID,
		"type": string(GroupTypeUser),
		"keys": []any{Literal{
			"pubRsaKey":        b64(pubBytes),
			"symEncPrivRsaKey": b64(encPriv),
			"version":          "0",
		}},
	})
	return &PublicKeys{PubKeyVersion: "0", PubRSAKey: pubBytes}
}

func TestResolveSessionKeyLegacyRSABucketKey(t *testing.T) {
	fx := newFacadeFixture(t)
	userGroupKey := crypto.Random128Key()
	mailGroupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["userGroup"] = userGroupKey
	fx.userFacade.groupKeys["mailGroup"] = mailGroupKey
	bundle := putRSAGroup(t, fx, "userGroup", userGroupKey)

	bucketKey := crypto.Random128Key()
	sessionKey := crypto.Random128Key()
	rsaPub, err := crypto.RSAPublicKeyFromBytes(bundle.PubRSAKey)
	require.NoError(t, err)
	pubEnc, err := crypto.EncryptRSA(rsaPub, bucketKey)
	require.NoError(t, err)

	literal := Literal{
		IDAttr:         IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr: "mailGroup",
		"bucketKey": Literal{
			"pubEncBucketKey": b64(pubEnc),
			"keyGroup":        "userGroup",
			"bucketEncSessionKeys": []any{Literal{
				"instanceList":     "l1",
				"instanceId":       "m1",
				"symEncSessionKey": b64(mustEncryptKey(t, bucketKey, sessionKey)),
			}},
		},
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)

	fx.queue.Flush()
	batches := fx.sessionSvc.recorded()
	require.Len(t, batches, 1)
	status, err := crypto.Decrypt(sessionKey, batches[0][0].EncryptionAuthStatus, true)
	require.NoError(t, err)
	assert.Equal(t, string(EncryptionAuthRSANoAuthentication), string(status))
}

func TestResolveSessionKeySymmetricPermission(t *testing.T) {
	fx := newFacadeFixture(t)
	groupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["mailGroup"] = groupKey
	sessionKey := crypto.Random128Key()

	fx.entities.putList(PermissionTypeRef, "permList", Literal{
		IDAttr:                 []string{"permList", "p1"},
		"type":                 string(PermissionTypeSymmetric),
		OwnerGroupAttr:         "mailGroup",
		OwnerEncSessionKeyAttr: b64(mustEncryptKey(t, groupKey, sessionKey)),
	})
	literal := Literal{
		IDAttr:          IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr:  "mailGroup",
		PermissionsAttr: "permList",
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)
}

func TestResolveSessionKeyPublicPermissionWithWriteBack(t *testing.T) {
	fx := newFacadeFixture(t)
	userGroupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["userGroup"] = userGroupKey
	bundle := putRSAGroup(t, fx, "userGroup", userGroupKey)

	bucketKey := crypto.Random128Key()
	sessionKey := crypto.Random128Key()
	rsaPub, err := crypto.RSAPublicKeyFromBytes(bundle.PubRSAKey)
	require.NoError(t, err)
	pubEncBucketKey, err := crypto.EncryptRSA(rsaPub, bucketKey)
	require.NoError(t, err)

	fx.entities.putList(PermissionTypeRef, "permList", Literal{
		IDAttr:                []string{"permList", "p1"},
		"type":                string(PermissionTypePublic),
		"bucketEncSessionKey": b64(mustEncryptKey(t, bucketKey, sessionKey)),
		"bucket":              Literal{"bucketPermissions": "bpList"},
	})
	fx.entities.putList(BucketPermissionTypeRef, "bpList", Literal{
		IDAttr:            []string{"bpList", "bp1"},
		"type":            string(BucketPermissionTypePublic),
		"group":           "userGroup",
		"pubEncBucketKey": b64(pubEncBucketKey),
	})
	literal := Literal{
		IDAttr:          IDTuple{ListID: "l1", ElementID: "m1"},
		OwnerGroupAttr:  "mailGroup",
		PermissionsAttr: "permList",
	}
	sk, err := fx.facade.ResolveSessionKey(context.Background(), simpleMailModel(), literal)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, sk)

	// the public permission is upgraded to a symmetric one
	require.Len(t, fx.permKeys.updates, 1)
	update := fx.permKeys.updates[0]
	assert.Equal(t, IDTuple{ListID: "permList", ElementID: "p1"}, update.Permission)
	assert.Equal(t, IDTuple{ListID: "bpList", ElementID: "bp1"}, update.BucketPermission)
	rewrapped, err := crypto.DecryptKey(userGroupKey, update.OwnerEncSessionKey)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, rewrapped)
}

func TestEncryptBucketKeyForRSARecipient(t *testing.T) {
	fx := newFacadeFixture(t)
	priv, err := crypto.GenerateRSAKeyPair()
	require.NoError(t, err)
	fx.publicKeys.bundles["bob@example.com"] = &PublicKeys{
		PubKeyVersion: "0",
		PubRSAKey:     crypto.RSAPublicKeyToBytes(&priv.PublicKey),
	}

	bucketKey := crypto.Random128Key()
	data, err := fx.facade.EncryptBucketKeyForInternalRecipient(context.Background(), "userGroup", bucketKey, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", data.MailAddress)

	got, err := crypto.DecryptRSA(priv, data.PubEncBucketKey)
	require.NoError(t, err)
	assert.Equal(t, bucketKey, got)
}

func TestEncryptBucketKeyForPQRecipientGeneratesIdentityOnce(t *testing.T) {
	fx := newFacadeFixture(t)
	userGroupKey := crypto.Random128Key()
	fx.userFacade.groupKeys["userGroup"] = userGroupKey
	// sender group exists but has no key pair yet
	fx.entities.putEntity(GroupTypeRef, "userGroup", Literal{
		IDAttr: "userGroup",
		"type": string(GroupTypeUser),
		"keys": []any{Literal{"version": "0"}},
	})

	recipientPairs, err := crypto.GeneratePQKeyPairs()
	require.NoError(t, err)
	fx.publicKeys.bundles["bob@example.com"] = &PublicKeys{
		PubKeyVersion: "1",
		PubEccKey:     recipientPairs.EccKeyPair.PublicKey,
		PubKyberKey:   recipientPairs.KyberKeyPair.PublicKey,
	}

	bucketKey := crypto.Random256Key()
	first, err := fx.facade.EncryptBucketKeyForInternalRecipient(context.Background(), "userGroup", bucketKey, "bob@example.com")
	require.NoError(t, err)
	second, err := fx.facade.EncryptBucketKeyForInternalRecipient(context.Background(), "userGroup", bucketKey, "bob@example.com")
	require.NoError(t, err)

	// a retry must not publish a second identity
	require.Len(t, fx.publicKeys.puts, 1)
	put := fx.publicKeys.puts[0]
	assert.Equal(t, "userGroup", put.KeyGroup)
	privEcc, err := crypto.DecryptKey(userGroupKey, put.SymEncPrivEccKey)
	require.NoError(t, err)
	assert.Equal(t, put.PubEccKey, mustPublicFromPrivate(t, privEcc))

	for _, data := range []*InternalRecipientKeyData{first, second} {
		msg, err := crypto.DecodePQMessage(data.PubEncBucketKey)
		require.NoError(t, err)
		assert.Equal(t, put.PubEccKey, msg.SenderIdentityPubKey)
		got, err := crypto.PQDecapsulate(msg, recipientPairs)
		require.NoError(t, err)
		assert.Equal(t, bucketKey, got)
	}
}

func mustPublicFromPrivate(t *testing.T, priv []byte) []byte {
	t.Helper()
	shared, err := crypto.EccPublicKeyFromPrivate(priv)
	require.NoError(t, err)
	return shared
}

func TestEncryptBucketKeyUnknownRecipient(t *testing.T) {
	fx := newFacadeFixture(t)
	_, err := fx.facade.EncryptBucketKeyForInternalRecipient(context.Background(), "userGroup", crypto.Random128Key(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
