package mailvault

// GroupType classifies security groups. Only a few types are relevant to the
// core: Mail and Contact memberships gate indexing, the user group anchors
// the key hierarchy.
type GroupType string

const (
	GroupTypeUser        GroupType = "0"
	GroupTypeAdmin       GroupType = "1"
	GroupTypeMailingList GroupType = "2"
	GroupTypeCustomer    GroupType = "3"
	GroupTypeExternal    GroupType = "4"
	GroupTypeMail        GroupType = "5"
	GroupTypeContact     GroupType = "6"
	GroupTypeFile        GroupType = "7"
	GroupTypeLocalAdmin  GroupType = "8"
)

// EncryptionAuthStatus records the sender-authentication outcome of a
// session-key resolution. It is persisted per entity, encrypted under the
// resolved session key, and consumed by higher layers for trust display.
type EncryptionAuthStatus string

const (
	// EncryptionAuthRSANoAuthentication marks the legacy RSA scheme, which
	// has no cryptographic sender binding. A documented weaker property of
	// the old scheme, not a failure.
	EncryptionAuthRSANoAuthentication EncryptionAuthStatus = "0"
	// EncryptionAuthPQSucceeded marks a PQ envelope whose embedded sender
	// identity key matches the key registry.
	EncryptionAuthPQSucceeded EncryptionAuthStatus = "1"
	// EncryptionAuthPQFailed marks a PQ envelope whose embedded sender
	// identity key does not match the registry. The session key is still
	// usable; the record is flagged.
	EncryptionAuthPQFailed EncryptionAuthStatus = "2"
	// EncryptionAuthAESNoAuthentication marks symmetric distribution paths
	// (group key, external user), which carry no sender identity.
	EncryptionAuthAESNoAuthentication EncryptionAuthStatus = "3"
)

// KeyPair is a group's asymmetric identity as stored on the Group entity.
// Private halves are wrapped under the group's symmetric key. During the
// RSA to PQ migration a group may hold either half, or both.
type KeyPair struct {
	PubRSAKey        []byte
	SymEncPrivRSAKey []byte

	PubEccKey          []byte
	SymEncPrivEccKey   []byte
	PubKyberKey        []byte
	SymEncPrivKyberKey []byte

	Version string
}

// HasPQKeys reports whether the pair carries a hybrid PQ identity.
func (k *KeyPair) HasPQKeys() bool {
	return k != nil && len(k.PubEccKey) > 0 && len(k.PubKyberKey) > 0
}

// HasRSAKeys reports whether the pair carries a legacy RSA identity.
func (k *KeyPair) HasRSAKeys() bool {
	return k != nil && len(k.PubRSAKey) > 0
}

// Group is a symmetric-key-bearing security boundary.
type Group struct {
	ID   string
	Type GroupType
	// AdminGroup, when set, names the group whose key wraps this group's
	// key via AdminGroupEncGKey. The chain is walked during key resolution.
	AdminGroup        string
	AdminGroupEncGKey []byte
	Keys              []KeyPair
	External          bool
}

// CurrentKeys returns the group's active key pair, or nil.
func (g *Group) CurrentKeys() *KeyPair {
	if g == nil || len(g.Keys) == 0 {
		return nil
	}
	return &g.Keys[0]
}

// GroupMembership links a user to a group.
type GroupMembership struct {
	Group     string
	GroupType GroupType
	// SymEncGKey is the group key wrapped under the user's group key.
	SymEncGKey []byte
}

// User is the logged-in user as seen by the core: the user group plus all
// other memberships.
type User struct {
	ID          string
	UserGroup   GroupMembership
	Memberships []GroupMembership
}

// TypeInfo names the type of a sibling instance inside a bucket.
type TypeInfo struct {
	Application string
	TypeID      string
}

// InstanceSessionKey is one per-instance record inside a bucket key: the
// instance's session key wrapped under the bucket key, plus, after
// resolution, the re-wrapped key and authentication status queued for
// write-back.
type InstanceSessionKey struct {
	InstanceList     string
	InstanceID       string
	TypeInfo         TypeInfo
	SymEncSessionKey []byte

	// EncryptionAuthStatus is set during write-back preparation: the auth
	// status string encrypted under the instance's own session key.
	EncryptionAuthStatus []byte
}

// BucketKey is the aggregate carried by newer entities: an intermediate key
// wrapping the session keys of all instances produced by one send operation,
// itself wrapped by exactly one of the three schemes.
type BucketKey struct {
	// GroupEncBucketKey is the symmetric wrap under KeyGroup's key.
	GroupEncBucketKey []byte
	// PubEncBucketKey is either a legacy RSA ciphertext or an encoded PQ
	// envelope, distinguished structurally.
	PubEncBucketKey []byte
	// KeyGroup names the group whose key (or key pair) protects the bucket
	// key. Empty means the entity's owner group.
	KeyGroup string

	BucketEncSessionKeys []InstanceSessionKey
}

// PermissionType classifies entries of the legacy permission list.
type PermissionType string

const (
	PermissionTypePublic          PermissionType = "0"
	PermissionTypeSymmetric       PermissionType = "1"
	PermissionTypePublicSymmetric PermissionType = "2"
	PermissionTypeExternal        PermissionType = "5"
)

// Permission is a legacy permission-list entry protecting an entity's
// session key.
type Permission struct {
	ID         IDTuple
	Type       PermissionType
	OwnerGroup string
	// OwnerEncSessionKey is set on symmetric permissions.
	OwnerEncSessionKey []byte
	// BucketEncSessionKey and BucketPermissionsList are set on public
	// permissions.
	BucketEncSessionKey   []byte
	BucketPermissionsList string
}

// BucketPermissionType classifies legacy bucket permissions.
type BucketPermissionType string

const (
	BucketPermissionTypePublic   BucketPermissionType = "2"
	BucketPermissionTypeExternal BucketPermissionType = "3"
)

// BucketPermission is a legacy per-recipient wrap of a bucket key.
type BucketPermission struct {
	ID         IDTuple
	Type       BucketPermissionType
	Group      string
	OwnerGroup string
	// PubEncBucketKey is an RSA ciphertext or PQ envelope for public bucket
	// permissions.
	PubEncBucketKey []byte
	// OwnerEncBucketKey is the symmetric wrap used for external users.
	OwnerEncBucketKey []byte
	// SymEncBucketKey is the symmetric wrap under the recipient group key.
	SymEncBucketKey []byte
}

// PublicKeys is a recipient's current public key bundle as served by the
// public key lookup service.
type PublicKeys struct {
	PubKeyVersion string
	PubRSAKey     []byte
	PubEccKey     []byte
	PubKyberKey   []byte
}

// HasPQKeys reports whether the bundle carries a hybrid PQ identity.
func (p *PublicKeys) HasPQKeys() bool {
	return p != nil && len(p.PubEccKey) > 0 && len(p.PubKyberKey) > 0
}

// InternalRecipientKeyData is the outbound wrap of a bucket key for one
// internal recipient.
type InternalRecipientKeyData struct {
	MailAddress     string
	PubEncBucketKey []byte
	PubKeyVersion   string
}
