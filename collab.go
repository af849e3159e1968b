package mailvault

import "context"

// The core consumes four collaborator contracts owned by the surrounding
// application: entity loading, key lookup, key write-back, and the logged-in
// user's key ring. All blocking operations take a context; every call is a
// suspension point and nothing here may assume atomicity across one.

// EntityClient loads encrypted wire literals from local storage or the
// transport layer. Implementations handle caching and transport retries.
type EntityClient interface {
	// Load fetches a single entity. id is a string or an IDTuple.
	Load(ctx context.Context, ref TypeRef, id any) (Literal, error)

	// LoadAll fetches all elements of a list starting after startID.
	LoadAll(ctx context.Context, ref TypeRef, listID, startID string) ([]Literal, error)

	// LoadRange fetches up to count elements starting at startID, optionally
	// in reverse order.
	LoadRange(ctx context.Context, ref TypeRef, listID, startID string, count int, reverse bool) ([]Literal, error)

	// LoadRoot fetches the root instance of a type for a group.
	LoadRoot(ctx context.Context, ref TypeRef, groupID string) (Literal, error)
}

// PublicKeyService is the key registry keyed by mail address.
type PublicKeyService interface {
	// GetPublicKeys returns the current public key bundle for an address.
	// Returns NotFoundError for unknown addresses.
	GetPublicKeys(ctx context.Context, mailAddress string) (*PublicKeys, error)

	// PutPublicKeys publishes the caller's own new identity key pair. Used
	// for on-demand PQ identity generation during outbound encryption.
	PutPublicKeys(ctx context.Context, data *PublicKeyPutData) error
}

// PublicKeyPutData is a new own-identity key pair for publication. Private
// halves are wrapped under the owning group's symmetric key before the call.
type PublicKeyPutData struct {
	KeyGroup           string
	PubEccKey          []byte
	SymEncPrivEccKey   []byte
	PubKyberKey        []byte
	SymEncPrivKyberKey []byte
}

// PermissionKeyService persists the re-encrypted session key of a legacy
// permission after first resolution, converting a public bucket wrap into a
// stable symmetric one.
type PermissionKeyService interface {
	UpdatePermissionKey(ctx context.Context, data UpdatePermissionKeyData) error
}

// UpdatePermissionKeyData identifies the permission being upgraded and
// carries the session key re-wrapped under the owner group key.
type UpdatePermissionKeyData struct {
	Permission         IDTuple
	BucketPermission   IDTuple
	OwnerEncSessionKey []byte
}

// SessionKeyService persists re-wrapped instance session keys produced by
// bucket-key resolution. The session key update queue drains into it.
type SessionKeyService interface {
	UpdateInstanceSessionKeys(ctx context.Context, updates []InstanceSessionKeyUpdate) error
}

// InstanceSessionKeyUpdate is one write-back record: an instance's session
// key re-wrapped under its owner group key, plus the encrypted
// authentication status.
type InstanceSessionKeyUpdate struct {
	InstanceList         string
	InstanceID           string
	TypeInfo             TypeInfo
	OwnerEncSessionKey   []byte
	EncryptionAuthStatus []byte
}

// UserFacade exposes the logged-in user's group key ring and memberships.
type UserFacade interface {
	// User returns the logged-in user.
	User() *User

	// GetGroupKey returns the symmetric key of a group the user is a member
	// of, unwrapping the membership's SymEncGKey on demand.
	GetGroupKey(groupID string) ([]byte, bool)

	// GetUserGroupKey returns the user group's symmetric key.
	GetUserGroupKey() []byte

	// GetUserGroupID returns the user group's id.
	GetUserGroupID() string
}

// ServerTimeSource reports the server's clock, used for index watermarks.
// Client clocks drift; retention decisions always use server time.
type ServerTimeSource interface {
	ServerTimestampMs() int64
}
