package mailvault

import (
	"github.com/mailvault/client-go/internal/crypto"
)

// Well-known type refs of the system types the core loads itself.
var (
	GroupTypeRef            = TypeRef{App: "sys", Type: "Group"}
	PermissionTypeRef       = TypeRef{App: "sys", Type: "Permission"}
	BucketPermissionTypeRef = TypeRef{App: "sys", Type: "BucketPermission"}
	EventBatchTypeRef       = TypeRef{App: "sys", Type: "EntityEventBatch"}
	MailTypeRef             = TypeRef{App: "mail", Type: "Mail"}
	ContactTypeRef          = TypeRef{App: "mail", Type: "Contact"}
	ContactListTypeRef      = TypeRef{App: "mail", Type: "ContactList"}
	GroupInfoTypeRef        = TypeRef{App: "sys", Type: "GroupInfo"}
	WhitelabelChildTypeRef  = TypeRef{App: "sys", Type: "WhitelabelChild"}
	UserTypeRef             = TypeRef{App: "sys", Type: "User"}
)

// Literal accessors. Wire values are strings (bytes as standard base64),
// nested literals, or nil; missing and null are equivalent.

func litString(lit Literal, name string) string {
	s, _ := lit[name].(string)
	return s
}

func litBytes(lit Literal, name string) []byte {
	s, ok := lit[name].(string)
	if !ok || s == "" {
		return nil
	}
	b, err := crypto.FromBase64(s)
	if err != nil {
		return nil
	}
	return b
}

func litID(lit Literal) any {
	switch v := lit[IDAttr].(type) {
	case string:
		return v
	case IDTuple:
		return v
	case []string:
		if len(v) == 2 {
			return IDTuple{ListID: v[0], ElementID: v[1]}
		}
	}
	return nil
}

func litIDTuple(lit Literal) IDTuple {
	t, _ := litID(lit).(IDTuple)
	return t
}

// GroupFromLiteral parses the fields of a Group wire literal the core needs.
func GroupFromLiteral(lit Literal) *Group {
	g := &Group{
		ID:                litString(lit, IDAttr),
		Type:              GroupType(litString(lit, "type")),
		AdminGroup:        litString(lit, "admin"),
		AdminGroupEncGKey: litBytes(lit, "adminGroupEncGKey"),
		External:          litString(lit, "external") == "1",
	}
	if keys, ok := lit["keys"].([]any); ok {
		for _, k := range keys {
			if kl, ok := k.(Literal); ok {
				g.Keys = append(g.Keys, KeyPair{
					PubRSAKey:          litBytes(kl, "pubRsaKey"),
					SymEncPrivRSAKey:   litBytes(kl, "symEncPrivRsaKey"),
					PubEccKey:          litBytes(kl, "pubEccKey"),
					SymEncPrivEccKey:   litBytes(kl, "symEncPrivEccKey"),
					PubKyberKey:        litBytes(kl, "pubKyberKey"),
					SymEncPrivKyberKey: litBytes(kl, "symEncPrivKyberKey"),
					Version:            litString(kl, "version"),
				})
			}
		}
	}
	return g
}

// PermissionFromLiteral parses a legacy Permission wire literal.
func PermissionFromLiteral(lit Literal) *Permission {
	p := &Permission{
		ID:                  litIDTuple(lit),
		Type:                PermissionType(litString(lit, "type")),
		OwnerGroup:          litString(lit, OwnerGroupAttr),
		OwnerEncSessionKey:  litBytes(lit, OwnerEncSessionKeyAttr),
		BucketEncSessionKey: litBytes(lit, "bucketEncSessionKey"),
	}
	if bucket, ok := lit["bucket"].(Literal); ok {
		p.BucketPermissionsList = litString(bucket, "bucketPermissions")
	}
	return p
}

// BucketPermissionFromLiteral parses a legacy BucketPermission wire literal.
func BucketPermissionFromLiteral(lit Literal) *BucketPermission {
	return &BucketPermission{
		ID:                litIDTuple(lit),
		Type:              BucketPermissionType(litString(lit, "type")),
		Group:             litString(lit, "group"),
		OwnerGroup:        litString(lit, OwnerGroupAttr),
		PubEncBucketKey:   litBytes(lit, "pubEncBucketKey"),
		OwnerEncBucketKey: litBytes(lit, "ownerEncBucketKey"),
		SymEncBucketKey:   litBytes(lit, "symEncBucketKey"),
	}
}

// BucketKeyFromLiteral parses the bucketKey aggregate carried by newer
// entities.
func BucketKeyFromLiteral(lit Literal) *BucketKey {
	bk := &BucketKey{
		GroupEncBucketKey: litBytes(lit, "groupEncBucketKey"),
		PubEncBucketKey:   litBytes(lit, "pubEncBucketKey"),
		KeyGroup:          litString(lit, "keyGroup"),
	}
	if keys, ok := lit["bucketEncSessionKeys"].([]any); ok {
		for _, k := range keys {
			if kl, ok := k.(Literal); ok {
				isk := InstanceSessionKey{
					InstanceList:     litString(kl, "instanceList"),
					InstanceID:       litString(kl, "instanceId"),
					SymEncSessionKey: litBytes(kl, "symEncSessionKey"),
				}
				if ti, ok := kl["typeInfo"].(Literal); ok {
					isk.TypeInfo = TypeInfo{
						Application: litString(ti, "application"),
						TypeID:      litString(ti, "typeId"),
					}
				}
				bk.BucketEncSessionKeys = append(bk.BucketEncSessionKeys, isk)
			}
		}
	}
	return bk
}

// EventBatchFromLiteral parses an EntityEventBatch wire literal.
func EventBatchFromLiteral(lit Literal) *EventBatch {
	b := &EventBatch{ID: litIDTuple(lit)}
	if events, ok := lit["events"].([]any); ok {
		for _, e := range events {
			if el, ok := e.(Literal); ok {
				op := OperationCreate
				switch litString(el, "operation") {
				case "1":
					op = OperationUpdate
				case "2":
					op = OperationDelete
				}
				b.Events = append(b.Events, EntityUpdate{
					Application:    litString(el, "application"),
					Type:           litString(el, "type"),
					InstanceListID: litString(el, "instanceListId"),
					InstanceID:     litString(el, "instanceId"),
					Operation:      op,
				})
			}
		}
	}
	return b
}
