package mailvault

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mailvault/client-go/internal/crypto"
)

// enableMAC controls whether newly encrypted field values carry an
// authentication tag. Decryption accepts both layouts regardless.
const enableMAC = true

// InstanceMapper converts between the decrypted in-memory representation of
// an entity and its encrypted wire literal, field by field, according to the
// entity's type model.
//
// Decryption failures of individual fields do not abort the instance: the
// failing field is left at its zero value and the failure is recorded in the
// instance's ErrorsKey sidecar. Callers that care about a field's integrity
// must consult the sidecar; this layer does not enforce that.
type InstanceMapper struct{}

// NewInstanceMapper creates an InstanceMapper.
func NewInstanceMapper() *InstanceMapper {
	return &InstanceMapper{}
}

// DecryptAndMapToInstance converts a wire literal to an instance, decrypting
// encrypted fields with sk. sk may be nil for unencrypted types. Model
// violations (a null required encrypted value) surface as ProgrammingError;
// per-field crypto failures are isolated into the error sidecar.
func (m *InstanceMapper) DecryptAndMapToInstance(model *TypeModel, literal Literal, sk []byte) (Instance, error) {
	instance := Instance{}
	errSidecar := map[string]string{}

	for _, mv := range model.Values {
		value, err := DecryptValue(mv.Name, mv, literal[mv.Name], sk)
		if err != nil {
			var pe *ProgrammingError
			if errors.As(err, &pe) {
				return nil, err
			}
			errSidecar[mv.Name] = err.Error()
			instance[mv.Name] = zeroValue(mv)
			continue
		}
		instance[mv.Name] = value
	}

	for _, ma := range model.Associations {
		mapped, err := m.decryptAssociation(ma, literal[ma.Name], sk)
		if err != nil {
			return nil, err
		}
		instance[ma.Name] = mapped
	}

	// system attributes pass through untouched
	for _, attr := range []string{IDAttr, PermissionsAttr, FormatAttr, OwnerGroupAttr, OwnerEncSessionKeyAttr} {
		if v, ok := literal[attr]; ok {
			instance[attr] = v
		}
	}

	if len(errSidecar) > 0 {
		instance[ErrorsKey] = errSidecar
	}
	return instance, nil
}

func (m *InstanceMapper) decryptAssociation(ma ModelAssociation, value any, sk []byte) (any, error) {
	switch ma.Cardinality {
	case CardinalityAny:
		items, _ := value.([]any)
		mapped := make([]any, 0, len(items))
		for _, item := range items {
			lit, ok := item.(Literal)
			if !ok {
				return nil, NewProgrammingError("aggregate %s contains a non-literal element", ma.Name)
			}
			inst, err := m.DecryptAndMapToInstance(ma.RefModel, lit, sk)
			if err != nil {
				return nil, err
			}
			mapped = append(mapped, inst)
		}
		return mapped, nil
	default:
		if value == nil {
			if ma.Cardinality == CardinalityOne {
				return nil, NewProgrammingError("aggregate %s has cardinality One but is null", ma.Name)
			}
			return nil, nil
		}
		lit, ok := value.(Literal)
		if !ok {
			return nil, NewProgrammingError("aggregate %s is not a literal", ma.Name)
		}
		return m.DecryptAndMapToInstance(ma.RefModel, lit, sk)
	}
}

// EncryptAndMapToLiteral converts an instance to its wire literal, encrypting
// encrypted fields with sk. sk may be nil for unencrypted types.
func (m *InstanceMapper) EncryptAndMapToLiteral(model *TypeModel, instance Instance, sk []byte) (Literal, error) {
	literal := Literal{}

	for _, mv := range model.Values {
		value, err := EncryptValue(mv.Name, mv, instance[mv.Name], sk)
		if err != nil {
			return nil, err
		}
		literal[mv.Name] = value
	}

	for _, ma := range model.Associations {
		mapped, err := m.encryptAssociation(ma, instance[ma.Name], sk)
		if err != nil {
			return nil, err
		}
		literal[ma.Name] = mapped
	}

	for _, attr := range []string{IDAttr, PermissionsAttr, FormatAttr, OwnerGroupAttr, OwnerEncSessionKeyAttr} {
		if v, ok := instance[attr]; ok {
			literal[attr] = v
		}
	}
	return literal, nil
}

func (m *InstanceMapper) encryptAssociation(ma ModelAssociation, value any, sk []byte) (any, error) {
	switch ma.Cardinality {
	case CardinalityAny:
		items, _ := value.([]any)
		mapped := make([]any, 0, len(items))
		for _, item := range items {
			inst, ok := item.(Instance)
			if !ok {
				return nil, NewProgrammingError("aggregate %s contains a non-instance element", ma.Name)
			}
			lit, err := m.EncryptAndMapToLiteral(ma.RefModel, inst, sk)
			if err != nil {
				return nil, err
			}
			mapped = append(mapped, lit)
		}
		return mapped, nil
	default:
		if value == nil {
			if ma.Cardinality == CardinalityOne {
				return nil, NewProgrammingError("aggregate %s has cardinality One but is null", ma.Name)
			}
			return nil, nil
		}
		inst, ok := value.(Instance)
		if !ok {
			return nil, NewProgrammingError("aggregate %s is not an instance", ma.Name)
		}
		return m.EncryptAndMapToLiteral(ma.RefModel, inst, sk)
	}
}

// DecryptValue converts one wire value to its in-memory form. For
// unencrypted fields this is a pure type coercion; for encrypted fields the
// base64 ciphertext is AES-decrypted first. A null value for a
// cardinality-One field raises ProgrammingError regardless of encryption.
func DecryptValue(name string, mv ModelValue, encrypted any, sk []byte) (any, error) {
	if encrypted == nil {
		if mv.Cardinality == CardinalityOne {
			return nil, NewProgrammingError("value %s has cardinality One but is null", name)
		}
		return nil, nil
	}

	wire, ok := encrypted.(string)
	if !ok {
		return nil, NewProgrammingError("value %s is not a wire string", name)
	}

	if !mv.Encrypted {
		return plainToInstanceValue(mv.Type, wire)
	}

	ciphertext, err := crypto.FromBase64(wire)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	plain, err := crypto.Decrypt(sk, ciphertext, true)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", name, err)
	}
	return bytesToInstanceValue(mv.Type, plain)
}

// EncryptValue converts one in-memory value to its wire form, the inverse of
// DecryptValue.
func EncryptValue(name string, mv ModelValue, value any, sk []byte) (any, error) {
	if value == nil {
		if mv.Cardinality == CardinalityOne {
			return nil, NewProgrammingError("value %s has cardinality One but is null", name)
		}
		return nil, nil
	}

	if !mv.Encrypted {
		return instanceValueToPlain(mv.Type, name, value)
	}

	plain, err := instanceValueToBytes(mv.Type, name, value)
	if err != nil {
		return nil, err
	}
	ciphertext, err := crypto.Encrypt(sk, plain, crypto.RandomIV(), true, enableMAC)
	if err != nil {
		return nil, fmt.Errorf("encrypting %s: %w", name, err)
	}
	return crypto.ToBase64(ciphertext), nil
}

// plainToInstanceValue coerces an unencrypted wire string to the in-memory
// type: booleans are "0"/"1" (any non-zero number is true), dates are
// epoch-millis strings, bytes are standard base64.
func plainToInstanceValue(t ValueType, wire string) (any, error) {
	switch t {
	case ValueTypeString, ValueTypeCompressedString:
		return wire, nil
	case ValueTypeNumber:
		n, err := strconv.ParseInt(wire, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing number %q: %w", wire, err)
		}
		return n, nil
	case ValueTypeBoolean:
		n, err := strconv.ParseInt(wire, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing boolean %q: %w", wire, err)
		}
		return n != 0, nil
	case ValueTypeDate:
		millis, err := strconv.ParseInt(wire, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", wire, err)
		}
		return time.UnixMilli(millis).UTC(), nil
	case ValueTypeBytes:
		return crypto.FromBase64(wire)
	}
	return nil, fmt.Errorf("unknown value type %d", t)
}

// bytesToInstanceValue converts decrypted plaintext bytes to the in-memory
// type. All textual types are UTF-8; bytes stay raw; compressed strings are
// inflated.
func bytesToInstanceValue(t ValueType, plain []byte) (any, error) {
	switch t {
	case ValueTypeBytes:
		return plain, nil
	case ValueTypeCompressedString:
		return crypto.DecompressString(plain)
	default:
		return plainToInstanceValue(t, string(plain))
	}
}

// instanceValueToPlain converts an in-memory value to its unencrypted wire
// string.
func instanceValueToPlain(t ValueType, name string, value any) (string, error) {
	switch t {
	case ValueTypeString, ValueTypeCompressedString:
		s, ok := value.(string)
		if !ok {
			return "", NewProgrammingError("value %s is not a string", name)
		}
		return s, nil
	case ValueTypeNumber:
		n, ok := value.(int64)
		if !ok {
			return "", NewProgrammingError("value %s is not an int64", name)
		}
		return strconv.FormatInt(n, 10), nil
	case ValueTypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return "", NewProgrammingError("value %s is not a bool", name)
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case ValueTypeDate:
		d, ok := value.(time.Time)
		if !ok {
			return "", NewProgrammingError("value %s is not a time.Time", name)
		}
		return strconv.FormatInt(d.UnixMilli(), 10), nil
	case ValueTypeBytes:
		b, ok := value.([]byte)
		if !ok {
			return "", NewProgrammingError("value %s is not a byte slice", name)
		}
		return crypto.ToBase64(b), nil
	}
	return "", fmt.Errorf("unknown value type %d", t)
}

// instanceValueToBytes converts an in-memory value to encryption plaintext.
func instanceValueToBytes(t ValueType, name string, value any) ([]byte, error) {
	switch t {
	case ValueTypeBytes:
		b, ok := value.([]byte)
		if !ok {
			return nil, NewProgrammingError("value %s is not a byte slice", name)
		}
		return b, nil
	case ValueTypeCompressedString:
		s, ok := value.(string)
		if !ok {
			return nil, NewProgrammingError("value %s is not a string", name)
		}
		return crypto.CompressString(s)
	default:
		s, err := instanceValueToPlain(t, name, value)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
}

// zeroValue returns the in-memory zero value of a field, used when a field's
// decryption fails and the error is recorded in the sidecar instead.
func zeroValue(mv ModelValue) any {
	switch mv.Type {
	case ValueTypeString, ValueTypeCompressedString:
		return ""
	case ValueTypeNumber:
		return int64(0)
	case ValueTypeBoolean:
		return false
	case ValueTypeDate:
		return time.UnixMilli(0).UTC()
	case ValueTypeBytes:
		return []byte(nil)
	}
	return nil
}
