package statustable

import (
	"vostore/internal/identifiers"
	"vostore/internal/storage/keys"
)

// ServiceStatusKey is the key of the status table:
//
//	partition_key | service_name | service_key
//
// Only the first fields count are encoded, so partial keys serve as scan
// prefixes.
type ServiceStatusKey struct {
	PartitionKey identifiers.PartitionKey
	ServiceName  string
	ServiceKey   []byte

	fields int
}

const serviceStatusKeyFields = 3

var _ keys.TableKey = ServiceStatusKey{}

// PartitionKeyPrefix selects every row of one partition key.
func PartitionKeyPrefix(pk identifiers.PartitionKey) ServiceStatusKey {
	return ServiceStatusKey{PartitionKey: pk, fields: 1}
}

// ServiceNamePrefix selects every object of one service on one partition key.
func ServiceNamePrefix(pk identifiers.PartitionKey, name string) ServiceStatusKey {
	return ServiceStatusKey{PartitionKey: pk, ServiceName: name, fields: 2}
}

// KeyFor is the full point key of one virtual object.
func KeyFor(id identifiers.ServiceID) ServiceStatusKey {
	return ServiceStatusKey{
		PartitionKey: id.PartitionKey(),
		ServiceName:  id.Name,
		ServiceKey:   id.Key,
		fields:       serviceStatusKeyFields,
	}
}

func (k ServiceStatusKey) Table() keys.TableKind { return keys.ServiceStatus }

// Complete reports whether every field is set.
func (k ServiceStatusKey) Complete() bool { return k.fields == serviceStatusKeyFields }

func (k ServiceStatusKey) AppendTo(buf []byte) []byte {
	if k.fields >= 1 {
		buf = keys.AppendPartitionKey(buf, k.PartitionKey)
	}
	if k.fields >= 2 {
		buf = keys.AppendString(buf, k.ServiceName)
	}
	if k.fields >= 3 {
		buf = keys.AppendBytes(buf, k.ServiceKey)
	}
	return buf
}

// ServiceID rebuilds the identity a complete key was made from.
func (k ServiceStatusKey) ServiceID() identifiers.ServiceID {
	return identifiers.NewServiceIDWithPartitionKey(k.PartitionKey, k.ServiceName, k.ServiceKey)
}

// DeserializeServiceStatusKey decodes a complete key and rejects anything
// shorter or longer.
func DeserializeServiceStatusKey(b []byte) (ServiceStatusKey, error) {
	d := keys.NewDecoder(b)
	pk, err := d.PartitionKey()
	if err != nil {
		return ServiceStatusKey{}, err
	}
	name, err := d.String()
	if err != nil {
		return ServiceStatusKey{}, err
	}
	key, err := d.Bytes()
	if err != nil {
		return ServiceStatusKey{}, err
	}
	if err := d.Finish(); err != nil {
		return ServiceStatusKey{}, err
	}
	return ServiceStatusKey{
		PartitionKey: pk,
		ServiceName:  name,
		ServiceKey:   key,
		fields:       serviceStatusKeyFields,
	}, nil
}
