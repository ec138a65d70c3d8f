// Package value provides the field value types shared by the entity schema,
// the patch protocol and the store.
//
// Values form a closed set (Null, String, Int, Bool, List, Object). Incoming
// JSON is turned into values in two ways:
//   - Decode: kind-directed, used when a property declares its type
//   - Parse: schema-less, used when reading stored records back
//
// Records are persisted with MarshalCanonical (RFC 8785 key order, NFC
// strings, no HTML escaping) so identical field sets produce identical bytes.
package value
