// Package entity describes entity types: their schema (Descriptor), their
// typed Go representation (Type) and the capabilities composition wires
// into plugins (search text, history, verification).
//
// Entity types are declared explicitly, usually as package-level values:
//
//	var WidgetType = entity.MustDefine[Widget]("widget", "widgets",
//	    entity.Prop("name", value.KindString),
//	    entity.Prop("count", value.KindInt),
//	).WithHistory()
//
// The store works on untyped value.Object field sets; Type.Encode and
// Type.Decode convert between those and the Go struct.
package entity
