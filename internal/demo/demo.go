// Package demo declares the entity types and migrations served by the
// storekit binary: widgets in the inventory namespace and notes in the
// notes namespace.
package demo

import (
	"errors"
	"strings"
	"time"

	"github.com/roach88/storekit/internal/crud"
	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/migration"
	"github.com/roach88/storekit/internal/scan"
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// Namespace names.
const (
	Inventory = "inventory"
	Notes     = "notes"
)

// Widget is an inventory item.
type Widget struct {
	entity.Base
	Name   string   `json:"name"`
	Count  int64    `json:"count"`
	Active bool     `json:"active"`
	Tags   []string `json:"tags,omitempty"`
}

// Note is a searchable text note with tracked history.
type Note struct {
	entity.Base
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Due   *time.Time `json:"due,omitempty"`
}

var (
	errNameRequired  = errors.New("name is required")
	errNegativeCount = errors.New("count must not be negative")
	errTitleRequired = errors.New("title is required")
)

// WidgetType is the widget entity definition.
var WidgetType = entity.MustDefine[Widget]("widget", "widgets",
	entity.Prop("name", value.KindString),
	entity.Prop("count", value.KindInt),
	entity.Prop("active", value.KindBool),
	entity.Prop("tags", value.KindStrings),
).WithVerifier(func(w *Widget) error {
	if strings.TrimSpace(w.Name) == "" {
		return errNameRequired
	}
	if w.Count < 0 {
		return errNegativeCount
	}
	return nil
})

// NoteType is the note entity definition.
var NoteType = entity.MustDefine[Note]("note", "notes",
	entity.Prop("title", value.KindString),
	entity.Prop("body", value.KindString),
	entity.Prop("due", value.KindTime),
).WithHistory().
	WithSearch(func(n *Note) string { return n.Title + " " + n.Body }).
	WithVerifier(func(n *Note) error {
		if strings.TrimSpace(n.Title) == "" {
			return errTitleRequired
		}
		return nil
	})

// Namespaces returns the demo namespaces.
func Namespaces() []scan.Namespace {
	return []scan.Namespace{
		{
			Name:     Inventory,
			Entities: []crud.Binding{crud.Of(WidgetType)},
			Migrations: []scan.MigrationSpec{
				{Name: "widget-default-count", Order: 10, New: func() migration.Transform {
					return migration.ReplaceNullValues("widget", "count", value.Int(0))
				}},
				{Name: "widget-trim-names", Order: 30, New: trimWidgetNames},
			},
		},
		{
			Name:     Notes,
			Entities: []crud.Binding{crud.Of(NoteType)},
			Migrations: []scan.MigrationSpec{
				{Name: "note-text-to-body", Order: 20, New: func() migration.Transform {
					return migration.RenameField("note", "text", "body")
				}},
			},
		},
	}
}

// Catalog returns a catalog of the demo namespaces.
func Catalog() (*scan.Catalog, error) {
	return scan.NewCatalog(Namespaces()...)
}

// Initialize seeds a brand-new store with one widget and a welcome note.
func Initialize(tx *store.MigrationTx) error {
	if _, ok := tx.Descriptor("widget"); ok {
		if _, err := tx.Create("widget", value.Object{
			"name":   value.String("sample"),
			"count":  value.Int(1),
			"active": value.Bool(true),
		}); err != nil {
			return err
		}
	}
	if _, ok := tx.Descriptor("note"); ok {
		if _, err := tx.Create("note", value.Object{
			"title": value.String("Welcome"),
			"body":  value.String("This store was initialized on first start."),
		}); err != nil {
			return err
		}
	}
	return nil
}

func trimWidgetNames() migration.Transform {
	return migration.Migrate("widget",
		func(rec store.Record) bool {
			name, ok := rec.Fields.Get("name").(value.String)
			return ok && strings.TrimSpace(string(name)) != string(name)
		},
		func(fields value.Object) (value.Object, error) {
			name := fields["name"].(value.String)
			fields["name"] = value.String(strings.TrimSpace(string(name)))
			return fields, nil
		},
	)
}
