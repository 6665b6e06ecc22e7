package queryset

import (
	"github.com/google/uuid"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
)

// The bookstore schema used across the package tests: Book→Author (nullable)
// and Book→Publisher→Location.

type Location struct {
	ID   int64
	Name string
}

func (Location) Meta() *metadata.Meta { return locationMeta }

var locationMeta = &metadata.Meta{
	Table: "locations",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
}

type Publisher struct {
	ID       int64
	Name     string
	Location *Location
}

func (Publisher) Meta() *metadata.Meta { return publisherMeta }

var publisherMeta = &metadata.Meta{
	Table: "publishers",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
	ForeignKeys: []metadata.ForeignKeyMeta{
		{Name: "location", Column: "location_id", GoField: "Location", Related: func() *metadata.Meta { return locationMeta }},
	},
}

type Author struct {
	ID   int64
	Name string
}

func (Author) Meta() *metadata.Meta { return authorMeta }

var authorMeta = &metadata.Meta{
	Table: "authors",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "name", Column: "name", GoField: "Name"},
	},
}

type Book struct {
	ID        int64
	Title     string
	Pages     int
	Author    *Author
	Publisher *Publisher
}

func (Book) Meta() *metadata.Meta { return bookMeta }

var bookMeta = &metadata.Meta{
	Table: "books",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "title", Column: "title", GoField: "Title"},
		{Name: "pages", Column: "pages", GoField: "Pages"},
	},
	ForeignKeys: []metadata.ForeignKeyMeta{
		{Name: "author", Column: "author_id", GoField: "Author", Nullable: true, Related: func() *metadata.Meta { return authorMeta }},
		{Name: "publisher", Column: "publisher_id", GoField: "Publisher", Related: func() *metadata.Meta { return publisherMeta }},
	},
}

type User struct {
	ID       uuid.UUID
	Username string
	Password string
}

func (User) Meta() *metadata.Meta { return userMeta }

var userMeta = &metadata.Meta{
	Table: "users",
	PK:    "id",
	Fields: []metadata.FieldMeta{
		{Name: "id", Column: "id", GoField: "ID"},
		{Name: "username", Column: "username", GoField: "Username"},
		{Name: "password", Column: "password", GoField: "Password"},
	},
}
