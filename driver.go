package dbc

import "context"

// Family identifies the API shape a backend exposes. Per spec.md §9
// "Dynamic dispatch across families", families are represented as tagged
// variants rather than a deep inheritance hierarchy.
type Family int

const (
	FamilyRelational Family = iota
	FamilyDocument
	FamilyColumnar
	FamilyKV
)

func (f Family) String() string {
	switch f {
	case FamilyRelational:
		return "relational"
	case FamilyDocument:
		return "document"
	case FamilyColumnar:
		return "columnar"
	case FamilyKV:
		return "kv"
	default:
		return "unknown"
	}
}

// Driver is a backend-specific factory: it recognizes URLs of its own
// scheme and produces a connection of the appropriate family. A driver
// that accepts a URL but is asked for the wrong family factory fails with
// dbcerr.WrongFamily (spec.md §4.1).
type Driver interface {
	// Scheme is the URL scheme this driver registers under, e.g. "mysql".
	Scheme() string

	// AcceptsURL reports whether this driver can handle the given URL.
	// Most drivers simply compare against Scheme(), but the predicate is
	// independent so a driver may accept scheme aliases.
	AcceptsURL(u *ConnectionURL) bool

	// Family reports which connection family this driver produces.
	Family() Family

	ConnectRelational(ctx context.Context, u *ConnectionURL) (RelationalConnection, error)
	ConnectDocument(ctx context.Context, u *ConnectionURL) (DocumentConnection, error)
	ConnectColumnar(ctx context.Context, u *ConnectionURL) (ColumnarConnection, error)
	ConnectKV(ctx context.Context, u *ConnectionURL) (KVConnection, error)
}

// BaseDriver implements the three ConnectX methods a driver's own family
// does not produce, each failing with dbcerr.WrongFamily, so concrete
// drivers only need to implement their one real family method. Embed it
// and override the one method that applies.
type BaseDriver struct{}

func (BaseDriver) ConnectRelational(context.Context, *ConnectionURL) (RelationalConnection, error) {
	return nil, wrongFamilyErr(FamilyRelational)
}

func (BaseDriver) ConnectDocument(context.Context, *ConnectionURL) (DocumentConnection, error) {
	return nil, wrongFamilyErr(FamilyDocument)
}

func (BaseDriver) ConnectColumnar(context.Context, *ConnectionURL) (ColumnarConnection, error) {
	return nil, wrongFamilyErr(FamilyColumnar)
}

func (BaseDriver) ConnectKV(context.Context, *ConnectionURL) (KVConnection, error) {
	return nil, wrongFamilyErr(FamilyKV)
}
