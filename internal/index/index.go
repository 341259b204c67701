package index

// Catalog defines the document catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Catalog interface {
	Upsert(row DocumentRow, body string) error
	Delete(path string) error
	GetHash(path string) (string, error)
	Get(path string) (*DocumentRow, error)
	List(limit, offset int) ([]DocumentRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllHashes() (map[string]string, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
