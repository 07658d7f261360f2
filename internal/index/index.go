package index

// NoteIndex is the read and write surface of the vault index. Consumers depend
// on it rather than on *DB so they can be tested with fakes.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string, links []string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	Title(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	EmbeddedIn(target string) ([]string, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
