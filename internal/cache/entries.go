package cache

import "github.com/line/centraldogma-go/internal/domain"

// encodeEntries/decodeEntries let a []domain.Entry share the same
// entry.Result-as-bytes cache slot as a scalar query result, so
// ListEntries doesn't need its own cache type.
func encodeEntries(entries []domain.Entry) []byte {
	return mustGob(entries)
}

func decodeEntries(b []byte) []domain.Entry {
	var entries []domain.Entry
	mustUngob(b, &entries)
	return entries
}
