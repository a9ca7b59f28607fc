package cache

import (
	"bytes"
	"encoding/gob"
)

// mustGob/mustUngob serialize cache payloads that aren't already raw
// bytes (e.g. entry listings). Cache values are always produced by this
// package from data storage itself just returned, so encode errors here
// would indicate a programming bug, not bad input.
func mustGob(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func mustUngob(b []byte, v any) {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		panic(err)
	}
}
