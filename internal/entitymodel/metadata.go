package entitymodel

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"immunocore/internal/entitymodel/sqlbundle"
)

var (
	versionOnce sync.Once
	version     string
)

// Version returns a short fingerprint of the record store DDL and the API
// contract. It changes whenever either backend schema or the contract does.
func Version() string {
	versionOnce.Do(func() {
		h := sha256.New()
		for _, part := range []string{sqlbundle.SQLite(), sqlbundle.Postgres(), string(openAPISpec)} {
			_, _ = h.Write([]byte(part))
			_, _ = h.Write([]byte{0})
		}
		version = "em-" + hex.EncodeToString(h.Sum(nil))[:12]
	})
	return version
}
