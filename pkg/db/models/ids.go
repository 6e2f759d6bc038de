package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller did not provide one. Postgres also
// defaults ids via gen_random_uuid(), but sqlite test databases do not.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
