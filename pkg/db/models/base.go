package models

import "github.com/google/uuid"

// ensureID assigns a client-side id. Postgres also defaults ids, but sqlite
// test databases cannot express gen_random_uuid().
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
