package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
)

// pointNamespace is the UUIDv5 namespace for point IDs. Changing it
// orphans every previously written point, so it is fixed for the life
// of the deployment.
var pointNamespace = uuid.MustParse("9f2c41de-7a55-4c1b-8e3f-6b0d2a9c5e17")

// PointID derives the deterministic point ID for one chunk of one
// entity. The same (account_id, kind, entity_id, chunk_index) tuple
// always maps to the same UUID, so a re-sync overwrites instead of
// duplicating.
func PointID(accountID, kind string, entityID int64, chunkIndex int) uuid.UUID {
	key := fmt.Sprintf("%s:%s:%d:%d", accountID, kind, entityID, chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(key))
}
