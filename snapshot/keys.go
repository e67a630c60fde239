package snapshot

import (
	"fmt"

	"github.com/quarry-engine/quarry/types/entity"
)

/*
	SNAPSHOT LAYOUT:
	QUARRY:ENTITY-IDS       -> encoded list of every entity ID in the snapshot
	QUARRY:ENTITY:<id>      -> encoded record for one entity
	QUARRY:SCHEMA:<name>    -> JSON schema fingerprint for one component type
*/

func entityIDsKey() string {
	return "QUARRY:ENTITY-IDS"
}

func entityKey(id entity.ID) string {
	return fmt.Sprintf("QUARRY:ENTITY:%d", id)
}

func schemaKey(componentName string) string {
	return fmt.Sprintf("QUARRY:SCHEMA:%s", componentName)
}
