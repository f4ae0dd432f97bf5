package kv

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/eventric-io/eventstore/store/types"
)

const (
	metaFileName  = "meta.json"
	schemaVersion = 1
)

var partitionTagNames = map[Tag]string{
	TagEvents:          "events",
	TagIdentifierIndex: "identifier_index",
	TagTagIndex:        "tag_index",
	TagTimestampIndex:  "timestamp_index",
	TagIdentifierRefs:  "identifier_refs",
	TagTagRefs:         "tag_refs",
}

// keyspaceMeta is the directory-level metadata recorded once at creation:
// the schema version future code can gate on, the partition tag table
// (so a tag number can be traced back to its name without recompiling),
// and the creation time.
type keyspaceMeta struct {
	SchemaVersion int            `json:"schema_version"`
	PartitionTags map[string]int `json:"partition_tags"`
	CreatedAt     time.Time      `json:"created_at"`
}

func newKeyspaceMeta() keyspaceMeta {
	tags := make(map[string]int, len(partitionTagNames))
	for tag, name := range partitionTagNames {
		tags[name] = int(tag)
	}
	return keyspaceMeta{SchemaVersion: schemaVersion, PartitionTags: tags, CreatedAt: time.Now().UTC()}
}

// loadOrCreateMeta reads dir's meta.json, creating it with the current
// schema if absent. An existing file with a newer schema version than
// this build understands is rejected rather than silently misread.
func loadOrCreateMeta(dir string) (keyspaceMeta, error) {
	path := filepath.Join(dir, metaFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m := newKeyspaceMeta()
		if werr := writeMeta(path, m); werr != nil {
			return keyspaceMeta{}, werr
		}
		return m, nil
	}
	if err != nil {
		return keyspaceMeta{}, types.IoWrap(err, "read meta file")
	}
	var m keyspaceMeta
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &m); err != nil {
		return keyspaceMeta{}, types.DataIntegrityf("parse %s: %v", metaFileName, err)
	}
	if m.SchemaVersion > schemaVersion {
		return keyspaceMeta{}, types.DataIntegrityf("keyspace schema version %d is newer than this build supports (%d)", m.SchemaVersion, schemaVersion)
	}
	return m, nil
}

func writeMeta(path string, m keyspaceMeta) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(m, "", "  ")
	if err != nil {
		return types.IoWrap(err, "encode meta file")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return types.IoWrap(err, "write meta file")
	}
	return nil
}
