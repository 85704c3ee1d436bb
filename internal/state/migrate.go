package state

// rawDoc is the parsed-but-untyped form of the persisted document.
// Migration steps operate on it so that presence checks work for
// documents written by any historical release, including hand-edited
// ones.
type rawDoc map[string]any

// migrations is the ordered chain of additive schema steps. Each step
// is a total function migrating a document from version From to
// From+1; it only adds fields that are absent and never deletes or
// overwrites existing ones. Steps apply cumulatively from the
// document's recorded schemaVersion (unversioned documents count as
// version 1) up to model.SchemaVersion.
var migrations = []struct {
	From  int
	Apply func(rawDoc)
}{
	{1, migrateV1toV2},
	{2, migrateV2toV3},
	{3, migrateV3toV4},
	{4, migrateV4toV5},
	{5, migrateV5toV6},
}

// migrate runs the migration chain and the normalization pass. The
// returned document is structurally complete for the current schema.
func migrate(doc rawDoc) rawDoc {
	version := docVersion(doc)
	for _, m := range migrations {
		if version <= m.From {
			m.Apply(doc)
		}
	}
	normalize(doc)
	return doc
}

func docVersion(doc rawDoc) int {
	v, ok := doc["schemaVersion"]
	if !ok {
		return 1
	}
	// JSON numbers decode as float64.
	f, ok := v.(float64)
	if !ok || f < 1 {
		return 1
	}
	return int(f)
}

func emptyCounter() map[string]any {
	return map[string]any{"dayKeyUtc": "", "countToday": 0}
}

// v1 documents predate posting: they only carried the trade counter
// and the last trade timestamp.
func migrateV1toV2(doc rawDoc) {
	ensure(doc, "trades", emptyCounter())
	ensure(doc, "lastExecutedTradeAtMs", 0)
	ensure(doc, "breakers", map[string]any{})
	ensure(doc, "newsPosts", emptyCounter())
}

func migrateV2toV3(doc rawDoc) {
	ensure(doc, "seenNewsFingerprints", []any{})
	ensure(doc, "lastReceiptHash", "")
}

func migrateV3toV4(doc rawDoc) {
	ensure(doc, "discussionPosts", emptyCounter())
	ensure(doc, "campaignPosts", emptyCounter())
	ensure(doc, "campaignHookIndex", 0)
	ensure(doc, "repliedCommentIds", []any{})
}

func migrateV4toV5(doc rawDoc) {
	ensure(doc, "tickInFlightSinceMs", nil)
	ensure(doc, "lastTickCompletedAtMs", nil)
	ensure(doc, "lastTxNonce", nil)
	ensure(doc, "lpLastTickMs", nil)
	ensure(doc, "lastActionAtMs", map[string]any{})
}

func migrateV5toV6(doc rawDoc) {
	ensure(doc, "lastEthBalanceWei", "")
	ensure(doc, "lastTokenBalanceWei", "")
}

// ensure adds key with the default value only when the key is absent.
// Presence is what counts, not type: an existing value of the wrong
// shape is left for normalize to repair.
func ensure(doc rawDoc, key string, def any) {
	if _, ok := doc[key]; !ok {
		doc[key] = def
	}
}

// normalize repairs fields whose stored value has the wrong shape so a
// hand-edited or partially corrupt document never crashes the decode:
// expected lists that are not lists become empty lists, expected
// mappings that are not mappings become empty mappings.
func normalize(doc rawDoc) {
	for _, key := range []string{"seenNewsFingerprints", "repliedCommentIds"} {
		if _, ok := doc[key].([]any); !ok {
			doc[key] = []any{}
		}
	}
	for _, key := range []string{"breakers", "lastActionAtMs", "trades", "newsPosts", "discussionPosts", "campaignPosts"} {
		if _, ok := doc[key].(map[string]any); !ok {
			doc[key] = map[string]any{}
		}
	}
}
