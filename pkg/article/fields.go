package article

import (
	"fmt"
	"sort"
)

// Well-known field keys
const (
	FieldTitle       = "title"
	FieldText        = "text"
	FieldSource      = "source"
	FieldPublishTime = "publish_time"
	FieldCleanText   = "clean_text"
	FieldSummary     = "summary"
	FieldEvents      = "events"
	FieldEntities    = "entities"
	FieldSentiment   = "sentiment"
	FieldKeywords    = "keywords"
	FieldTopics      = "topics"
	FieldCategory    = "category"
	FieldEmbedding   = "embedding"
)

// FieldBag is the mutable key/value map accumulated during one run
type FieldBag map[string]any

// Clone returns a shallow copy of the bag
func (b FieldBag) Clone() FieldBag {
	out := make(FieldBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Has reports whether key is present, even with a nil value
func (b FieldBag) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// Keys returns the keys in sorted order
func (b FieldBag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing returns the required keys that are absent, sorted
func (b FieldBag) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		if !b.Has(key) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// String returns the value for key as a string. Non-string values are
// formatted with %v and a nil or absent value yields "".
func (b FieldBag) String(key string) string {
	switch v := b[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
