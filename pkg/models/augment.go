package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SearchSuffix marks the synthetic search-augmented variant of a model id.
const SearchSuffix = "-search"

const defaultOwner = "google"

// Only gemini-2.x and above get a search variant.
var eligiblePattern = regexp.MustCompile(`^gemini-[2-9]\.\d`)

// Eligible reports whether a search variant should be derived for the model
// id. Ids already carrying the suffix are skipped, which makes augmentation
// idempotent.
func Eligible(id string) bool {
	return eligiblePattern.MatchString(id) && !strings.HasSuffix(id, SearchSuffix)
}

// Augment derives a "-search" entry for every eligible model and returns the
// originals followed by all derived entries. Entries are raw JSON so fields
// the gateway does not know about survive untouched. The result is recomputed
// on every call; nothing is cached.
func Augment(entries []json.RawMessage, now func() time.Time) []json.RawMessage {
	if now == nil {
		now = time.Now
	}

	derived := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		id := gjson.GetBytes(entry, "id").String()
		if !Eligible(id) {
			continue
		}

		variant, err := sjson.SetBytes(entry, "id", id+SearchSuffix)
		if err != nil {
			logrus.Warnf("[models] derive search variant for %s: %v", id, err)
			continue
		}
		if !gjson.GetBytes(variant, "created").Exists() {
			variant, _ = sjson.SetBytes(variant, "created", now().Unix())
		}
		if !gjson.GetBytes(variant, "owned_by").Exists() {
			variant, _ = sjson.SetBytes(variant, "owned_by", defaultOwner)
		}
		derived = append(derived, variant)
	}

	combined := make([]json.RawMessage, 0, len(entries)+len(derived))
	combined = append(combined, entries...)
	combined = append(combined, derived...)
	return combined
}
