package resolve

import (
	"encoding/json"
	"fmt"

	"github.com/Kong/gojsondiff"
	"github.com/Kong/gojsondiff/formatter"
)

// manualReason names the conflicting fields and appends a human-readable
// structural diff of the whole local vs. remote payloads, so a Failed
// operation's ErrorMessage shows what collided instead of just naming the
// fields. When no diff can be rendered, only the field names are given.
func manualReason(local, remote map[string]interface{}, conflictingFields []string) string {
	leftJSON, err := json.Marshal(local)
	if err != nil {
		return fmt.Sprintf("manual conflict resolution required: conflicting fields %v", conflictingFields)
	}
	rightJSON, err := json.Marshal(remote)
	if err != nil {
		return fmt.Sprintf("manual conflict resolution required: conflicting fields %v", conflictingFields)
	}

	differ := gojsondiff.New()
	diff, err := differ.Compare(leftJSON, rightJSON)
	if err != nil || !diff.Modified() {
		return fmt.Sprintf("manual conflict resolution required: conflicting fields %v", conflictingFields)
	}

	var leftObj map[string]interface{}
	if err := json.Unmarshal(leftJSON, &leftObj); err != nil {
		return fmt.Sprintf("manual conflict resolution required: conflicting fields %v", conflictingFields)
	}

	f := formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterDefaultConfig)
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("manual conflict resolution required: conflicting fields %v", conflictingFields)
	}

	return fmt.Sprintf("manual conflict resolution required: conflicting fields %v\n%s", conflictingFields, out)
}
