package searchtool

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Suffix is the model-id extension that requests search grounding. It is a
// string-level convention: the suffix is resolved here, at the handler
// boundary, and the upstream never sees it.
const Suffix = "-search"

// ToolName identifies the injected search tool. Uniqueness in a request's
// tool list is keyed by this name alone.
const ToolName = "googleSearch"

var searchToolJSON = []byte(`{"type":"function","function":{"name":"googleSearch","description":"Ground the response in current Google Search results."}}`)

// IsSearchModel reports whether the model id requests the search variant.
// The match is anchored at the end and the base id must be non-empty, so a
// model literally named "-search" is left alone.
func IsSearchModel(id string) bool {
	return strings.HasSuffix(id, Suffix) && len(id) > len(Suffix)
}

// Normalize resolves the search-variant convention on a raw chat-completion
// body. For a "-search" model it strips the suffix from the forwarded model
// id and injects the search tool into the tool list exactly once; every other
// field passes through byte-for-byte. Bodies without the suffix are returned
// unmodified.
func Normalize(body []byte) (forwarded []byte, modelID string, err error) {
	modelID = gjson.GetBytes(body, "model").String()
	if !IsSearchModel(modelID) {
		return body, modelID, nil
	}

	modelID = strings.TrimSuffix(modelID, Suffix)
	forwarded, err = sjson.SetBytes(body, "model", modelID)
	if err != nil {
		return nil, "", fmt.Errorf("set forwarded model id: %w", err)
	}

	tools := gjson.GetBytes(forwarded, "tools")
	if !tools.IsArray() || len(tools.Array()) == 0 {
		forwarded, err = sjson.SetRawBytes(forwarded, "tools", append(append([]byte("["), searchToolJSON...), ']'))
		if err != nil {
			return nil, "", fmt.Errorf("set tool list: %w", err)
		}
		return forwarded, modelID, nil
	}

	if hasSearchTool(tools) {
		return forwarded, modelID, nil
	}
	forwarded, err = sjson.SetRawBytes(forwarded, "tools.-1", searchToolJSON)
	if err != nil {
		return nil, "", fmt.Errorf("append search tool: %w", err)
	}
	return forwarded, modelID, nil
}

func hasSearchTool(tools gjson.Result) bool {
	for _, tool := range tools.Array() {
		if tool.Get("function.name").String() == ToolName {
			return true
		}
	}
	return false
}
