package simbad

import "strings"

// Column describes one field of a TAP JSON result.
type Column struct {
	Name     string `json:"name"`
	Datatype string `json:"datatype,omitempty"`
}

// tapResponse is the TAP sync JSON serialization (FORMAT=json):
//
//	{"metadata": [{"name": "id", ...}], "data": [["Gaia DR2 123"], ...]}
type tapResponse struct {
	Metadata []Column `json:"metadata"`
	Data     [][]any  `json:"data"`
}

// identifiers extracts the "id" column, skipping nulls and blanks.
func (r tapResponse) identifiers() []string {
	col := 0
	for i, m := range r.Metadata {
		if strings.EqualFold(m.Name, "id") {
			col = i
			break
		}
	}

	ids := make([]string, 0, len(r.Data))
	for _, row := range r.Data {
		if col >= len(row) {
			continue
		}
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ids = append(ids, s)
	}
	return ids
}
