package graph

import "encoding/json"

// RunMetadata is delivered once per connection by the run-metadata reply.
type RunMetadata struct {
	RootUUID string `json:"root_uuid"`
	LogsDir  string `json:"logs_dir,omitempty"`
	Chain    string `json:"chain,omitempty"`
	UID      string `json:"uid,omitempty"`
}

func ParseRunMetadata(raw []byte) (RunMetadata, error) {
	var md RunMetadata
	if len(raw) == 0 || string(raw) == "null" {
		return md, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return RunMetadata{}, err
	}
	return md, nil
}
