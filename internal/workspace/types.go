package workspace

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"
)

// DirentType tags a directory entry as a file or a folder.
type DirentType string

const (
	DirentFile   DirentType = "file"
	DirentFolder DirentType = "folder"
)

// Dirent is a single entry of the virtual file map.
// Content and IsBinary are only meaningful for files.
type Dirent struct {
	Type     DirentType `json:"type"`
	Content  string     `json:"content,omitempty"`
	IsBinary bool       `json:"isBinary,omitempty"`
}

// direntJSON is the persisted form of a Dirent. Content that is binary or
// not valid UTF-8 is stored base64 encoded so it survives the round trip.
type direntJSON struct {
	Type     DirentType `json:"type"`
	Content  string     `json:"content,omitempty"`
	IsBinary bool       `json:"isBinary,omitempty"`
	Encoding string     `json:"encoding,omitempty"`
}

const encodingBase64 = "base64"

func (d Dirent) MarshalJSON() ([]byte, error) {
	out := direntJSON{Type: d.Type, Content: d.Content, IsBinary: d.IsBinary}
	if d.IsBinary || !utf8.ValidString(d.Content) {
		out.Content = base64.StdEncoding.EncodeToString([]byte(d.Content))
		out.Encoding = encodingBase64
	}
	return json.Marshal(out)
}

func (d *Dirent) UnmarshalJSON(data []byte) error {
	var in direntJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	content := in.Content
	if in.Encoding == encodingBase64 {
		raw, err := base64.StdEncoding.DecodeString(in.Content)
		if err != nil {
			return err
		}
		content = string(raw)
	}

	*d = Dirent{Type: in.Type, Content: content, IsBinary: in.IsBinary}
	return nil
}

// IsFile reports whether d is a file entry.
func (d *Dirent) IsFile() bool {
	return d != nil && d.Type == DirentFile
}

// FileMap maps absolute virtual paths to entries.
type FileMap map[string]Dirent

// snapshot is the persisted form of one conversation.
type snapshot struct {
	Files         FileMap    `json:"files"`
	Modifications contentMap `json:"modifications,omitempty"`
}

// contentMap persists path -> content. Values that are not valid UTF-8 are
// written as {"base64": "..."} objects; plain strings are read as is.
type contentMap map[string]string

type encodedContent struct {
	Base64 string `json:"base64"`
}

func (m contentMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if utf8.ValidString(v) {
			out[k] = v
			continue
		}
		out[k] = encodedContent{Base64: base64.StdEncoding.EncodeToString([]byte(v))}
	}
	return json.Marshal(out)
}

func (m *contentMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(contentMap, len(raw))
	for k, v := range raw {
		var text string
		if err := json.Unmarshal(v, &text); err == nil {
			out[k] = text
			continue
		}
		var enc encodedContent
		if err := json.Unmarshal(v, &enc); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(enc.Base64)
		if err != nil {
			return err
		}
		out[k] = string(decoded)
	}
	*m = out
	return nil
}

// ModificationKind says how a ModifiedFile carries its change.
type ModificationKind string

const (
	ModificationDiff ModificationKind = "diff"
	ModificationFile ModificationKind = "file"
)

// ModifiedFile is one entry of the "what changed since last checkpoint" payload.
type ModifiedFile struct {
	Kind    ModificationKind `json:"type"`
	Content string           `json:"content"`
}
