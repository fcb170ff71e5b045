package extract

import "fmt"

const (
	// NotFound fills a missing server or key.
	NotFound = "Not found"
	// Incomplete replaces the full URL when either half is missing.
	Incomplete = "Incomplete data"
	// MissingKey stands in for the key inside Formatted.
	MissingKey = "NOT_FOUND"

	serverField = "rtmp"
	keyField    = "key"
)

// Result is the normalized outcome of a successful extraction.
type Result struct {
	RTMPServer string `json:"rtmp_server"`
	StreamKey  string `json:"stream_key"`
	FullURL    string `json:"full_url"`
	Formatted  string `json:"formatted"`
}

// HasServer reports whether a server address was found.
func (r *Result) HasServer() bool { return r.RTMPServer != NotFound }

// HasKey reports whether a stream key was found.
func (r *Result) HasKey() bool { return r.StreamKey != NotFound }

// Extract searches root for the RTMP server ("rtmp") and stream key ("key").
//
// Top-level string members are taken first. When either value is still
// missing the whole document is walked, and every string member with one of
// those names replaces the previous candidate, so the last match in document
// order wins. Empty strings count as missing. It returns nil when neither
// value is found or root is not a container.
func Extract(root Value) *Result {
	var server, key string

	if obj, ok := root.(*Object); ok && obj != nil {
		server, _ = obj.GetString(serverField)
		key, _ = obj.GetString(keyField)
	}

	if server == "" || key == "" {
		Walk(root, func(name string, v Value) {
			s, ok := v.(String)
			if !ok {
				return
			}
			switch name {
			case serverField:
				server = string(s)
			case keyField:
				key = string(s)
			}
		})
	}

	if server == "" && key == "" {
		return nil
	}
	return normalize(server, key)
}

// FromBytes parses data and runs Extract on it. Bodies that are not JSON
// yield nil.
func FromBytes(data []byte) *Result {
	root, err := Parse(data)
	if err != nil {
		return nil
	}
	return Extract(root)
}

func normalize(server, key string) *Result {
	r := &Result{
		RTMPServer: server,
		StreamKey:  key,
		FullURL:    Incomplete,
		Formatted:  fmt.Sprintf("rtmp:%s:", orDefault(key, MissingKey)),
	}
	if server != "" && key != "" {
		r.FullURL = server + "/" + key
	}
	r.RTMPServer = orDefault(server, NotFound)
	r.StreamKey = orDefault(key, NotFound)
	return r
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
