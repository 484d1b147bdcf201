package stream

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Kind is the result category of classifying a content payload.
type Kind int

const (
	// KindText is plain displayable text, forwarded verbatim.
	KindText Kind = iota

	// KindJSON is displayable JSON, forwarded pretty-printed.
	KindJSON

	// KindLog is a machine-generated diagnostic record. It is collected for
	// inspection and never forwarded to the user-visible transcript.
	KindLog
)

// LogEntry is a structured diagnostic record extracted from a content payload.
type LogEntry struct {
	Timestamp string
	Level     string
	Message   string
	Fields    map[string]any
	AgentID   int
	SeenAt    time.Time
}

// Classification is the outcome of classifying one content payload.
type Classification struct {
	Kind Kind

	// Display holds the user-visible form for KindText and KindJSON.
	Display string

	// Log holds the parsed record for KindLog.
	Log *LogEntry
}

// Classifier decides whether a content payload is displayable output or a
// diagnostic log record. The check is injectable because the default heuristic
// can misclassify legitimate JSON output that happens to carry both a
// timestamp-like and a level-like key.
type Classifier func(text string) Classification

// Keys that mark a JSON object as a log record. Both a timestamp-like and a
// level-like key must be present.
var (
	timestampKeys = []string{"timestamp", "time", "ts"}
	levelKeys     = []string{"level", "severity"}
	messageKeys   = []string{"message", "msg"}
)

// DefaultClassifier implements the standard classification:
//
//   - a valid JSON object carrying both a timestamp-like key (timestamp, time,
//     ts) and a level-like key (level, severity) is a log record;
//   - any other valid JSON value is displayable, re-serialized pretty-printed;
//   - anything else is displayable verbatim.
func DefaultClassifier(text string) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return Classification{Kind: KindText, Display: text}
	}

	parsed := gjson.Parse(trimmed)
	if parsed.IsObject() {
		if entry := parseLogEntry(parsed); entry != nil {
			return Classification{Kind: KindLog, Log: entry}
		}
	}

	display := strings.TrimRight(string(pretty.Pretty([]byte(trimmed))), "\n")
	return Classification{Kind: KindJSON, Display: display}
}

// parseLogEntry returns a LogEntry if the object matches the log shape,
// or nil if it does not.
func parseLogEntry(obj gjson.Result) *LogEntry {
	tsKey, ts := firstKey(obj, timestampKeys)
	if tsKey == "" {
		return nil
	}
	lvlKey, lvl := firstKey(obj, levelKeys)
	if lvlKey == "" {
		return nil
	}
	msgKey, msg := firstKey(obj, messageKeys)

	entry := &LogEntry{
		Timestamp: ts.String(),
		Level:     lvl.String(),
		Message:   msg.String(),
		SeenAt:    time.Now(),
	}

	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if k == tsKey || k == lvlKey || k == msgKey {
			return true
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]any)
		}
		entry.Fields[k] = value.Value()
		return true
	})

	return entry
}

// firstKey returns the first of the candidate keys present on obj, with its
// value. An empty key means none matched.
func firstKey(obj gjson.Result, candidates []string) (string, gjson.Result) {
	for _, k := range candidates {
		if v := obj.Get(k); v.Exists() {
			return k, v
		}
	}
	return "", gjson.Result{}
}
