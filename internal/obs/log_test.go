package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogRequestLevels(t *testing.T) {
	l := Logger()
	origOut := l.Out
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(origOut)

	LogRequest(200, logrus.Fields{"path": "/ok"})
	LogRequest(503, logrus.Fields{"path": "/down"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	want := []struct {
		level  string
		status float64
	}{{"info", 200}, {"warning", 503}}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry["msg"] != "request_complete" || entry["level"] != want[i].level || entry["status"] != want[i].status {
			t.Fatalf("unexpected entry %d: %v", i, entry)
		}
	}
}
