package recognizer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/pkg/config"
)

// writeScript drops an executable shell script into a temp dir and returns
// its path. The script stands in for the external matching program.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matcher.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestRecognizer(t *testing.T, script string, timeout time.Duration) (*ExecRecognizer, string) {
	t.Helper()
	stagingDir := t.TempDir()
	rec := NewExec(config.RecognizerConfig{
		Command: "/bin/sh",
		Script:  script,
		Timeout: timeout,
		TempDir: stagingDir,
	}, nil)
	return rec, stagingDir
}

func sampleImage() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
}

func TestExecMatchSuccess(t *testing.T) {
	script := writeScript(t, `echo '{"status":"success","student_id":"17","student_name":"Alice Umutoni","student_reg":"REG/001","confidence":92.4,"faces_detected":1}'`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)
	require.NotNil(t, outcome.StudentID)
	assert.Equal(t, "17", outcome.StudentID.String())
	assert.InDelta(t, 92.4, outcome.Confidence, 0.001)
	assert.Equal(t, 1, outcome.FacesDetected)
}

func TestExecMatchReceivesImagePath(t *testing.T) {
	// The script echoes the file it was handed; the staged copy must hold
	// the submitted bytes at that moment.
	script := writeScript(t, `cat "$1" > "$(dirname "$0")/received.jpg"
echo '{"status":"no_match","faces_detected":1}'`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "no_match", outcome.Status)

	received, err := os.ReadFile(filepath.Join(filepath.Dir(script), "received.jpg"))
	require.NoError(t, err)
	assert.Equal(t, sampleImage(), received)
}

func TestExecMatchTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	rec, _ := newTestRecognizer(t, script, 150*time.Millisecond)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "error", outcome.Status)
	assert.Equal(t, "face recognition timed out", outcome.Message)
}

func TestExecMatchLingeringChildDoesNotBlock(t *testing.T) {
	// The matcher answers and exits, but leaves a background child holding
	// the inherited stdout pipe. Match must not wait for that child.
	script := writeScript(t, `sleep 30 &
echo '{"status":"success","student_id":"17","confidence":91.0,"faces_detected":1}'
exit 0`)
	rec, _ := newTestRecognizer(t, script, 10*time.Second)

	start := time.Now()
	outcome, err := rec.Match(context.Background(), sampleImage())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)
	assert.Less(t, elapsed, 8*time.Second, "must not block on the orphaned child")
}

func TestExecMatchProcessFailure(t *testing.T) {
	script := writeScript(t, `echo "model file missing" >&2
exit 3`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "error", outcome.Status)
	assert.Contains(t, outcome.Message, "model file missing")
}

func TestExecMatchMalformedOutput(t *testing.T) {
	script := writeScript(t, `echo 'Traceback (most recent call last):'`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "error", outcome.Status)
	assert.Contains(t, outcome.Message, "invalid response")
}

func TestExecMatchEmptyOutput(t *testing.T) {
	script := writeScript(t, `true`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "error", outcome.Status)
	assert.Contains(t, outcome.Message, "no output")
}

func TestExecMatchMissingStatus(t *testing.T) {
	script := writeScript(t, `echo '{"confidence":50.0}'`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	outcome, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)
	assert.Equal(t, "error", outcome.Status)
}

func TestExecMatchRemovesStagedFile(t *testing.T) {
	script := writeScript(t, `echo '{"status":"no_face_detected","faces_detected":0}'`)
	rec, stagingDir := newTestRecognizer(t, script, 5*time.Second)

	_, err := rec.Match(context.Background(), sampleImage())
	require.NoError(t, err)

	entries, err := os.ReadDir(stagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged capture file must be removed")
}

func TestExecMatchRejectsEmptyImage(t *testing.T) {
	script := writeScript(t, `echo '{"status":"success"}'`)
	rec, _ := newTestRecognizer(t, script, 5*time.Second)

	_, err := rec.Match(context.Background(), nil)
	require.Error(t, err)
}

func TestFlexIDAcceptsNumbersAndStrings(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"status":"success","student_id":42}`, "42"},
		{`{"status":"success","student_id":"42"}`, "42"},
		{`{"status":"success","student_id":null}`, ""},
	}
	for _, tc := range cases {
		var outcome Outcome
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &outcome))
		if tc.want == "" {
			if outcome.StudentID != nil {
				assert.Empty(t, outcome.StudentID.String())
			}
			continue
		}
		require.NotNil(t, outcome.StudentID)
		assert.Equal(t, tc.want, outcome.StudentID.String())
	}
}
