package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/workload-engine/logging"
)

func TestNew_RejectsBadSettings(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.Level = "loud"
	_, _, err := logging.New("test", cfg)
	assert.Error(t, err)

	cfg = logging.DefaultConfig()
	cfg.Format = "xml"
	_, _, err = logging.New("test", cfg)
	assert.Error(t, err)
}

func TestNew_JSONToRotatedFile(t *testing.T) {
	// GIVEN: JSON format with a file destination and stderr off
	// WHEN: Logging one entry
	// THEN: The file holds one JSON object with the fields

	path := filepath.Join(t.TempDir(), "engine.log")
	cfg := logging.DefaultConfig()
	cfg.Format = "json"
	cfg.File = path
	cfg.Stderr = false

	log, closer, err := logging.New("workload-engine", cfg)
	require.NoError(t, err)
	log.WithField("manager_id", 7).Info("charge recomputed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "charge recomputed", entry["msg"])
	assert.Equal(t, float64(7), entry["manager_id"])
}

func TestEventFormatter(t *testing.T) {
	f := &logging.EventFormatter{SystemName: "workload-engine"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "project rejected",
		Data:    logrus.Fields{"project": "Billing", "charge": "112.50"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "Date: 2024-03-05, Time: 14:30:00, Event Source: workload-engine, Event Type: WARNING, "))
	assert.Contains(t, line, "Message: project rejected, charge=112.50, project=Billing")
	assert.True(t, strings.HasSuffix(line, "\n"))
}
