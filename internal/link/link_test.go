package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSensorIDFromTopic(t *testing.T) {
	assert.Equal(t, "4.182", sensorIDFromTopic("d02/24ASE2-45678/v/4.182"))
	assert.Equal(t, "5.3", sensorIDFromTopic("d02/ABC123/v/5.3"))
	assert.Equal(t, "4.1", sensorIDFromTopic("4.1"))
}

func TestParsePayload(t *testing.T) {
	raw, err := parsePayload([]byte(`{"v": 725}`))
	require.NoError(t, err)
	assert.Equal(t, float64(725), raw)

	raw, err = parsePayload([]byte(`{"v": "19.18"}`))
	require.NoError(t, err)
	assert.Equal(t, "19.18", raw)
}

func TestParsePayload_Malformed(t *testing.T) {
	_, err := parsePayload([]byte(`not json`))
	assert.Error(t, err)

	_, err = parsePayload([]byte(`{"other": 1}`))
	assert.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second))
	assert.Equal(t, 8*time.Second, nextBackoff(4*time.Second))
	// Caps at five minutes, never grows unbounded.
	assert.Equal(t, maxBackoff, nextBackoff(4*time.Minute))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff))
}

func TestPublish_RequiresConnection(t *testing.T) {
	l := New("24ASE2-45678", "token", nil, nil, Options{Host: "localhost", Port: 8083}, zap.NewNop())

	err := l.Publish("4.2", "72")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestTopicLayout(t *testing.T) {
	l := New("24ASE2-45678", "token", nil, nil, Options{Host: "localhost", Port: 8083}, zap.NewNop())

	assert.Equal(t, "d02/24ASE2-45678/v/4.182", l.topic("v", "4.182"))
	assert.Equal(t, "d02/24ASE2-45678/g/4.182", l.topic("g", "4.182"))
	assert.Equal(t, "d02/24ASE2-45678/s/4.2", l.topic("s", "4.2"))
}
