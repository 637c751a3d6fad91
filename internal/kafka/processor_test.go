package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " b1:9092, ,b2:9092 ")
	t.Setenv("KAFKA_API_KEY", "")
	t.Setenv("KAFKA_API_SECRET", "")

	s := SettingsFromEnv()
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, s.Brokers)
	assert.True(t, Enabled())
	assert.Nil(t, s.Dialer().SASLMechanism)
	assert.Nil(t, s.Transport())
}

func TestSettingsDefaultsAndSASL(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_API_KEY", "key")
	t.Setenv("KAFKA_API_SECRET", "secret")

	s := SettingsFromEnv()
	assert.False(t, Enabled())
	assert.Equal(t, []string{"localhost:9092"}, s.Brokers)

	d := s.Dialer()
	assert.NotNil(t, d.SASLMechanism)
	assert.NotNil(t, d.TLS)
	assert.NotNil(t, s.Transport())
}
