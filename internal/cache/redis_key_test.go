package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	s := NewEventStore(nil, "farmstand-api", time.Hour)
	assert.Equal(t, "farmstand-api:webhook:evt_42", s.GenerateKey("webhook", "evt_42"))
}
