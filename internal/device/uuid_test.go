package device_test

import (
	"testing"

	"github.com/srg/boks/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	got, err := device.NormalizeUUID("F5C2657064EC4906B9986A7302879A2B")
	require.NoError(t, err)
	assert.Equal(t, "f5c26570-64ec-4906-b998-6a7302879a2b", got, "MUST lowercase and add dashes")

	_, err = device.NormalizeUUID("2a19")
	assert.Error(t, err, "MUST reject short UUIDs")
}

func TestNotFoundError(t *testing.T) {
	err := &device.NotFoundError{Resource: "characteristic", UUIDs: []string{"svc", "chr"}}
	assert.Equal(t, `characteristic "chr" not found in service "svc"`, err.Error())
}
