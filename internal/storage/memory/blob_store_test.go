package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectReturnsURIAndCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"scores":{}}`)

	uri, err := store.PutObject(context.Background(), "scans/1/artifact.json", "application/json", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://scans/1/artifact.json", uri)

	payload[0] = 'X'
	stored, ok := store.GetObject("scans/1/artifact.json")
	require.True(t, ok)
	require.Equal(t, byte('{'), stored[0])
}
