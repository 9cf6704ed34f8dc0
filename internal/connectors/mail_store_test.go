package connectors

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailArchiveIsContentAddressed(t *testing.T) {
	archive := NewMailArchive(t.TempDir())

	first, err := archive.Store(Message{MessageID: "a", Raw: []byte("Subject: order\r\n\r\n2 x brush\r\n")})
	require.NoError(t, err)
	second, err := archive.Store(Message{MessageID: "b", Raw: []byte("Subject: order\r\n\r\n2 x brush\r\n")})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := archive.Store(Message{MessageID: "c", Raw: []byte("Subject: hi\r\n\r\nhello\r\n")})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	blob, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(blob), "2 x brush")
}
