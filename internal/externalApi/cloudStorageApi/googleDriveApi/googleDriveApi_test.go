package googleDriveApi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, xlsxMimeType, mimeTypeOf("portfolio_2025-01-15.xlsx"))
	assert.Contains(t, mimeTypeOf("portfolio.json"), "application/json")
	assert.Equal(t, "application/octet-stream", mimeTypeOf("portfolio"))
}
