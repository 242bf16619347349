package pipeline

import (
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"
)

// newMultipart writes a multipart form with fields and one file into body and
// returns its content type.
func newMultipart(t *testing.T, body *bytes.Buffer, fields map[string]string, fileField, filename, content string) string {
	t.Helper()

	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(fileField, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return mw.FormDataContentType()
}
