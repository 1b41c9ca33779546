package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/famchat/internal/config"
	"github.com/vovakirdan/famchat/internal/proto"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("caption", "ignored"))
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadStoresAndServesFile(t *testing.T) {
	srv := startTestServer(t)

	body, contentType := multipartBody(t, "file", "cat.png", pngHeader)
	resp, err := srv.ts.Client().Post(srv.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var up proto.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	require.Equal(t, "cat.png", up.OriginalName)
	require.Equal(t, "image/png", up.MimeType)
	require.Equal(t, int64(len(pngHeader)), up.Size)
	require.Equal(t, "/uploads/"+up.Filename, up.URL)

	got, err := srv.ts.Client().Get(srv.ts.URL + up.URL)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	data, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)
}

func TestUploadRejectsOversize(t *testing.T) {
	srv := startTestServer(t, func(c *config.Config) { c.MaxUploadBytes = 8 })

	body, contentType := multipartBody(t, "file", "big.txt", []byte("0123456789abcdef"))
	resp, err := srv.ts.Client().Post(srv.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUploadRequiresFilePart(t *testing.T) {
	srv := startTestServer(t)

	body, contentType := multipartBody(t, "attachment", "a.txt", []byte("hello"))
	resp, err := srv.ts.Client().Post(srv.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := srv.ts.Client().Post(srv.ts.URL+"/upload", "text/plain", bytes.NewBufferString("x"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
