package abi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackPtrLen(t *testing.T) {
	tests := []struct {
		ptr, length uint32
	}{
		{0, 0},
		{1024, 17},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0x10000, 0},
	}

	for _, tc := range tests {
		packed := PackPtrLen(tc.ptr, tc.length)
		ptr, length := UnpackPtrLen(packed)
		assert.Equal(t, tc.ptr, ptr)
		assert.Equal(t, tc.length, length)
	}
	assert.Equal(t, uint64(1024)<<32|17, PackPtrLen(1024, 17))
}

func TestHeaders_FromHTTP(t *testing.T) {
	h := http.Header{}
	h.Add("X-B", "2")
	h.Add("Content-Type", "text/plain")
	h.Add("X-B", "3")

	got := FromHTTP(h)
	assert.Equal(t, Headers{
		{"content-type", "text/plain"},
		{"x-b", "2"},
		{"x-b", "3"},
	}, got)
}

func TestHeaders_ToHTTP(t *testing.T) {
	hs := Headers{{"content-type", "text/html"}, {"set-cookie", "a=1"}, {"set-cookie", "b=2"}, {"", "dropped"}}
	h := hs.ToHTTP()
	assert.Equal(t, "text/html", h.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
	assert.Len(t, h, 2)
}

func TestRequest_JSON(t *testing.T) {
	req := Request{
		Method:  "POST",
		URI:     "http://localhost:3000/hello",
		Headers: Headers{{"spin-path-info", "/x"}},
		Body:    []byte("hi"),
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"POST","uri":"http://localhost:3000/hello","headers":[["spin-path-info","/x"]],"body":"aGk="}`, string(data))

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"status":201,"headers":[["content-type","text/plain"]],"body":"b2s="}`), &resp))
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Headers.ToHTTP().Get("Content-Type"))
}
