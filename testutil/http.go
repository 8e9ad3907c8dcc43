/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

type errorRespData struct {
	Domain string `json:"domain"`
	Code   string `json:"code"`
}

type errorResp struct {
	Error errorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that the recorded response is a JSON error
// with the wanted HTTP status code, domain, and code.
func RequireErrorInRecorder(
	t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that the response is a JSON error
// with the wanted HTTP status code, domain, and code.
func RequireErrorInResponse(
	t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, gotHTTPCode int, gotHeader http.Header, gotBody io.Reader,
	wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, gotHTTPCode)
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	var respData errorResp
	require.NoError(t, json.NewDecoder(gotBody).Decode(&respData))
	require.Equal(t, wantErrDomain, respData.Error.Domain)
	require.Equal(t, wantErrCode, respData.Error.Code)
}
