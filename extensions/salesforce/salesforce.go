package salesforce

import (
	"errors"
	"net/http"
	"strings"
)

// StaticTokenAuthenticator wraps an http.RoundTripper and attaches a
// Salesforce access token to requests against a salesforce.com Bayeux
// (Streaming API / CometD) endpoint, leaving requests to any other host
// untouched. It is meant to be installed as the http.Client.Transport
// passed to bayeux.NewHTTPTransport; see cmd/bayeuxcat's -token flag.
type StaticTokenAuthenticator struct {
	// Token is the access token obtained either from the Salesforce CLI
	// (for example) or by following
	// https://developer.salesforce.com/docs/atlas.en-us.api_iot.meta/api_iot/qs_auth_access_token.htm
	Token string
	// Transport is the underlying RoundTripper. Defaults to
	// http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// RoundTrip implements the RoundTripper interface
func (t *StaticTokenAuthenticator) RoundTrip(request *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if !strings.HasSuffix(request.URL.Hostname(), "salesforce.com") {
		return transport.RoundTrip(request)
	}
	if t.Token == "" {
		return nil, errors.New("no Token provided to authenticator transport")
	}

	newRequest := deepCopyRequestWithHeaders(request)
	newRequest.Header.Set("Authorization", "Bearer "+t.Token)
	return transport.RoundTrip(newRequest)
}

func deepCopyRequestWithHeaders(request *http.Request) *http.Request {
	newRequest := new(http.Request)
	*newRequest = *request

	newRequest.Header = make(http.Header, len(request.Header))
	for header, values := range request.Header {
		newRequest.Header[header] = append([]string(nil), values...)
	}
	return newRequest
}
