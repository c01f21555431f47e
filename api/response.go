package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Response is a raw response that wraps an HTTP response.
type Response struct {
	*http.Response
}

// DecodeJSON will decode the response body to a JSON structure. This
// will consume the response body, but will not close it. Close must
// still be called.
func (r *Response) DecodeJSON(out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(out)
}

// Error returns an error response if there is one. If there is an error,
// this will fully consume the response body, but will not close it. The
// body must still be closed manually.
func (r *Response) Error() error {
	// 200 to 399 are okay status codes. 429 only reaches this point once
	// the retry policy has given up on it.
	if r.StatusCode >= 200 && r.StatusCode < 400 {
		return nil
	}

	// We have an error. Let's copy the body into our own buffer first,
	// so that if we can't decode JSON, we can at least copy it raw.
	bodyBuf := &bytes.Buffer{}
	if _, err := io.Copy(bodyBuf, r.Body); err != nil {
		return err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bodyBuf)

	// Build up the error object
	respErr := &ResponseError{
		HTTPMethod: r.Request.Method,
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
	}

	// Decode the error response if we can. Note that we wrap the bodyBuf
	// in a bytes.Reader here so that the JSON decoder doesn't move the
	// read pointer for the original buffer.
	var resp errorResponse
	dec := json.NewDecoder(bytes.NewReader(bodyBuf.Bytes()))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil || len(resp.Errors) == 0 {
		// Store the fact that we couldn't decode the errors
		respErr.RawError = true
		respErr.Errors = []string{strings.TrimSpace(bodyBuf.String())}
	} else {
		respErr.Errors = resp.Errors
	}

	return respErr
}

// errorResponse is the body shape the server uses for every error.
type errorResponse struct {
	Errors []string `json:"errors"`
}

// ResponseError is the error returned when Chronicle responds with an
// error or non-success HTTP status code. If a request to Chronicle fails
// because of a network error a different error message will be returned.
type ResponseError struct {
	// HTTPMethod is the HTTP method for the request (PUT, GET, etc).
	HTTPMethod string

	// URL is the URL of the request.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// RawError marks that the body could not be decoded as the usual
	// errors list and Errors holds it verbatim instead.
	RawError bool

	// Errors are the underlying errors returned by Chronicle.
	Errors []string
}

// Error implements the error interface.
func (r *ResponseError) Error() string {
	if r.RawError && len(r.Errors) == 1 {
		return fmt.Sprintf("%s %s: status %d: %s", r.HTTPMethod, r.URL, r.StatusCode, r.Errors[0])
	}

	var errBody bytes.Buffer
	errBody.WriteString(fmt.Sprintf(
		"Error making API request.\n\n"+
			"URL: %s %s\n"+
			"Code: %d. Errors:\n\n",
		r.HTTPMethod, r.URL, r.StatusCode))
	for _, err := range r.Errors {
		errBody.WriteString(fmt.Sprintf("* %s", err))
	}

	return errBody.String()
}
