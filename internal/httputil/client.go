// Package httputil provides HTTP client abstractions for testability.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// Client abstracts the HTTP operations the dispatch path performs. Use
// NewStandardClient for production and NewStubClient in tests.
type Client interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement Client.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a StandardClient. A nil argument selects
// http.DefaultClient.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// StubClient is a Client that records requests and replays canned responses
// in order. Once the canned responses are exhausted it answers 200 OK.
type StubClient struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	stubs    []stub
	next     int
}

type stub struct {
	status int
	body   string
	err    error
}

// NewStubClient creates an empty StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Stub queues a response with the given status code and body.
func (c *StubClient) Stub(status int, body string) *StubClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stubs = append(c.stubs, stub{status: status, body: body})
	return c
}

// StubErr queues a transport-level error.
func (c *StubClient) StubErr(err error) *StubClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stubs = append(c.stubs, stub{err: err})
	return c
}

// Do records the request and returns the next queued response.
func (c *StubClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	// Request bodies are one-shot readers; capture them while they are
	// still readable so assertions can inspect them later.
	var payload string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		req.Body.Close()
		payload = string(b)
	}
	c.bodies = append(c.bodies, payload)

	if c.next < len(c.stubs) {
		s := c.stubs[c.next]
		c.next++
		if s.err != nil {
			return nil, s.err
		}
		return &http.Response{
			StatusCode: s.status,
			Body:       io.NopCloser(bytes.NewBufferString(s.body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (c *StubClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Request returns the nth recorded request, or nil if out of range.
func (c *StubClient) Request(n int) *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n >= len(c.requests) {
		return nil
	}
	return c.requests[n]
}

// Body returns the captured body of the nth recorded request.
func (c *StubClient) Body(n int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 || n >= len(c.bodies) {
		return ""
	}
	return c.bodies[n]
}
