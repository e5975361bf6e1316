//go:build !wasm

package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/valyala/fasthttp"
)

// abandonTimeout bounds how long a cancelled exchange may linger.
const abandonTimeout = 2 * time.Minute

// fastHTTPFetcher adapts fasthttp to the net/http shaped Fetcher contract.
// Cookies are kept in a net/http jar so credentials behave like the other
// adapters.
type fastHTTPFetcher struct {
	client *fasthttp.Client
	jar    http.CookieJar
}

func newFastHTTPFetcher(client *fasthttp.Client) *fastHTTPFetcher {
	if client == nil {
		client = &fasthttp.Client{
			Name:                     "pubflow-go",
			NoDefaultUserAgentHeader: false,
			MaxConnsPerHost:          64,
			ReadTimeout:              abandonTimeout,
			WriteTimeout:             abandonTimeout,
		}
	}
	jar, _ := cookiejar.New(nil)
	return &fastHTTPFetcher{client: client, jar: jar}
}

// Fetch honours cancellation of the request context as well as its
// deadline. An abandoned exchange keeps running in the background until
// fasthttp gives up, after which its buffers are released.
func (f *fastHTTPFetcher) Fetch(req *http.Request) (*http.Response, error) {
	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(freq)
		fasthttp.ReleaseResponse(fresp)
	}
	abandoned := false
	defer func() {
		if !abandoned {
			release()
		}
	}()

	freq.SetRequestURI(req.URL.String())
	freq.Header.SetMethod(req.Method)
	for key, values := range req.Header {
		for _, v := range values {
			freq.Header.Add(key, v)
		}
	}
	for _, c := range f.jar.Cookies(req.URL) {
		freq.Header.SetCookie(c.Name, c.Value)
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		freq.SetBody(body)
	}

	ctx := req.Context()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			done <- f.client.DoDeadline(freq, fresp, deadline)
			return
		}
		done <- f.client.Do(freq, fresp)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		abandoned = true
		go func() {
			<-done
			release()
		}()
		return nil, ctx.Err()
	}
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}

	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", fresp.StatusCode(), http.StatusText(fresp.StatusCode())),
		StatusCode: fresp.StatusCode(),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Request:    req,
	}
	fresp.Header.VisitAll(func(key, value []byte) {
		resp.Header.Add(string(key), string(value))
	})
	body := append([]byte(nil), fresp.Body()...)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	if cookies := resp.Cookies(); len(cookies) > 0 {
		f.jar.SetCookies(req.URL, cookies)
	}
	return resp, nil
}
