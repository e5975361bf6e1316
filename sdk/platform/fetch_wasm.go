//go:build wasm

package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall/js"
)

// jsFetcher calls the host's global fetch with credentials included.
type jsFetcher struct{}

func (f *jsFetcher) Fetch(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := js.Global().Get("Headers").New()
	for key, values := range req.Header {
		for _, v := range values {
			headers.Call("append", key, v)
		}
	}

	controller := js.Global().Get("AbortController").New()
	init := js.Global().Get("Object").New()
	init.Set("method", req.Method)
	init.Set("headers", headers)
	init.Set("credentials", "include")
	init.Set("signal", controller.Get("signal"))

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(body) > 0 {
			init.Set("body", string(body))
		}
	}

	abort := func() { controller.Call("abort") }

	jsResp, err := await(ctx, js.Global().Call("fetch", req.URL.String(), init), abort)
	if err != nil {
		return nil, err
	}

	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", jsResp.Get("status").Int(), jsResp.Get("statusText").String()),
		StatusCode: jsResp.Get("status").Int(),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Request:    req,
	}

	each := js.FuncOf(func(this js.Value, args []js.Value) any {
		resp.Header.Add(args[1].String(), args[0].String())
		return nil
	})
	jsResp.Get("headers").Call("forEach", each)
	each.Release()

	buf, err := await(ctx, jsResp.Call("arrayBuffer"), abort)
	if err != nil {
		return nil, err
	}
	arr := js.Global().Get("Uint8Array").New(buf)
	data := make([]byte, arr.Get("length").Int())
	js.CopyBytesToGo(data, arr)

	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp, nil
}

// await blocks on a JavaScript promise. When ctx ends first the request is
// aborted and await waits for the promise to settle before returning.
func await(ctx context.Context, promise js.Value, abort func()) (js.Value, error) {
	done := make(chan js.Value, 1)
	failed := make(chan error, 1)

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) any {
		done <- args[0]
		return nil
	})
	onReject := js.FuncOf(func(this js.Value, args []js.Value) any {
		failed <- jsError(args[0])
		return nil
	})
	defer onResolve.Release()
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)

	select {
	case v := <-done:
		return v, nil
	case err := <-failed:
		return js.Undefined(), err
	case <-ctx.Done():
		abort()
		select {
		case <-done:
		case <-failed:
		}
		return js.Undefined(), ctx.Err()
	}
}

func jsError(v js.Value) error {
	if v.Type() == js.TypeObject {
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return errors.New(msg.String())
		}
	}
	return errors.New(v.String())
}
