//go:build wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/pubflow/pubflow-go/sdk"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

// clientWrapper exposes an SDK client to page scripts.
type clientWrapper struct {
	client sdk.Client
}

func main() {
	pubflow := map[string]any{
		"newClient": js.FuncOf(newClient),
	}
	js.Global().Set("pubflowSDK", pubflow)

	fmt.Println("PubFlow SDK WASM loaded!")

	select {}
}

// newClient builds a client whose session lives in window.localStorage.
func newClient(this js.Value, args []js.Value) any {
	if len(args) != 1 {
		return jsError("newClient requires exactly one argument")
	}

	store, err := storage.NewLocalStorage()
	if err != nil {
		return jsError(fmt.Sprintf("localStorage unavailable: %v", err))
	}

	config := sdk.DefaultConfig().
		WithRuntime(platform.Browser).
		WithStorage(store)
	opts := args[0]
	if baseURL := opts.Get("baseURL"); !baseURL.IsUndefined() {
		config = config.WithBaseURL(baseURL.String())
	}
	if debug := opts.Get("debug"); debug.Type() == js.TypeBoolean {
		config = config.WithDebug(debug.Bool())
	}

	client, err := sdk.NewClient(config)
	if err != nil {
		return jsError(fmt.Sprintf("failed to create client: %v", err))
	}

	w := &clientWrapper{client: client}
	return map[string]any{
		"login":   js.FuncOf(w.login),
		"logout":  js.FuncOf(w.logout),
		"session": js.FuncOf(w.session),
		"query":   js.FuncOf(w.query),
		"create":  js.FuncOf(w.create),
		"remove":  js.FuncOf(w.remove),
	}
}

// login(email, password) resolves to the session.
func (w *clientWrapper) login(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("login requires exactly two arguments: email and password")
		}
		session, err := w.client.Auth().Login(ctx, sdk.Credentials{
			Email:    args[0].String(),
			Password: args[1].String(),
		})
		if err != nil {
			return nil, err
		}
		return goValueToJS(session), nil
	})
}

func (w *clientWrapper) logout(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		return js.Undefined(), w.client.Auth().Logout(ctx)
	})
}

// session resolves to the stored session or null.
func (w *clientWrapper) session(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		s := w.client.Auth().GetSession(ctx)
		if s == nil {
			return js.Null(), nil
		}
		return goValueToJS(s), nil
	})
}

// query(resource, page) resolves to {data, meta}.
func (w *clientWrapper) query(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("query requires a resource name")
		}
		opts := &sdk.ListOptions{Page: 1}
		if len(args) > 1 && args[1].Type() == js.TypeNumber {
			opts.Page = args[1].Int()
		}
		resp, err := w.client.Bridge().Query(ctx, args[0].String(), opts)
		if err != nil {
			return nil, err
		}
		return goValueToJS(resp), nil
	})
}

// create(resource, data) resolves to the created record.
func (w *clientWrapper) create(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("create requires exactly two arguments: resource and data")
		}
		resp, err := w.client.Bridge().Create(ctx, args[0].String(), jsValueToGo(args[1]))
		if err != nil {
			return nil, err
		}
		return goValueToJS(resp.Data), nil
	})
}

func (w *clientWrapper) remove(this js.Value, args []js.Value) any {
	return jsPromise(func(ctx context.Context) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("remove requires exactly two arguments: resource and id")
		}
		_, err := w.client.Bridge().Delete(ctx, args[0].String(), args[1].String())
		return js.Undefined(), err
	})
}

// jsPromise runs fn on a goroutine and settles a JavaScript promise with
// its result.
func jsPromise(fn func(ctx context.Context) (any, error)) js.Value {
	promise := js.Global().Get("Promise")

	return promise.New(js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve := args[0]
		reject := args[1]

		go func() {
			result, err := fn(context.Background())
			if err != nil {
				reject.Invoke(jsError(err.Error()))
				return
			}
			resolve.Invoke(result)
		}()

		return nil
	}))
}

func jsError(message string) js.Value {
	return js.Global().Get("Error").New(message)
}

func jsValueToGo(val js.Value) any {
	switch val.Type() {
	case js.TypeBoolean:
		return val.Bool()
	case js.TypeNumber:
		return val.Float()
	case js.TypeString:
		return val.String()
	case js.TypeObject:
		raw := js.Global().Get("JSON").Call("stringify", val).String()
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// goValueToJS round-trips val through JSON so struct tags apply.
func goValueToJS(val any) js.Value {
	if val == nil {
		return js.Null()
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return js.Null()
	}
	return js.Global().Get("JSON").Call("parse", string(raw))
}
