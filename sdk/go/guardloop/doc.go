// Package guardloop embeds the escalation engine in Go agent loops. It
// wires the same three-stage hook pipeline the server exposes over
// HTTP, evaluated in process: pre-action gating on the user request,
// mid-trajectory drift accumulation while the agent works, and
// post-action outcome verification on tool results.
//
// Usage:
//
//	gl, err := guardloop.New(guardloop.WithProfile("pre_mid_post"))
//	v, err := gl.PreAction(ctx, sessionID, userRequest, []string{"search"})
//	if !v.Proceed {
//	    // pause or abort the turn
//	}
//
// Guard wraps a tool function so the mid-trajectory check runs before
// every call and the post-action check on every result. The SDK links
// directly against internal packages for zero-subprocess overhead.
// External users import github.com/guardloop/guardloop/sdk/go/guardloop.
package guardloop
