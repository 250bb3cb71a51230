// Package client is a Go client for the sanctum HTTP API.
//
// The server answers 503 with Retry-After when its store is unavailable.
// The client retries the whole request in that case, with exponential
// backoff, at most MaxRetries times. Every other failure is returned at once:
// ErrUnauthenticated for 401, ErrForbidden for 403, and *StatusError for
// anything else.
//
//	c := client.New("http://127.0.0.1:8080")
//	token, err := c.IssueToken(ctx, "admin@example.com", "secret", "laptop")
//	if err != nil {
//		return err
//	}
//	me, err := c.CurrentUser(ctx, token)
package client
