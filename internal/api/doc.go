// Package api implements the sanctum HTTP endpoints.
//
// # Routes
//
//	GET    /sanctum/csrf-cookie   start a session, set the XSRF-TOKEN cookie
//	POST   /login                 session login (JSON or form: email, password)
//	POST   /logout                end the session, or revoke the presented token
//	POST   /api/sanctum/token     exchange credentials for a plaintext token
//	GET    /api/user              the authenticated user
//	POST   /api/user              create a user (ability users:create)
//	GET    /api/tokens            the caller's tokens, metadata only
//	DELETE /api/tokens            revoke every caller token
//	DELETE /api/tokens/{id}       revoke one caller token
//
// Everything below /logout runs behind auth.Middleware and accepts either a
// bearer token or a session cookie.
//
// # Single-page frontend flow
//
//  1. GET /sanctum/csrf-cookie
//  2. POST /login with the XSRF-TOKEN cookie value in X-XSRF-TOKEN
//  3. Re-read XSRF-TOKEN (login rotates it) and send it on every
//     state-changing request
//
// Validation failures answer 422 with a "fields" object. Credential failures
// answer a generic 401.
package api
