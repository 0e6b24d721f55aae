// Package jwt signs and verifies the access and refresh tokens issued after a
// successful authentication. Both token types share one fixed [Claims] struct;
// the "type" claim is checked on every parse so a refresh token is never
// accepted where an access token is expected.
package jwt
