// Package mocks provides hand-written test doubles for the service
// interfaces consumed by the HTTP layer.
//
// Each mock exposes function fields that override its default response,
// so a test only sets up the behavior it cares about:
//
//	jwt := &mocks.MockJWTService{
//	    Claims: &auth.Claims{UserID: 7},
//	}
package mocks
