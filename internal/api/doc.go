// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts the lesson, due-set and scheduler
// configuration services to JSON endpoints under /api, mapping service
// error categories to status codes.
package api
