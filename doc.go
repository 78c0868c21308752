/*
Package tinyserver is a small HTTP/1.1 server library.

Each accepted connection carries exactly one request. The accept loop hands
connections to a fixed pool of workers; a worker reads the request once,
parses it, dispatches it to the first route whose method and path pattern
match, writes a single response and closes the connection.

Quick Start

	package main

	import (
		"github.com/searchktools/tiny-server/app"
		"github.com/searchktools/tiny-server/config"
		"github.com/searchktools/tiny-server/core/http"
	)

	func main() {
		cfg := config.New()
		application := app.New(cfg)

		engine := application.Engine()
		engine.GET("/echo/:str", func(req *http.Request, res *http.Response) {
			res.SendText(req.Param("str"))
		})

		application.Run()
	}

Routing

Patterns are split on '/'. A segment starting with ':' captures one or more
characters, slashes included, so "/files/:name" matches "/files/a/b.txt".
Other segments match literally and the whole path must match. Routes are tried
in registration order; a request no route accepts gets a 404.

Responses

A handler finishes with one of Response.Send, SendText or SendBinary. Status
codes 200, 201 and 404 are written as given; anything else is written as 500.
A handler that returns without sending gets a 500.

Modules

  - app: logging, telemetry and lifecycle with graceful shutdown
  - config: defaults, JSON file, TINY_* environment and flags
  - core: the engine (accept loop, per-connection pipeline, stats)
  - core/http: request parser, request and response types
  - core/router: path pattern matcher and router
  - core/middleware: middleware pipeline
  - core/pools: worker pool and read buffer pool
  - core/static: static file mount, download and upload handlers
  - core/observability: OpenTelemetry metrics and spans, stats endpoint
  - core/sockopt: listener and connection socket options
*/
package tinyserver
